package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/docopt/docopt-go"

	"skillhive.com/realtime/realtime"
)

const RealtimeCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Realtime control.

The default urls are:
    api_url: https://api.skillhive.com
    connect_url: wss://connect.skillhive.com/ws

Usage:
    realtimectl tail [--connect_url=<connect_url>] --jwt=<jwt>
        --topic=<topic>
        [--message_count=<message_count>]
    realtimectl send [--connect_url=<connect_url>] [--api_url=<api_url>] --jwt=<jwt>
        --topic=<topic>
        [<message>]
    realtimectl notifications [--api_url=<api_url>] --jwt=<jwt>
        [--page=<page>]

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --api_url=<api_url>
    --connect_url=<connect_url>
    --jwt=<jwt>                      Your platform JWT.
    --topic=<topic>                  Topic string, e.g. community.<id>.chat
    --message_count=<message_count>  Print this many messages then exit.
    --page=<page>                    Notification history page.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RealtimeCtlVersion)
	if err != nil {
		panic(err)
	}

	if tail_, _ := opts.Bool("tail"); tail_ {
		tail(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	} else if notifications_, _ := opts.Bool("notifications"); notifications_ {
		notifications(opts)
	}
}

func newClient(opts docopt.Opts) *realtime.Client {
	apiUrl := "https://api.skillhive.com"
	if apiUrl_, err := opts.String("--api_url"); err == nil && apiUrl_ != "" {
		apiUrl = apiUrl_
	}
	connectUrl := "wss://connect.skillhive.com/ws"
	if connectUrl_, err := opts.String("--connect_url"); err == nil && connectUrl_ != "" {
		connectUrl = connectUrl_
	}
	jwt, err := opts.String("--jwt")
	if err != nil {
		Err.Fatalf("--jwt is required: %s", err)
	}

	auth := &realtime.ClientAuth{
		ByJwt:      jwt,
		InstanceId: realtime.NewId(),
	}
	return realtime.NewClientWithDefaults(context.Background(), apiUrl, connectUrl, auth)
}

func awaitConnected(client *realtime.Client, timeout time.Duration) bool {
	endTime := time.Now().Add(timeout)
	for time.Now().Before(endTime) {
		switch client.ConnectionState() {
		case realtime.ConnectionStateConnected:
			return true
		case realtime.ConnectionStateFailing:
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

func tail(opts docopt.Opts) {
	topic, _ := opts.String("--topic")
	messageCount := -1
	if messageCount_, err := opts.Int("--message_count"); err == nil {
		messageCount = messageCount_
	}

	client := newClient(opts)
	defer client.Close()

	done := make(chan struct{})
	unsubscribe := client.Subscribe(realtime.Topic(topic), tailHandler(Out, messageCount, done))
	defer unsubscribe()

	client.EnsureConnected()
	if !awaitConnected(client, 30*time.Second) {
		Err.Fatalf("could not connect")
	}

	<-done
}

// prints each item and closes done once the message count is reached.
// messages can keep arriving past the threshold, so the close is one shot.
func tailHandler(out *log.Logger, messageCount int, done chan struct{}) realtime.Handler {
	closeDone := &sync.Once{}
	count := 0
	return realtime.HandlerFunc(func(item json.RawMessage) {
		out.Printf("%s", string(item))
		count += 1
		if 0 <= messageCount && messageCount <= count {
			closeDone.Do(func() {
				close(done)
			})
		}
	})
}

func send(opts docopt.Opts) {
	topic, _ := opts.String("--topic")
	message, _ := opts.String("<message>")
	if message == "" {
		message = "{}"
	}

	client := newClient(opts)
	defer client.Close()

	client.EnsureConnected()
	if !awaitConnected(client, 30*time.Second) {
		Err.Fatalf("could not connect")
	}

	if !client.Send(realtime.Topic(topic), json.RawMessage(message)) {
		Err.Fatalf("send failed")
	}
	// let the write pump flush before teardown
	time.Sleep(1 * time.Second)
	Out.Printf("sent")
}

func notifications(opts docopt.Opts) {
	page := 0
	if page_, err := opts.Int("--page"); err == nil {
		page = page_
	}

	client := newClient(opts)
	defer client.Close()

	result, err := client.Api().GetNotifications(page, 20)
	if err != nil {
		Err.Fatalf("notifications error: %s", err)
	}
	for _, notification := range result.Content {
		b, err := json.Marshal(notification)
		if err != nil {
			continue
		}
		Out.Printf("%s", string(b))
	}
}
