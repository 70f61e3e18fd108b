package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func testClientSettings() *ClientSettings {
	return &ClientSettings{
		TransportSettings: testTransportSettings(),
		ReconnectSettings: testReconnectSettings(),
		OptimisticWindow:  5 * time.Second,
	}
}

func TestNotificationFeed(t *testing.T) {
	relay := newTestRelay()
	defer relay.Close()

	baseTime := time.Now().UTC().Truncate(time.Second)
	notification := func(id string, read bool, createdAt time.Time) *NotificationItem {
		return &NotificationItem{
			Id:        id,
			UserId:    "u1",
			Type:      "LIKE",
			Read:      read,
			CreatedAt: createdAt,
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&NotificationsResult{
			Content: []*NotificationItem{
				notification("n1", false, baseTime.Add(2*time.Second)),
				notification("n2", true, baseTime.Add(1*time.Second)),
			},
			TotalPages: 1,
			Last:       true,
		})
	})
	mux.HandleFunc("PUT /api/notifications/{notificationId}/read", func(w http.ResponseWriter, r *http.Request) {
		read := notification(r.PathValue("notificationId"), true, baseTime.Add(2*time.Second))
		json.NewEncoder(w).Encode(read)
	})
	apiServer := httptest.NewServer(mux)
	defer apiServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(
		ctx,
		apiServer.URL,
		relay.Url(),
		&ClientAuth{ByJwt: testByJwt(t, "u1", "alice"), InstanceId: NewId()},
		testClientSettings(),
	)
	defer client.Close()

	feed := NewNotificationFeed(client, "u1")
	defer feed.Close()

	changeCount := atomic.Int32{}
	feed.AddChangeCallback(func() {
		changeCount.Add(1)
	})

	topic := UserNotificationsTopic("u1")
	await(t, 5*time.Second, "subscribed", func() bool {
		return relay.SubscribeCount(topic) == 1
	})

	// a pushed notification bumps the unread count
	err := relay.Broadcast(topic, notification("n1", false, baseTime.Add(2*time.Second)))
	assert.Equal(t, err, nil)
	await(t, 5*time.Second, "notification pushed", func() bool {
		return feed.UnreadCount() == 1
	})
	assert.Equal(t, len(feed.Notifications()), 1)
	assert.Equal(t, 1 <= changeCount.Load(), true)

	// a duplicate push merges by id, the count does not double
	err = relay.Broadcast(topic, notification("n1", false, baseTime.Add(2*time.Second)))
	assert.Equal(t, err, nil)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, feed.UnreadCount(), 1)
	assert.Equal(t, len(feed.Notifications()), 1)

	// the page overlaps the push by id; only the unseen item appends
	err = feed.LoadMore()
	assert.Equal(t, err, nil)
	notifications := feed.Notifications()
	assert.Equal(t, len(notifications), 2)
	assert.Equal(t, notifications[0].Id, "n1")
	assert.Equal(t, notifications[1].Id, "n2")
	assert.Equal(t, feed.UnreadCount(), 1)

	// last page: further loads are no-ops
	err = feed.LoadMore()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(feed.Notifications()), 2)

	err = feed.MarkRead("n1")
	assert.Equal(t, err, nil)
	assert.Equal(t, feed.UnreadCount(), 0)
	assert.Equal(t, feed.Notifications()[0].Read, true)
}

func TestNotificationFeedReadEcho(t *testing.T) {
	relay := newTestRelay()
	defer relay.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(
		ctx,
		"http://127.0.0.1:1",
		relay.Url(),
		&ClientAuth{ByJwt: testByJwt(t, "u1", "alice"), InstanceId: NewId()},
		testClientSettings(),
	)
	defer client.Close()

	feed := NewNotificationFeed(client, "u1")
	defer feed.Close()

	topic := UserNotificationsTopic("u1")
	await(t, 5*time.Second, "subscribed", func() bool {
		return relay.SubscribeCount(topic) == 1
	})

	notification := &NotificationItem{
		Id:        "n1",
		UserId:    "u1",
		Type:      "COMMENT",
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}
	err := relay.Broadcast(topic, notification)
	assert.Equal(t, err, nil)
	await(t, 5*time.Second, "unread", func() bool {
		return feed.UnreadCount() == 1
	})

	// a mark-read echo replaces the entry in place and releases the count
	read := *notification
	read.Read = true
	err = relay.Broadcast(topic, &read)
	assert.Equal(t, err, nil)
	await(t, 5*time.Second, "unread cleared", func() bool {
		return feed.UnreadCount() == 0
	})
	assert.Equal(t, len(feed.Notifications()), 1)
	assert.Equal(t, feed.Notifications()[0].Read, true)
}

func TestChatFeedRealtimeSend(t *testing.T) {
	relay := newTestRelay()
	relay.SetEchoSends(true)
	defer relay.Close()

	baseTime := time.Now().UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/community/{communityId}/recent", func(w http.ResponseWriter, r *http.Request) {
		// the api returns oldest first
		json.NewEncoder(w).Encode([]*ChatMessageItem{
			chatMessage("m1", "first", baseTime.Add(-2*time.Second)),
			chatMessage("m2", "second", baseTime.Add(-1*time.Second)),
		})
	})
	apiServer := httptest.NewServer(mux)
	defer apiServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(
		ctx,
		apiServer.URL,
		relay.Url(),
		&ClientAuth{ByJwt: testByJwt(t, "u1", "alice"), InstanceId: NewId()},
		testClientSettings(),
	)
	defer client.Close()

	feed := NewChatFeed(client, "c1")
	defer feed.Close()

	topic := CommunityChatTopic("c1")
	await(t, 5*time.Second, "subscribed", func() bool {
		return relay.SubscribeCount(topic) == 1
	})

	err := feed.LoadRecent()
	assert.Equal(t, err, nil)
	messages := feed.Messages()
	assert.Equal(t, len(messages), 2)
	// the box renders newest first
	assert.Equal(t, messages[0].Id, "m2")
	assert.Equal(t, messages[1].Id, "m1")

	// the echo replaces the optimistic entry with the server assigned id
	err = feed.Send("hello")
	assert.Equal(t, err, nil)
	await(t, 5*time.Second, "echo resolved", func() bool {
		messages := feed.Messages()
		return len(messages) == 3 && strings.HasPrefix(messages[0].Id, "srv-")
	})

	messages = feed.Messages()
	assert.Equal(t, messages[0].Content, "hello")
	assert.Equal(t, messages[0].SenderId, "u1")
	assert.Equal(t, feed.Unconfirmed(messages[0].Id), false)
	for _, message := range messages {
		assert.Equal(t, strings.HasPrefix(message.Id, "temp-"), false)
	}
}

func TestChatFeedApiFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/community/{communityId}", func(w http.ResponseWriter, r *http.Request) {
		message := &ChatMessageItem{}
		if err := json.NewDecoder(r.Body).Decode(message); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		message.Id = "rest-1"
		json.NewEncoder(w).Encode(message)
	})
	apiServer := httptest.NewServer(mux)
	defer apiServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the realtime path is unreachable, so the send falls back to the api
	settings := testClientSettings()
	settings.ReconnectSettings.MaxAttempts = 1
	client := NewClient(
		ctx,
		apiServer.URL,
		"ws://127.0.0.1:1",
		&ClientAuth{ByJwt: testByJwt(t, "u1", "alice"), InstanceId: NewId()},
		settings,
	)
	defer client.Close()

	feed := NewChatFeed(client, "c1")
	defer feed.Close()

	err := feed.Send("offline hello")
	assert.Equal(t, err, nil)

	messages := feed.Messages()
	assert.Equal(t, len(messages), 1)
	assert.Equal(t, messages[0].Id, "rest-1")
	assert.Equal(t, messages[0].Content, "offline hello")
	assert.Equal(t, feed.Unconfirmed("rest-1"), false)
}

func TestChatFeedUnconfirmed(t *testing.T) {
	relay := newTestRelay()
	defer relay.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the relay accepts the send but never echoes a confirmation
	settings := testClientSettings()
	settings.OptimisticWindow = 100 * time.Millisecond
	client := NewClient(
		ctx,
		"http://127.0.0.1:1",
		relay.Url(),
		&ClientAuth{ByJwt: testByJwt(t, "u1", "alice"), InstanceId: NewId()},
		settings,
	)
	defer client.Close()

	feed := NewChatFeed(client, "c1")
	defer feed.Close()

	topic := CommunityChatTopic("c1")
	await(t, 5*time.Second, "subscribed", func() bool {
		return relay.SubscribeCount(topic) == 1
	})

	err := feed.Send("into the void")
	assert.Equal(t, err, nil)

	messages := feed.Messages()
	assert.Equal(t, len(messages), 1)
	tempId := messages[0].Id
	assert.Equal(t, strings.HasPrefix(tempId, "temp-"), true)
	assert.Equal(t, feed.Unconfirmed(tempId), false)

	// the window expires: the entry is flagged, never removed
	await(t, 5*time.Second, "unconfirmed", func() bool {
		return feed.Unconfirmed(tempId)
	})
	messages = feed.Messages()
	assert.Equal(t, len(messages), 1)
	assert.Equal(t, messages[0].Id, tempId)
}

func TestChatFeedLoadMore(t *testing.T) {
	relay := newTestRelay()
	defer relay.Close()

	baseTime := time.Now().UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/community/{communityId}/recent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*ChatMessageItem{
			chatMessage("m1", "first", baseTime.Add(-2*time.Second)),
			chatMessage("m2", "second", baseTime.Add(-1*time.Second)),
		})
	})
	mux.HandleFunc("GET /api/chat/community/{communityId}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Query().Get("page"), "1")
		json.NewEncoder(w).Encode(&ChatMessagesResult{
			Content: []*ChatMessageItem{
				chatMessage("m0", "zeroth", baseTime.Add(-3*time.Second)),
			},
			TotalPages: 2,
			Last:       true,
		})
	})
	apiServer := httptest.NewServer(mux)
	defer apiServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(
		ctx,
		apiServer.URL,
		relay.Url(),
		&ClientAuth{ByJwt: testByJwt(t, "u1", "alice"), InstanceId: NewId()},
		testClientSettings(),
	)
	defer client.Close()

	feed := NewChatFeed(client, "c1")
	defer feed.Close()

	err := feed.LoadRecent()
	assert.Equal(t, err, nil)
	assert.Equal(t, feed.HasMore(), true)

	// older pages append at the tail, newest first overall
	err = feed.LoadMore()
	assert.Equal(t, err, nil)
	messages := feed.Messages()
	assert.Equal(t, len(messages), 3)
	assert.Equal(t, messages[0].Id, "m2")
	assert.Equal(t, messages[1].Id, "m1")
	assert.Equal(t, messages[2].Id, "m0")
	assert.Equal(t, feed.HasMore(), false)

	// exhausted: further loads are no-ops
	err = feed.LoadMore()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(feed.Messages()), 3)
}
