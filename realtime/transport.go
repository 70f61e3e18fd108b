package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateFailing      ConnectionState = "failing"
)

type TransportManagerSettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout        time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	SendBufferSize     int
}

func DefaultTransportManagerSettings() *TransportManagerSettings {
	return &TransportManagerSettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout:        2 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
		SendBufferSize:     8,
	}
}

// opaque credential bundle attached at connect time
type ClientAuth struct {
	ByJwt      string
	RefreshJwt string
	InstanceId Id
}

func (self *ClientAuth) UserId() (string, error) {
	byJwt, err := ParseByJwtUnverified(self.ByJwt)
	if err != nil {
		return "", err
	}
	return byJwt.UserId, nil
}

// invoked with (topic, body) for each inbound message frame
type ReceiveFunc func(topic Topic, body []byte)

// invoked on every connection state change
type ConnectivityFunc func(state ConnectionState)

// TransportManager owns the one physical connection for the process.
// connect is idempotent, disconnect is best effort, and send failures are
// reported as booleans so callers can fall back to request/response.
// at most one physical socket exists at a time.
type TransportManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	auth     *ClientAuth
	policy   *ReconnectPolicy
	settings *TransportManagerSettings

	connectivityCallbacks *callbackList[ConnectivityFunc]

	mutex        sync.Mutex
	state        ConnectionState
	attemptCount int
	running      bool
	runCancel    context.CancelFunc
	conn         *websocket.Conn
	send         chan *Frame
	onConnect    []func()
	receive      ReceiveFunc
}

func NewTransportManagerWithDefaults(
	ctx context.Context,
	url string,
	auth *ClientAuth,
) *TransportManager {
	return NewTransportManager(
		ctx,
		url,
		auth,
		NewReconnectPolicyWithDefaults(),
		DefaultTransportManagerSettings(),
	)
}

func NewTransportManager(
	ctx context.Context,
	url string,
	auth *ClientAuth,
	policy *ReconnectPolicy,
	settings *TransportManagerSettings,
) *TransportManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &TransportManager{
		ctx:                   cancelCtx,
		cancel:                cancel,
		url:                   url,
		auth:                  auth,
		policy:                policy,
		settings:              settings,
		connectivityCallbacks: newCallbackList[ConnectivityFunc](),
		state:                 ConnectionStateDisconnected,
	}
}

func (self *TransportManager) State() ConnectionState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.state
}

func (self *TransportManager) AttemptCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.attemptCount
}

// the registry installs itself as the single receiver
func (self *TransportManager) setReceive(receive ReceiveFunc) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.receive = receive
}

func (self *TransportManager) AddConnectivityCallback(callback ConnectivityFunc) func() {
	callbackId := self.connectivityCallbacks.add(callback)
	return func() {
		self.connectivityCallbacks.remove(callbackId)
	}
}

// Connect opens the physical link. idempotent: a no-op while an attempt is in
// flight or the connection is up, so concurrent overlapping retries are not
// possible.
func (self *TransportManager) Connect() {
	self.mutex.Lock()
	if self.running {
		self.mutex.Unlock()
		return
	}
	self.running = true
	self.state = ConnectionStateConnecting
	runCtx, runCancel := context.WithCancel(self.ctx)
	self.runCancel = runCancel
	self.mutex.Unlock()

	self.announceState(ConnectionStateConnecting)
	go self.run(runCtx)
}

// Disconnect tears down the physical link if present. wire errors during
// teardown are swallowed and logged. the topic handler map is owned by the
// registry and is not touched here. any in-flight reconnect timer is
// canceled and queued on-connect callbacks stay queued for the next
// successful connect.
func (self *TransportManager) Disconnect() {
	self.mutex.Lock()
	runCancel := self.runCancel
	conn := self.conn
	self.running = false
	self.runCancel = nil
	self.conn = nil
	self.send = nil
	self.state = ConnectionStateDisconnected
	self.mutex.Unlock()

	if runCancel != nil {
		runCancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			glog.V(2).Infof("[t]close error = %s\n", err)
		}
	}
	self.announceState(ConnectionStateDisconnected)
}

// OnConnect registers a one shot callback: invoked immediately if connected,
// else queued until the next successful connect transition.
func (self *TransportManager) OnConnect(callback func()) {
	self.mutex.Lock()
	if self.state == ConnectionStateConnected {
		self.mutex.Unlock()
		callback()
		return
	}
	self.onConnect = append(self.onConnect, callback)
	self.mutex.Unlock()
}

// Publish sends a payload to a topic. valid only when connected.
// returns false instead of an error so callers can apply a fallback
// without exception driven control flow.
func (self *TransportManager) Publish(topic Topic, payload any) bool {
	frame, err := SendFrame(topic, payload)
	if err != nil {
		glog.Infof("[t]send encode error = %s\n", err)
		return false
	}
	return self.sendFrame(frame)
}

func (self *TransportManager) sendFrame(frame *Frame) bool {
	self.mutex.Lock()
	state := self.state
	send := self.send
	self.mutex.Unlock()

	if state != ConnectionStateConnected || send == nil {
		return false
	}
	select {
	case send <- frame:
		return true
	case <-self.ctx.Done():
		return false
	case <-time.After(self.settings.WriteTimeout):
		glog.Infof("[t]send backpressure timeout\n")
		return false
	}
}

func (self *TransportManager) Close() {
	self.Disconnect()
	self.cancel()
}

func (self *TransportManager) announceState(state ConnectionState) {
	for _, callback := range self.connectivityCallbacks.get() {
		callback(state)
	}
}

func (self *TransportManager) run(runCtx context.Context) {
	for {
		ws, err := self.dial(runCtx)
		if err != nil {
			if runCtx.Err() != nil {
				return
			}
			glog.Infof("[t]connect error = %s\n", err)
			if !self.awaitRetry(runCtx) {
				return
			}
			continue
		}

		self.serve(runCtx, ws)

		if runCtx.Err() != nil {
			return
		}

		self.mutex.Lock()
		if !self.running {
			self.mutex.Unlock()
			return
		}
		self.state = ConnectionStateConnecting
		self.conn = nil
		self.send = nil
		self.mutex.Unlock()

		self.announceState(ConnectionStateConnecting)
		glog.Infof("[t]connection lost\n")
		if !self.awaitRetry(runCtx) {
			return
		}
	}
}

// dial opens the websocket and completes the auth handshake.
// the identity rides the connect frame headers, echoed back as a
// connected frame before any subscribe can be issued.
func (self *TransportManager) dial(runCtx context.Context) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(runCtx, self.url, nil)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, RequireEncodeFrame(ConnectFrame(self.auth))); err != nil {
		return nil, err
	}
	ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
	_, message, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame, err := DecodeFrame(message)
	if err != nil {
		return nil, err
	}
	switch frame.Type {
	case FrameTypeConnected:
	case FrameTypeError:
		return nil, fmt.Errorf("connect rejected: %s", string(frame.Body))
	default:
		return nil, fmt.Errorf("unexpected frame during connect: %s", frame.Type)
	}
	ws.SetReadDeadline(time.Time{})

	success = true
	return ws, nil
}

// serve runs the write and read pumps until the connection drops or the
// run context is canceled. the write pump starts before the connected
// announcement so that subscribe replays larger than the send buffer can
// drain, and the read pump starts after the announcement and the queued
// on-connect callbacks, so subscriptions are replayed before any inbound
// dispatch can occur.
func (self *TransportManager) serve(runCtx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(runCtx)
	defer handleCancel()

	send := make(chan *Frame, self.settings.SendBufferSize)

	self.mutex.Lock()
	if !self.running || runCtx.Err() != nil {
		self.mutex.Unlock()
		return
	}
	self.state = ConnectionStateConnected
	self.attemptCount = 0
	self.conn = ws
	self.send = send
	onConnect := self.onConnect
	self.onConnect = nil
	receive := self.receive
	self.mutex.Unlock()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case frame := <-send:
				b, err := EncodeFrame(frame)
				if err != nil {
					glog.Infof("[t]encode error = %s\n", err)
					continue
				}
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					// a websocket deadline timeout cannot be recovered
					glog.Infof("[t]write error = %s\n", err)
					return
				}
				glog.V(2).Infof("[t]%s->\n", frame.Type)
			case <-time.After(self.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
					return
				}
			}
		}
	}()

	self.announceState(ConnectionStateConnected)
	for _, callback := range onConnect {
		callback()
	}

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			default:
			}

			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			_, message, err := ws.ReadMessage()
			if err != nil {
				glog.V(2).Infof("[t]read error = %s\n", err)
				return
			}

			if len(message) == 0 {
				// keepalive
				glog.V(2).Infof("[t]ping<-\n")
				continue
			}

			frame, err := DecodeFrame(message)
			if err != nil {
				// malformed inbound frames are dropped, never crash dispatch
				glog.Infof("[t]drop malformed frame = %s\n", err)
				continue
			}

			switch frame.Type {
			case FrameTypeMessage:
				glog.V(2).Infof("[t]%s<-\n", frame.Topic)
				if receive != nil {
					receive(frame.Topic, frame.Body)
				}
			default:
				glog.V(2).Infof("[t]other frame %s<-\n", frame.Type)
			}
		}
	}()

	<-handleCtx.Done()
}

// awaitRetry applies the reconnect policy after a failed attempt or an
// unexpected disconnect. returns false when retrying should stop, either
// because the policy gave up or the run was canceled.
func (self *TransportManager) awaitRetry(runCtx context.Context) bool {
	self.mutex.Lock()
	self.attemptCount += 1
	attempt := self.attemptCount
	self.mutex.Unlock()

	if self.policy.ShouldGiveUp(attempt) {
		self.mutex.Lock()
		runCancel := self.runCancel
		self.running = false
		self.runCancel = nil
		self.state = ConnectionStateFailing
		self.mutex.Unlock()

		glog.Infof("[t]giving up after %d attempts\n", attempt)
		self.announceState(ConnectionStateFailing)
		if runCancel != nil {
			runCancel()
		}
		return false
	}

	delay := self.policy.DelayFor(attempt)
	glog.Infof("[t]reconnect in %s (attempt %d)\n", delay, attempt)
	select {
	case <-runCtx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
