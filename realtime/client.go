package realtime

import (
	"context"
	"time"
)

type ClientSettings struct {
	TransportSettings *TransportManagerSettings
	ReconnectSettings *ReconnectPolicySettings
	// how long an optimistic send waits for confirmation before the local
	// entry is flagged unconfirmed. expiry does not cancel the send.
	OptimisticWindow time.Duration
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		TransportSettings: DefaultTransportManagerSettings(),
		ReconnectSettings: DefaultReconnectPolicySettings(),
		OptimisticWindow:  15 * time.Second,
	}
}

// Client is the composition root for the realtime core: one transport, one
// subscription registry and one api client, shared by all features.
// construct exactly one per process and pass it to the features that need
// it. features never close or reopen the connection themselves; they only
// request connect (idempotent) and subscribe/unsubscribe.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	auth     *ClientAuth
	identity *ByJwt
	settings *ClientSettings

	api       *Api
	transport *TransportManager
	registry  *SubscriptionRegistry
}

func NewClientWithDefaults(
	ctx context.Context,
	apiUrl string,
	connectUrl string,
	auth *ClientAuth,
) *Client {
	return NewClient(ctx, apiUrl, connectUrl, auth, DefaultClientSettings())
}

func NewClient(
	ctx context.Context,
	apiUrl string,
	connectUrl string,
	auth *ClientAuth,
	settings *ClientSettings,
) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)

	identity, err := ParseByJwtUnverified(auth.ByJwt)
	if err != nil {
		identity = &ByJwt{}
	}

	api := NewApiWithContext(cancelCtx, apiUrl)
	api.SetByJwt(auth.ByJwt)

	transport := NewTransportManager(
		cancelCtx,
		connectUrl,
		auth,
		NewReconnectPolicy(settings.ReconnectSettings),
		settings.TransportSettings,
	)
	registry := NewSubscriptionRegistry(transport)

	return &Client{
		ctx:       cancelCtx,
		cancel:    cancel,
		auth:      auth,
		identity:  identity,
		settings:  settings,
		api:       api,
		transport: transport,
		registry:  registry,
	}
}

// EnsureConnected requests a live connection. safe to call from every
// feature; only the first call opens the link.
func (self *Client) EnsureConnected() {
	self.transport.Connect()
}

func (self *Client) ConnectionState() ConnectionState {
	return self.transport.State()
}

func (self *Client) AddConnectivityCallback(callback ConnectivityFunc) func() {
	return self.transport.AddConnectivityCallback(callback)
}

// Subscribe registers a handler for a topic and returns the matching
// unsubscribe function.
func (self *Client) Subscribe(topic Topic, handler Handler) func() {
	handle := self.registry.Subscribe(topic, handler)
	return func() {
		self.registry.Unsubscribe(handle)
	}
}

// Send publishes a payload to a topic over the realtime path. returns false
// when the payload could not be handed to the transport; callers fall back
// to the api.
func (self *Client) Send(topic Topic, payload any) bool {
	self.EnsureConnected()
	return self.transport.Publish(topic, payload)
}

func (self *Client) Api() *Api {
	return self.api
}

func (self *Client) Identity() *ByJwt {
	return self.identity
}

func (self *Client) Settings() *ClientSettings {
	return self.settings
}

func (self *Client) Close() {
	self.transport.Close()
	self.api.Close()
	self.cancel()
}
