package realtime

import (
	"encoding/json"
	"slices"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"
)

// Handler receives inbound items for a topic. implementations must not
// assume exactly-once delivery; duplicates are resolved downstream by the
// collection merge.
type Handler interface {
	HandleItem(item json.RawMessage)
}

type HandlerFunc func(item json.RawMessage)

func (self HandlerFunc) HandleItem(item json.RawMessage) {
	self(item)
}

// LogHandler decorates a handler with a per-item trace log.
func LogHandler(tag string, next Handler) Handler {
	return HandlerFunc(func(item json.RawMessage) {
		glog.V(2).Infof("[sub]%s<- %d bytes\n", tag, len(item))
		next.HandleItem(item)
	})
}

// opaque. removes exactly the handler it was returned for.
type SubscriptionHandle struct {
	topic     Topic
	handlerId Id
}

type registeredHandler struct {
	handlerId Id
	handler   Handler
}

type topicSubscription struct {
	// registration order
	handlers []*registeredHandler
	// a subscribe frame was issued on the current connection
	wireSubscribed bool
}

// SubscriptionRegistry maps topics to ordered handler lists and owns the
// wire level subscription set. only the first subscriber for a topic issues
// a wire subscribe, and the full set is replayed on every reconnect before
// inbound dispatch resumes. the topic map survives disconnects.
type SubscriptionRegistry struct {
	transport *TransportManager

	mutex  sync.Mutex
	topics map[Topic]*topicSubscription
}

func NewSubscriptionRegistry(transport *TransportManager) *SubscriptionRegistry {
	self := &SubscriptionRegistry{
		transport: transport,
		topics:    map[Topic]*topicSubscription{},
	}
	transport.setReceive(self.Dispatch)
	transport.AddConnectivityCallback(self.connectivityChanged)
	return self
}

// Subscribe adds the handler to the topic's list. when the transport is not
// yet connected the wire subscribe is deferred to the connect replay and
// issued once, no matter how many subscribers arrived before the connection.
func (self *SubscriptionRegistry) Subscribe(topic Topic, handler Handler) *SubscriptionHandle {
	handlerId := NewId()

	self.mutex.Lock()
	sub := self.topics[topic]
	if sub == nil {
		sub = &topicSubscription{}
		self.topics[topic] = sub
	}
	sub.handlers = append(sub.handlers, &registeredHandler{
		handlerId: handlerId,
		handler:   handler,
	})
	needWire := !sub.wireSubscribed
	self.mutex.Unlock()

	if needWire && self.transport.State() == ConnectionStateConnected {
		self.wireSubscribe(topic)
	}

	return &SubscriptionHandle{
		topic:     topic,
		handlerId: handlerId,
	}
}

// Unsubscribe removes the handler. the last handler for a topic removes the
// topic entry and issues a best effort wire unsubscribe.
func (self *SubscriptionRegistry) Unsubscribe(handle *SubscriptionHandle) {
	if handle == nil {
		return
	}

	self.mutex.Lock()
	sub := self.topics[handle.topic]
	if sub == nil {
		self.mutex.Unlock()
		return
	}
	for i, registered := range sub.handlers {
		if registered.handlerId == handle.handlerId {
			sub.handlers = append(sub.handlers[0:i:i], sub.handlers[i+1:]...)
			break
		}
	}
	empty := len(sub.handlers) == 0
	wireSubscribed := sub.wireSubscribed
	if empty {
		delete(self.topics, handle.topic)
	}
	self.mutex.Unlock()

	if empty && wireSubscribed {
		if !self.transport.sendFrame(UnsubscribeFrame(handle.topic)) {
			glog.V(2).Infof("[sub]unsubscribe not sent %s\n", handle.topic)
		}
	}
}

// Dispatch invokes every handler registered for the topic, in registration
// order. a panicking handler is isolated: the panic is reported and the
// remaining handlers still run.
func (self *SubscriptionRegistry) Dispatch(topic Topic, item []byte) {
	self.mutex.Lock()
	sub := self.topics[topic]
	var handlers []*registeredHandler
	if sub != nil {
		handlers = slices.Clone(sub.handlers)
	}
	self.mutex.Unlock()

	for _, registered := range handlers {
		self.dispatchOne(topic, registered.handler, json.RawMessage(item))
	}
}

func (self *SubscriptionRegistry) dispatchOne(topic Topic, handler Handler, item json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			glog.Infof("[sub]handler panic %s = %v\n", topic, r)
		}
	}()
	handler.HandleItem(item)
}

func (self *SubscriptionRegistry) Topics() []Topic {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return maps.Keys(self.topics)
}

func (self *SubscriptionRegistry) connectivityChanged(state ConnectionState) {
	switch state {
	case ConnectionStateConnected:
		// replay every topic that currently has at least one handler.
		// events published while disconnected are lost; delivery is
		// at-least-once only while connected.
		for _, topic := range self.Topics() {
			self.wireSubscribe(topic)
		}
	default:
		self.mutex.Lock()
		for _, sub := range self.topics {
			sub.wireSubscribed = false
		}
		self.mutex.Unlock()
	}
}

func (self *SubscriptionRegistry) wireSubscribe(topic Topic) {
	self.mutex.Lock()
	sub := self.topics[topic]
	if sub == nil || sub.wireSubscribed {
		self.mutex.Unlock()
		return
	}
	sub.wireSubscribed = true
	self.mutex.Unlock()

	if !self.transport.sendFrame(SubscribeFrame(topic)) {
		glog.Infof("[sub]subscribe not sent %s\n", topic)
		self.mutex.Lock()
		if sub := self.topics[topic]; sub != nil {
			sub.wireSubscribed = false
		}
		self.mutex.Unlock()
	}
}
