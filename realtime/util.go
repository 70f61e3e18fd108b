package realtime

import (
	"sync"
)

// makes a copy of the list on update,
// so that `get` is safe to iterate while callbacks are added and removed
type callbackList[T any] struct {
	mutex   sync.Mutex
	entries []callbackEntry[T]
}

type callbackEntry[T any] struct {
	callbackId Id
	callback   T
}

func newCallbackList[T any]() *callbackList[T] {
	return &callbackList[T]{}
}

func (self *callbackList[T]) get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, len(self.entries))
	for i, entry := range self.entries {
		callbacks[i] = entry.callback
	}
	return callbacks
}

func (self *callbackList[T]) add(callback T) Id {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := NewId()
	self.entries = append(self.entries, callbackEntry[T]{
		callbackId: callbackId,
		callback:   callback,
	})
	return callbackId
}

func (self *callbackList[T]) remove(callbackId Id) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for i, entry := range self.entries {
		if entry.callbackId == callbackId {
			self.entries = append(self.entries[0:i:i], self.entries[i+1:]...)
			return
		}
	}
}
