package realtime

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"
)

// feature level state: a feed subscribes its topic, merges pushes and pages
// into its collection, and notifies observers to re-render. one feed per
// mounted feature instance; Close on unmount.

const defaultPageSize = 20

// NotificationFeed maintains a user's notification stream.
type NotificationFeed struct {
	client *Client
	userId string

	unsubscribe func()

	changeCallbacks *callbackList[func()]

	mutex       sync.Mutex
	collection  *PaginatedCollection[*NotificationItem]
	unreadCount int
}

func NewNotificationFeed(client *Client, userId string) *NotificationFeed {
	self := &NotificationFeed{
		client:          client,
		userId:          userId,
		changeCallbacks: newCallbackList[func()](),
		collection:      NewPaginatedCollection[*NotificationItem](),
	}
	self.unsubscribe = client.Subscribe(
		UserNotificationsTopic(userId),
		HandlerFunc(self.handleItem),
	)
	client.EnsureConnected()
	return self
}

func (self *NotificationFeed) handleItem(item json.RawMessage) {
	notification, err := ParseNotificationItem(item)
	if err != nil {
		glog.Infof("[feed]drop malformed notification = %s\n", err)
		return
	}

	self.mutex.Lock()
	// a replace-in-place echo can flip the read state, so recount instead
	// of incrementing for new items only
	self.collection.MergePush(notification)
	self.recountUnread()
	self.mutex.Unlock()

	self.announce()
}

// callers hold the mutex
func (self *NotificationFeed) recountUnread() {
	unread := 0
	for _, notification := range self.collection.Items {
		if !notification.Read {
			unread += 1
		}
	}
	self.unreadCount = unread
}

// LoadMore fetches the next notification page from the api and appends it.
func (self *NotificationFeed) LoadMore() error {
	self.mutex.Lock()
	page := self.collection.Page
	hasMore := self.collection.HasMore
	self.mutex.Unlock()

	if !hasMore {
		return nil
	}

	result, err := self.client.Api().GetNotifications(page, defaultPageSize)
	if err != nil {
		return err
	}

	self.mutex.Lock()
	appended := self.collection.MergePage(result.Content, result.Last)
	self.collection.Page = page + 1
	self.recountUnread()
	self.mutex.Unlock()

	glog.V(2).Infof("[feed]notifications page %d +%d\n", page, appended)
	self.announce()
	return nil
}

// MarkRead marks one notification read via the api and updates the local
// entry. a push echo of the same notification merges as a replace.
func (self *NotificationFeed) MarkRead(notificationId string) error {
	_, err := self.client.Api().MarkNotificationReadSync(notificationId)
	if err != nil {
		return err
	}

	self.mutex.Lock()
	for _, notification := range self.collection.Items {
		if notification.Id == notificationId {
			notification.Read = true
		}
	}
	self.recountUnread()
	self.mutex.Unlock()

	self.announce()
	return nil
}

func (self *NotificationFeed) Notifications() []*NotificationItem {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.collection.Items)
}

func (self *NotificationFeed) UnreadCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.unreadCount
}

func (self *NotificationFeed) AddChangeCallback(callback func()) func() {
	callbackId := self.changeCallbacks.add(callback)
	return func() {
		self.changeCallbacks.remove(callbackId)
	}
}

func (self *NotificationFeed) announce() {
	for _, callback := range self.changeCallbacks.get() {
		callback()
	}
}

func (self *NotificationFeed) Close() {
	self.unsubscribe()
}

// ChatFeed maintains one community's chat box: newest-first messages,
// older pages on demand, and optimistic sends over the realtime path with
// an api fallback.
type ChatFeed struct {
	client      *Client
	communityId string

	unsubscribe func()

	changeCallbacks *callbackList[func()]

	mutex      sync.Mutex
	collection *PaginatedCollection[*ChatMessageItem]
}

func NewChatFeed(client *Client, communityId string) *ChatFeed {
	self := &ChatFeed{
		client:          client,
		communityId:     communityId,
		changeCallbacks: newCallbackList[func()](),
		collection:      NewPaginatedCollection[*ChatMessageItem](),
	}
	self.unsubscribe = client.Subscribe(
		CommunityChatTopic(communityId),
		HandlerFunc(self.handleItem),
	)
	client.EnsureConnected()
	return self
}

func (self *ChatFeed) handleItem(item json.RawMessage) {
	message, err := ParseChatMessageItem(item)
	if err != nil {
		glog.Infof("[feed]drop malformed chat message = %s\n", err)
		return
	}

	self.mutex.Lock()
	if message.ClientRef != nil {
		// echo of an optimistic send: replace the temporary entry in place
		self.collection.ResolveOptimistic(*message.ClientRef, message)
	} else {
		self.collection.MergePush(message)
	}
	self.mutex.Unlock()

	self.announce()
}

// LoadRecent fetches the most recent messages. the api returns oldest first;
// the collection is newest first.
func (self *ChatFeed) LoadRecent() error {
	messages, err := self.client.Api().GetRecentCommunityMessages(self.communityId)
	if err != nil {
		return err
	}
	slices.Reverse(messages)

	self.mutex.Lock()
	self.collection.MergePage(messages, false)
	self.mutex.Unlock()

	self.announce()
	return nil
}

// LoadMore fetches the next older page and appends it at the tail.
func (self *ChatFeed) LoadMore() error {
	self.mutex.Lock()
	page := self.collection.Page
	hasMore := self.collection.HasMore
	self.mutex.Unlock()

	if !hasMore {
		return nil
	}

	nextPage := page + 1
	result, err := self.client.Api().GetCommunityMessages(self.communityId, nextPage, defaultPageSize)
	if err != nil {
		return err
	}

	messages := slices.Clone(result.Content)
	slices.Reverse(messages)

	self.mutex.Lock()
	self.collection.MergePage(messages, result.Last || len(result.Content) == 0)
	self.collection.Page = nextPage
	self.mutex.Unlock()

	self.announce()
	return nil
}

// Send inserts the message optimistically under a temporary id, then sends
// it over the realtime path, falling back to the api when that reports
// failure. the optimistic entry is never silently removed: it is either
// resolved by an echo or api result carrying the client ref, or flagged
// unconfirmed when the window expires.
func (self *ChatFeed) Send(content string) error {
	identity := self.client.Identity()
	clientRef := NewId()

	message := &ChatMessageItem{
		Id:          fmt.Sprintf("temp-%s", clientRef),
		ClientRef:   &clientRef,
		CommunityId: self.communityId,
		SenderId:    identity.UserId,
		SenderName:  identity.UserName,
		Content:     content,
		Timestamp:   time.Now(),
	}

	self.mutex.Lock()
	self.collection.MergeOptimistic(clientRef, message)
	self.mutex.Unlock()
	self.announce()

	time.AfterFunc(self.client.Settings().OptimisticWindow, func() {
		self.mutex.Lock()
		self.collection.ExpireOptimistic(clientRef)
		self.mutex.Unlock()
		self.announce()
	})

	if self.client.Send(CommunityChatTopic(self.communityId), message) {
		// the wire echo resolves the entry via handleItem
		return nil
	}

	glog.Infof("[feed]realtime send failed, falling back to api\n")
	saved, err := self.client.Api().SendCommunityMessageSync(self.communityId, message)
	if err != nil {
		// leave the optimistic entry; the window will flag it unconfirmed
		return err
	}

	self.mutex.Lock()
	self.collection.ResolveOptimistic(clientRef, saved)
	self.mutex.Unlock()
	self.announce()
	return nil
}

func (self *ChatFeed) Messages() []*ChatMessageItem {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.collection.Items)
}

func (self *ChatFeed) Unconfirmed(messageId string) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.collection.Unconfirmed(messageId)
}

func (self *ChatFeed) HasMore() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.collection.HasMore
}

func (self *ChatFeed) AddChangeCallback(callback func()) func() {
	callbackId := self.changeCallbacks.add(callback)
	return func() {
		self.changeCallbacks.remove(callbackId)
	}
}

func (self *ChatFeed) announce() {
	for _, callback := range self.changeCallbacks.get() {
		callback()
	}
}

func (self *ChatFeed) Close() {
	self.unsubscribe()
}
