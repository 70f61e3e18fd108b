package realtime

import (
	"slices"
	"time"

	"github.com/golang/glog"
)

// minimum contract for reconciled items. reconciliation is generic over the
// item shape as long as the id is stable and the timestamp comparable.
type Item interface {
	ItemId() string
	ItemTime() time.Time
}

// PaginatedCollection is an ordered, deduplicated, newest-first collection
// fed from two sources: real time pushes merged at the front and page
// fetches appended at the tail. it is owned by one feature instance and
// discarded when the feature unmounts.
type PaginatedCollection[T Item] struct {
	Items   []T
	Page    int
	HasMore bool

	// client ref -> optimistic (temporary) item id awaiting confirmation
	optimistic map[Id]string
	// item id -> confirmation window expired, entry kept visibly unconfirmed
	unconfirmed map[string]bool
}

func NewPaginatedCollection[T Item]() *PaginatedCollection[T] {
	return &PaginatedCollection[T]{
		HasMore:     true,
		optimistic:  map[Id]string{},
		unconfirmed: map[string]bool{},
	}
}

// MergePush merges one pushed item. an existing id is replaced in place,
// which models update-in-place pushes such as a mark-read echo. a new item
// is inserted at the head unless its timestamp is provably older, in which
// case the insert position is stable sorted by timestamp. returns whether
// the item was new, so callers can bump unread counters only for genuinely
// new items.
func (self *PaginatedCollection[T]) MergePush(item T) bool {
	for i := range self.Items {
		if self.Items[i].ItemId() == item.ItemId() {
			self.Items[i] = item
			return false
		}
	}

	idx := 0
	if itemTime := item.ItemTime(); !itemTime.IsZero() {
		for idx < len(self.Items) && self.Items[idx].ItemTime().After(itemTime) {
			idx += 1
		}
	}
	self.Items = slices.Insert(self.Items, idx, item)
	return true
}

// MergePage appends a fetched page at the tail, skipping ids already present.
// the overlap covers a push and a page fetch racing each other. returns the
// number of items actually appended.
func (self *PaginatedCollection[T]) MergePage(fetchedItems []T, isLastPage bool) int {
	seen := map[string]bool{}
	for _, item := range self.Items {
		seen[item.ItemId()] = true
	}

	appended := 0
	for _, item := range fetchedItems {
		if seen[item.ItemId()] {
			continue
		}
		seen[item.ItemId()] = true
		self.Items = append(self.Items, item)
		appended += 1
	}
	self.HasMore = !isLastPage
	return appended
}

// MergeOptimistic inserts a locally created item pending server
// confirmation, keyed by a client generated ref threaded through the
// outbound payload.
func (self *PaginatedCollection[T]) MergeOptimistic(clientRef Id, item T) {
	self.optimistic[clientRef] = item.ItemId()
	self.MergePush(item)
}

// ResolveOptimistic replaces the optimistic entry in place (same position)
// with the confirmed item, matched by client ref. a ref that cannot be
// resolved is treated as a new item and logged, never dropped.
// returns whether the ref resolved to an optimistic entry.
func (self *PaginatedCollection[T]) ResolveOptimistic(clientRef Id, confirmed T) bool {
	tempId, ok := self.optimistic[clientRef]
	if !ok {
		glog.Infof("[rec]unresolved client ref %s\n", clientRef)
		self.MergePush(confirmed)
		return false
	}
	delete(self.optimistic, clientRef)
	delete(self.unconfirmed, tempId)

	for i := range self.Items {
		if self.Items[i].ItemId() == tempId {
			self.Items[i] = confirmed
			return true
		}
	}
	// the temporary entry is gone; merge normally
	self.MergePush(confirmed)
	return true
}

// ExpireOptimistic stops waiting for a confirmation. the entry stays in the
// collection flagged unconfirmed; silent removal would be a data loss bug.
// a no-op when the ref was already resolved.
func (self *PaginatedCollection[T]) ExpireOptimistic(clientRef Id) {
	tempId, ok := self.optimistic[clientRef]
	if !ok {
		return
	}
	delete(self.optimistic, clientRef)
	self.unconfirmed[tempId] = true
	glog.Infof("[rec]optimistic entry unconfirmed %s\n", tempId)
}

func (self *PaginatedCollection[T]) Unconfirmed(itemId string) bool {
	return self.unconfirmed[itemId]
}

func (self *PaginatedCollection[T]) Len() int {
	return len(self.Items)
}
