package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func chatMessage(id string, content string, timestamp time.Time) *ChatMessageItem {
	return &ChatMessageItem{
		Id:          id,
		CommunityId: "c1",
		SenderId:    "u1",
		Content:     content,
		Timestamp:   timestamp,
	}
}

func TestMergePushDedup(t *testing.T) {
	baseTime := time.Now()
	collection := NewPaginatedCollection[*ChatMessageItem]()

	wasNew := collection.MergePush(chatMessage("m1", "hello", baseTime.Add(100*time.Millisecond)))
	assert.Equal(t, wasNew, true)
	assert.Equal(t, collection.Len(), 1)

	// an edit echo arrives with the same id: replace in place, not new
	wasNew = collection.MergePush(chatMessage("m1", "hello edited", baseTime.Add(100*time.Millisecond)))
	assert.Equal(t, wasNew, false)
	assert.Equal(t, collection.Len(), 1)
	assert.Equal(t, collection.Items[0].Content, "hello edited")

	// an older page overlapping by id appends only the unseen items
	appended := collection.MergePage([]*ChatMessageItem{
		chatMessage("m1", "hello edited", baseTime.Add(100*time.Millisecond)),
		chatMessage("m0", "first", baseTime.Add(50*time.Millisecond)),
	}, true)
	assert.Equal(t, appended, 1)
	assert.Equal(t, collection.Len(), 2)
	assert.Equal(t, collection.Items[0].Id, "m1")
	assert.Equal(t, collection.Items[1].Id, "m0")
	assert.Equal(t, collection.HasMore, false)
}

func TestMergePushOrdering(t *testing.T) {
	baseTime := time.Now()
	collection := NewPaginatedCollection[*ChatMessageItem]()

	collection.MergePush(chatMessage("m2", "two", baseTime.Add(2*time.Second)))
	collection.MergePush(chatMessage("m3", "three", baseTime.Add(3*time.Second)))
	// an out of order push with an older timestamp lands below newer items
	collection.MergePush(chatMessage("m1", "one", baseTime.Add(1*time.Second)))

	assert.Equal(t, collection.Items[0].Id, "m3")
	assert.Equal(t, collection.Items[1].Id, "m2")
	assert.Equal(t, collection.Items[2].Id, "m1")
}

func TestMergePageNoDuplicates(t *testing.T) {
	baseTime := time.Now()
	collection := NewPaginatedCollection[*ChatMessageItem]()

	page := []*ChatMessageItem{}
	for i := 0; i < 10; i += 1 {
		page = append(page, chatMessage(
			fmt.Sprintf("m%d", i),
			fmt.Sprintf("message %d", i),
			baseTime.Add(time.Duration(-i)*time.Second),
		))
	}
	collection.MergePage(page, false)
	assert.Equal(t, collection.Len(), 10)
	assert.Equal(t, collection.HasMore, true)

	// refetching the same page is a no-op
	appended := collection.MergePage(page, false)
	assert.Equal(t, appended, 0)
	assert.Equal(t, collection.Len(), 10)

	// no id appears twice regardless of source interleaving
	seen := map[string]bool{}
	for _, item := range collection.Items {
		assert.Equal(t, seen[item.ItemId()], false)
		seen[item.ItemId()] = true
	}
}

func TestOptimisticResolve(t *testing.T) {
	baseTime := time.Now()
	collection := NewPaginatedCollection[*ChatMessageItem]()

	collection.MergePush(chatMessage("m1", "existing", baseTime))

	clientRef := NewId()
	temp := chatMessage(fmt.Sprintf("temp-%s", clientRef), "sending", baseTime.Add(1*time.Second))
	temp.ClientRef = &clientRef
	collection.MergeOptimistic(clientRef, temp)
	assert.Equal(t, collection.Items[0].Id, temp.Id)

	// the confirmation replaces the temporary entry in place
	confirmed := chatMessage("m2", "sending", baseTime.Add(1*time.Second))
	resolved := collection.ResolveOptimistic(clientRef, confirmed)
	assert.Equal(t, resolved, true)
	assert.Equal(t, collection.Len(), 2)
	assert.Equal(t, collection.Items[0].Id, "m2")
	assert.Equal(t, collection.Unconfirmed("m2"), false)

	// resolving again falls back to a plain merge of the already present id
	resolved = collection.ResolveOptimistic(clientRef, confirmed)
	assert.Equal(t, resolved, false)
	assert.Equal(t, collection.Len(), 2)
}

func TestOptimisticExpire(t *testing.T) {
	baseTime := time.Now()
	collection := NewPaginatedCollection[*ChatMessageItem]()

	clientRef := NewId()
	temp := chatMessage(fmt.Sprintf("temp-%s", clientRef), "sending", baseTime)
	collection.MergeOptimistic(clientRef, temp)

	// expiry keeps the entry and flags it, never removes it
	collection.ExpireOptimistic(clientRef)
	assert.Equal(t, collection.Len(), 1)
	assert.Equal(t, collection.Items[0].Id, temp.Id)
	assert.Equal(t, collection.Unconfirmed(temp.Id), true)

	// expiring twice is a no-op
	collection.ExpireOptimistic(clientRef)
	assert.Equal(t, collection.Len(), 1)
}

func TestOptimisticUnknownRef(t *testing.T) {
	collection := NewPaginatedCollection[*ChatMessageItem]()

	// a confirmation with an unknown ref is kept as a new item
	confirmed := chatMessage("m1", "hello", time.Now())
	resolved := collection.ResolveOptimistic(NewId(), confirmed)
	assert.Equal(t, resolved, false)
	assert.Equal(t, collection.Len(), 1)
	assert.Equal(t, collection.Items[0].Id, "m1")
}
