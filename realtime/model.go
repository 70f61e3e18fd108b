package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// inbound payloads are validated at the transport boundary before they are
// handed to feature handlers. the minimum contract is an id and a timestamp;
// the known topic families have concrete shapes below.

// Envelope is the minimum contract type for generic reconciliation.
type Envelope struct {
	Id        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (self *Envelope) ItemId() string {
	return self.Id
}

func (self *Envelope) ItemTime() time.Time {
	return self.Timestamp
}

func ParseEnvelope(body json.RawMessage) (*Envelope, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(body, envelope); err != nil {
		return nil, err
	}
	if envelope.Id == "" {
		return nil, errors.New("item requires an id")
	}
	return envelope, nil
}

// NotificationItem mirrors the platform notification shape.
// Type is one of LIKE, COMMENT, FOLLOW, COMMUNITY_JOIN, POST_SHARE.
type NotificationItem struct {
	Id          string    `json:"id"`
	UserId      string    `json:"userId"`
	ActorId     string    `json:"actorId,omitempty"`
	ActorName   string    `json:"actorName,omitempty"`
	Type        string    `json:"type,omitempty"`
	ReferenceId string    `json:"referenceId,omitempty"`
	Content     string    `json:"content,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (self *NotificationItem) ItemId() string {
	return self.Id
}

func (self *NotificationItem) ItemTime() time.Time {
	return self.CreatedAt
}

func ParseNotificationItem(body json.RawMessage) (*NotificationItem, error) {
	item := &NotificationItem{}
	if err := json.Unmarshal(body, item); err != nil {
		return nil, err
	}
	if item.Id == "" {
		return nil, errors.New("notification requires an id")
	}
	return item, nil
}

// ChatMessageItem mirrors the platform chat message shape. ClientRef is the
// client generated correlation ref for optimistic sends: it rides the
// outbound payload and is echoed back with the server assigned id.
type ChatMessageItem struct {
	Id                   string    `json:"id"`
	ClientRef            *Id       `json:"clientRef,omitempty"`
	CommunityId          string    `json:"communityId"`
	SenderId             string    `json:"senderId"`
	SenderName           string    `json:"senderName,omitempty"`
	SenderProfilePicture string    `json:"senderProfilePicture,omitempty"`
	Content              string    `json:"content"`
	Timestamp            time.Time `json:"timestamp"`
}

func (self *ChatMessageItem) ItemId() string {
	return self.Id
}

func (self *ChatMessageItem) ItemTime() time.Time {
	return self.Timestamp
}

func ParseChatMessageItem(body json.RawMessage) (*ChatMessageItem, error) {
	item := &ChatMessageItem{}
	if err := json.Unmarshal(body, item); err != nil {
		return nil, err
	}
	if item.Id == "" {
		return nil, errors.New("chat message requires an id")
	}
	return item, nil
}
