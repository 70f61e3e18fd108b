// Package realtime is the event delivery and client state synchronization core
// for the SkillHive apps. It maintains one multiplexed, auto reconnecting
// connection to the platform, lets independent features subscribe to topics
// without managing the connection lifecycle, merges pushed events into local
// paginated collections, and keeps the threaded comment tree for a post view
// under optimistic local edits.
//
// Logging convention:
//
//	Info: essential events for abnormal behavior. Silent on normal operation,
//	    with the exception of infrequent lifecycle data useful for monitoring.
//	    This includes connect errors, reconnects, give up, dropped frames.
//	V(2): key events for trace debugging. Frequent per-frame events live here.
package realtime

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func ParseId(idStr string) (Id, error) {
	return parseUuid(idStr)
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return encodeUuid(self)
}

// ids from the same source are ordered by create time
func (self Id) LessThan(b Id) bool {
	return bytes.Compare(self[:], b[:]) < 0
}

func (self *Id) MarshalJSON() ([]byte, error) {
	var buf [16]byte
	copy(buf[0:16], self[0:16])
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(encodeUuid(buf))
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Id) UnmarshalJSON(src []byte) error {
	if len(src) != 38 {
		return fmt.Errorf("invalid length for UUID: %v", len(src))
	}
	buf, err := parseUuid(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = buf
	return nil
}

func parseUuid(src string) (dst [16]byte, err error) {
	switch len(src) {
	case 36:
		src = src[0:8] + src[9:13] + src[14:18] + src[19:23] + src[24:]
	case 32:
		// dashes already stripped, assume valid
	default:
		// assume invalid.
		return dst, fmt.Errorf("cannot parse UUID %v", src)
	}

	buf, err := hex.DecodeString(src)
	if err != nil {
		return dst, err
	}

	copy(dst[:], buf)
	return dst, err
}

func encodeUuid(src [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", src[0:4], src[4:6], src[6:8], src[8:10], src[10:16])
}

// a topic identifies one logical channel of events,
// e.g. one community chat room or one user's notification stream
type Topic string

func CommunityChatTopic(communityId string) Topic {
	return Topic(fmt.Sprintf("community.%s.chat", communityId))
}

func UserNotificationsTopic(userId string) Topic {
	return Topic(fmt.Sprintf("user.%s.notifications", userId))
}
