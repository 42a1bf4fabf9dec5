// Package ids generates prefixed, time-sortable unique identifiers.
package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known prefixes for the documents this service creates.
const (
	RoomPrefix         = "room_"
	ChatPrefix         = "chat_"
	MessagePrefix      = "msg_"
	UserPrefix         = "usr_"
	NotificationPrefix = "ntf_"
)

// New returns prefix + millisecond timestamp + the upper-cased 7-character
// tail of a fresh UUID. The timestamp keeps ids roughly sortable by creation
// time; the UUID tail disambiguates same-millisecond collisions.
func New(prefix string) string {
	ts := time.Now().UnixMilli()
	u := uuid.NewString()
	tail := strings.ToUpper(u[len(u)-7:])
	return fmt.Sprintf("%s%d%s", prefix, ts, tail)
}
