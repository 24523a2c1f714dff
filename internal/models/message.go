package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ReactionSet maps an emoji to the set of user ids who reacted with it.
// Stored as a jsonb column; set semantics, a user appears at most once per
// emoji.
type ReactionSet map[string][]string

// Value implements driver.Valuer.
func (r ReactionSet) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ReactionSet) Scan(src interface{}) error {
	if src == nil {
		*r = ReactionSet{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("reactions: unsupported scan type %T", src)
	}
	if len(b) == 0 {
		*r = ReactionSet{}
		return nil
	}
	return json.Unmarshal(b, r)
}

// Has reports whether the user already reacted with the emoji.
func (r ReactionSet) Has(emoji, userID string) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// Add inserts the user into the emoji's set. Returns false when the user was
// already present.
func (r ReactionSet) Add(emoji, userID string) bool {
	if r.Has(emoji, userID) {
		return false
	}
	r[emoji] = append(r[emoji], userID)
	return true
}

// Message represents a message sent in a group. A user-initiated message has
// text or a file or both, never neither.
type Message struct {
	ID           string         `db:"id" json:"id"`
	GroupID      string         `db:"group_id" json:"group_id"`
	SenderID     string         `db:"sender_id" json:"sender_id"`
	SenderName   string         `db:"sender_name" json:"sender_name"`
	SenderAvatar string         `db:"sender_avatar" json:"sender_avatar,omitempty"`
	Text         string         `db:"text" json:"text,omitempty"`
	FileName     string         `db:"file_name" json:"file_name,omitempty"`
	FileURL      string         `db:"file_url" json:"file_url,omitempty"`
	FileType     string         `db:"file_type" json:"file_type,omitempty"`
	FileSize     int64          `db:"file_size" json:"file_size,omitempty"`
	Reactions    ReactionSet    `db:"reactions" json:"reactions"`
	ReadBy       pq.StringArray `db:"read_by" json:"read_by"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// HasFile reports whether the message carries an attachment.
func (m Message) HasFile() bool {
	return m.FileURL != ""
}

// ReadByUser reports whether the user acknowledged the message.
func (m Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// UnreadFor reports whether the message counts as unread from the user's
// perspective: sent by someone else and not yet acknowledged.
func (m Message) UnreadFor(userID string) bool {
	return m.SenderID != userID && !m.ReadByUser(userID)
}
