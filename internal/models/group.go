package models

import (
	"time"

	"github.com/lib/pq"
)

// Group represents one chat channel, one-to-one with a project. The group id
// equals the project id it belongs to.
type Group struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	CreatorID string         `db:"creator_id" json:"creator_id"`
	Members   pq.StringArray `db:"members" json:"members"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// HasMember reports whether the user may read/write the group.
func (g Group) HasMember(userID string) bool {
	if g.CreatorID == userID {
		return true
	}
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Renderable reports whether the group carries the fields a chat surface
// needs. Malformed groups are dropped by the directory instead of being
// handed to the caller.
func (g Group) Renderable() bool {
	return g.ID != "" && g.Name != "" && g.Members != nil
}

// DirectoryEvent is pushed over the directory websocket whenever the caller's
// group list changes. Groups are ordered by updated_at descending.
type DirectoryEvent struct {
	Type   string  `json:"type"`
	Groups []Group `json:"groups"`
}
