package models

// User is the authenticated identity a session acts as. Name and Avatar are
// snapshotted onto every message the user sends.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
