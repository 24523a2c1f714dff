package chatsync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when the server rejects the session
	// token, or when an operation runs against a closed session.
	ErrNotAuthenticated = errors.New("chatsync: not authenticated")

	// ErrEmptyMessage is returned for a send with neither text nor file.
	ErrEmptyMessage = errors.New("chatsync: message has no content")
)

// APIError carries a non-2xx server response. Callers branch on Status; the
// body is kept for logs.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatsync: server returned %d: %s", e.Status, e.Body)
}
