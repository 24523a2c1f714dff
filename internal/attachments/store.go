package attachments

import (
	"context"
	"io"
)

// Store persists message attachments. The upload handler writes the blob
// before inserting the message row and deletes it again if the insert fails,
// so chat history never references a file that does not exist and storage
// never keeps a file no message points at.
type Store interface {
	// Put stores the content under key and returns a URL clients can fetch.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Delete removes the content with the given key.
	Delete(ctx context.Context, key string) error
}
