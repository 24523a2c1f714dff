package chatsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"project-chat/internal/models"
)

// DefaultRedialInterval is how long the directory waits before redialing a
// failed push stream.
const DefaultRedialInterval = 5 * time.Second

// DirectoryFunc receives the user's full group list, most recently updated
// first, whenever it changes.
type DirectoryFunc func(groups []models.Group)

// Directory maintains the live group list. It fetches the initial list over
// REST so the UI is usable immediately, then follows the websocket push
// stream, redialing while the server is unreachable. Groups the server sends
// without an id or members are dropped rather than rendered broken.
type Directory struct {
	client   *Client
	log      zerolog.Logger
	redial   time.Duration
	onUpdate DirectoryFunc

	mu     sync.RWMutex
	groups []models.Group

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDirectory builds a Directory. redial <= 0 uses DefaultRedialInterval.
func NewDirectory(client *Client, log zerolog.Logger, redial time.Duration, onUpdate DirectoryFunc) *Directory {
	if redial <= 0 {
		redial = DefaultRedialInterval
	}
	return &Directory{
		client:   client,
		log:      log,
		redial:   redial,
		onUpdate: onUpdate,
	}
}

// Start fetches the initial group list and begins following the push stream.
// The initial fetch error is returned so login can surface it; the stream
// afterwards self-heals and never reports errors to the caller.
func (d *Directory) Start(ctx context.Context) error {
	groups, err := d.client.ListGroups(ctx)
	if err != nil {
		return err
	}
	d.apply(groups)

	streamCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.follow(streamCtx)
	return nil
}

// Groups returns the current group list, most recently updated first.
func (d *Directory) Groups() []models.Group {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Group, len(d.groups))
	copy(out, d.groups)
	return out
}

// Stop closes the push stream. Safe to call before Start or more than once.
func (d *Directory) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
}

func (d *Directory) follow(ctx context.Context) {
	defer close(d.done)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := d.client.DialDirectory(ctx)
		if err != nil {
			d.log.Warn().Err(err).Msg("directory stream dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.redial):
			}
			continue
		}

		// Unblock the reader when the stream context ends.
		readerDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-readerDone:
			}
		}()

		for {
			var event models.DirectoryEvent
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() == nil {
					d.log.Warn().Err(err).Msg("directory stream closed, redialing")
				}
				break
			}
			if event.Type != "groups" {
				continue
			}
			d.apply(event.Groups)
		}

		close(readerDone)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.redial):
		}
	}
}

// apply filters out malformed groups, stores the list and notifies the
// observer.
func (d *Directory) apply(groups []models.Group) {
	clean := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if !g.Renderable() {
			d.log.Warn().Str("group_id", g.ID).Msg("dropping malformed group from directory")
			continue
		}
		clean = append(clean, g)
	}

	d.mu.Lock()
	d.groups = clean
	d.mu.Unlock()

	if d.onUpdate != nil {
		d.onUpdate(clean)
	}
}
