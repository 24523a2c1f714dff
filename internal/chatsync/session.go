package chatsync

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"project-chat/internal/models"
)

// Options configures a Session.
type Options struct {
	BaseURL string
	Token   string
	User    models.User
	Log     zerolog.Logger

	// HTTPClient overrides the default 10s-timeout client, mainly for tests.
	HTTPClient *http.Client

	PollInterval   time.Duration
	RedialInterval time.Duration

	// OnDirectory fires with the full group list whenever it changes.
	OnDirectory DirectoryFunc
	// OnMessages fires with a group's full message list, oldest first, after
	// every successful poll.
	OnMessages func(groupID string, msgs []models.Message)
	// OnUnread fires with the summed unread count after every recompute.
	OnUnread func(total int)
	// OnDegraded fires when a group's polling loses or regains connectivity.
	OnDegraded DegradedFunc
}

// Session is the login-scoped sync service. It owns the directory stream,
// the per-group polling loops and the unread counts, and is the entry point
// for sends. One session exists per authenticated user; logout closes it and
// a new login builds a fresh one.
type Session struct {
	user   models.User
	client *Client
	log    zerolog.Logger

	directory *Directory
	sync      *Synchronizer
	unread    *UnreadTracker

	onMessages func(groupID string, msgs []models.Message)
	onUnread   func(total int)

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// NewSession wires a Session from login credentials. Call Start to begin
// syncing.
func NewSession(opts Options) *Session {
	client := NewClient(opts.BaseURL, opts.Token, opts.HTTPClient)
	s := &Session{
		user:       opts.User,
		client:     client,
		log:        opts.Log,
		sync:       NewSynchronizer(client, opts.Log, opts.PollInterval, opts.OnDegraded),
		unread:     NewUnreadTracker(opts.User.ID),
		onMessages: opts.OnMessages,
		onUnread:   opts.OnUnread,
		handles:    make(map[string]*Handle),
	}

	onDirectory := opts.OnDirectory
	s.directory = NewDirectory(client, opts.Log, opts.RedialInterval, func(groups []models.Group) {
		s.syncGroups(groups)
		if onDirectory != nil {
			onDirectory(groups)
		}
	})
	return s
}

// Start begins the directory stream and, through it, per-group polling. The
// error covers only the initial group fetch; everything after self-heals.
func (s *Session) Start(ctx context.Context) error {
	return s.directory.Start(ctx)
}

// User returns the identity the session was built for.
func (s *Session) User() models.User { return s.user }

// Groups returns the current group list, most recently updated first.
func (s *Session) Groups() []models.Group { return s.directory.Groups() }

// Messages returns the latest polled message list for a group, oldest first.
// Unknown groups yield an empty list.
func (s *Session) Messages(groupID string) []models.Message {
	s.mu.Lock()
	h, ok := s.handles[groupID]
	s.mu.Unlock()
	if !ok {
		return []models.Message{}
	}
	return h.Messages()
}

// Unread returns the group's unread count.
func (s *Session) Unread(groupID string) int { return s.unread.Count(groupID) }

// TotalUnread sums unread counts across all groups.
func (s *Session) TotalUnread() int { return s.unread.Total() }

// Subscribe adds an extra listener for a group's updates, sharing the
// group's polling loop with the session's own listener. Each caller closes
// its own handle.
func (s *Session) Subscribe(groupID string, fn UpdateFunc) (*Handle, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrNotAuthenticated
	}
	return s.sync.Subscribe(groupID, fn), nil
}

// SendText posts a text message. The caller sees the result only through the
// returned value and the next poll; nothing is written locally, and a failed
// send is not retried.
func (s *Session) SendText(ctx context.Context, groupID, text string) (models.Message, error) {
	if s.isClosed() {
		return models.Message{}, ErrNotAuthenticated
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	return s.client.PostMessage(ctx, groupID, text, uuid.NewString())
}

// SendFile posts a file message, optionally with text, as one request.
func (s *Session) SendFile(ctx context.Context, groupID, text, filename, contentType string, r io.Reader) (models.Message, error) {
	if s.isClosed() {
		return models.Message{}, ErrNotAuthenticated
	}
	if r == nil || filename == "" {
		return models.Message{}, ErrEmptyMessage
	}
	return s.client.UploadFile(ctx, groupID, text, filename, contentType, r, uuid.NewString())
}

// AddReaction toggles on an emoji reaction. Reacting twice with the same
// emoji is a no-op server-side.
func (s *Session) AddReaction(ctx context.Context, groupID, messageID, emoji string) error {
	if s.isClosed() {
		return ErrNotAuthenticated
	}
	return s.client.AddReaction(ctx, groupID, messageID, emoji)
}

// MarkRead acknowledges messages for the session user.
func (s *Session) MarkRead(ctx context.Context, groupID string, messageIDs []string) error {
	if s.isClosed() {
		return ErrNotAuthenticated
	}
	return s.client.MarkRead(ctx, groupID, messageIDs)
}

// Close tears the session down: directory stream first, then every poll
// handle, then the synchronizer. Idempotent; subsequent operations return
// ErrNotAuthenticated.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := s.handles
	s.handles = make(map[string]*Handle)
	s.mu.Unlock()

	s.directory.Stop()
	for _, h := range handles {
		h.Close()
	}
	s.sync.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// syncGroups reconciles poll subscriptions with the directory: new groups
// get a polling loop, vanished groups lose theirs and their unread count.
func (s *Session) syncGroups(groups []models.Group) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	current := make(map[string]bool, len(groups))
	for _, g := range groups {
		current[g.ID] = true
		if _, ok := s.handles[g.ID]; ok {
			continue
		}
		groupID := g.ID
		s.handles[groupID] = s.sync.Subscribe(groupID, func(msgs []models.Message) {
			s.deliver(groupID, msgs)
		})
	}

	var removed []*Handle
	var removedIDs []string
	for id, h := range s.handles {
		if !current[id] {
			removed = append(removed, h)
			removedIDs = append(removedIDs, id)
			delete(s.handles, id)
		}
	}
	s.mu.Unlock()

	for i, h := range removed {
		h.Close()
		s.unread.Forget(removedIDs[i])
	}
	if len(removed) > 0 && s.onUnread != nil {
		s.onUnread(s.unread.Total())
	}
}

func (s *Session) deliver(groupID string, msgs []models.Message) {
	s.unread.Recompute(groupID, msgs)
	if s.onMessages != nil {
		s.onMessages(groupID, msgs)
	}
	if s.onUnread != nil {
		s.onUnread(s.unread.Total())
	}
}
