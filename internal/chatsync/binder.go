package chatsync

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"project-chat/internal/models"
)

// AuthState is one observation of the app's auth status. The sync service
// follows these in lockstep: authenticated states carry everything needed to
// build a session.
type AuthState struct {
	Authenticated bool
	BaseURL       string
	Token         string
	User          models.User
}

// SessionFactory builds and starts a session for an authenticated state.
type SessionFactory func(ctx context.Context, state AuthState) (*Session, error)

// Binder ties session lifetime to an auth-state stream: a session exists
// exactly while the user is signed in. Re-authentication replaces the
// session rather than mutating it.
type Binder struct {
	log     zerolog.Logger
	factory SessionFactory

	mu      sync.RWMutex
	current *Session
}

// NewBinder builds a Binder. A nil factory uses the default, which wires a
// session straight from the state's credentials.
func NewBinder(log zerolog.Logger, factory SessionFactory) *Binder {
	if factory == nil {
		factory = func(ctx context.Context, state AuthState) (*Session, error) {
			s := NewSession(Options{
				BaseURL: state.BaseURL,
				Token:   state.Token,
				User:    state.User,
				Log:     log,
			})
			if err := s.Start(ctx); err != nil {
				s.Close()
				return nil, err
			}
			return s, nil
		}
	}
	return &Binder{log: log, factory: factory}
}

// Current returns the live session, nil while signed out.
func (b *Binder) Current() *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Run consumes auth states until the stream or the context ends. Any live
// session is closed on the way out.
func (b *Binder) Run(ctx context.Context, states <-chan AuthState) {
	defer b.swap(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if !state.Authenticated {
				b.swap(nil)
				continue
			}

			session, err := b.factory(ctx, state)
			if err != nil {
				b.log.Error().Err(err).Msg("session start failed")
				b.swap(nil)
				continue
			}
			b.swap(session)
		}
	}
}

// swap installs the new session and closes the one it replaces.
func (b *Binder) swap(next *Session) {
	b.mu.Lock()
	prev := b.current
	b.current = next
	b.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}
