package chatsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"project-chat/internal/models"
)

// fakeChat is a minimal in-memory chat server for client-side tests. It
// serves messages newest first, the way the real service does.
type fakeChat struct {
	mu       sync.Mutex
	groups   []models.Group
	messages map[string][]models.Message
	failList bool
	listGate chan struct{}

	lastIdemToken string
}

func newFakeChat() *fakeChat {
	return &fakeChat{messages: make(map[string][]models.Message)}
}

func (f *fakeChat) setMessages(groupID string, msgs []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[groupID] = msgs
}

func (f *fakeChat) setFailList(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failList = fail
}

func (f *fakeChat) idemToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastIdemToken
}

func (f *fakeChat) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/groups":
			f.mu.Lock()
			groups := f.groups
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"groups": groups})

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			f.mu.Lock()
			gate := f.listGate
			f.mu.Unlock()
			if gate != nil {
				<-gate
			}
			f.mu.Lock()
			fail := f.failList
			groupID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/groups/"), "/messages")
			msgs := f.messages[groupID]
			f.mu.Unlock()
			if fail {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			f.mu.Lock()
			f.lastIdemToken = r.Header.Get("X-Idempotency-Key")
			f.mu.Unlock()
			var req struct {
				Text string `json:"text"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			msg := models.Message{ID: "srv-1", Text: req.Text, CreatedAt: time.Now()}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(msg)

		default:
			http.NotFound(w, r)
		}
	})
}

func testSynchronizer(t *testing.T, srv *httptest.Server, onDegraded DegradedFunc) *Synchronizer {
	t.Helper()
	client := NewClient(srv.URL, "test-token", srv.Client())
	s := NewSynchronizer(client, zerolog.Nop(), 5*time.Millisecond, onDegraded)
	t.Cleanup(s.Close)
	return s
}

func TestSubscribeDeliversAscendingOrder(t *testing.T) {
	fake := newFakeChat()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// newest first, as the server returns them
	fake.setMessages("p1", []models.Message{
		{ID: "m3", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m2", CreatedAt: base.Add(time.Minute)},
		{ID: "m1", CreatedAt: base},
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sync := testSynchronizer(t, srv, nil)
	got := make(chan []models.Message, 1)
	h := sync.Subscribe("p1", func(msgs []models.Message) {
		select {
		case got <- msgs:
		default:
		}
	})
	defer h.Close()

	select {
	case msgs := <-got:
		require.Len(t, msgs, 3)
		require.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
		for i := 1; i < len(msgs); i++ {
			require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery within deadline")
	}

	require.Len(t, h.Messages(), 3)
}

func TestSendThenPollObservesMessage(t *testing.T) {
	fake := newFakeChat()
	fake.setMessages("p1", nil)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", srv.Client())
	sent, err := client.PostMessage(context.Background(), "p1", "hello", "tok-1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", fake.idemToken())

	// the server now has the message; the next poll must surface it
	fake.setMessages("p1", []models.Message{sent})

	sync := testSynchronizer(t, srv, nil)
	got := make(chan []models.Message, 1)
	h := sync.Subscribe("p1", func(msgs []models.Message) {
		if len(msgs) > 0 {
			select {
			case got <- msgs:
			default:
			}
		}
	})
	defer h.Close()

	select {
	case msgs := <-got:
		require.Equal(t, "srv-1", msgs[0].ID)
		require.Equal(t, "hello", msgs[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("sent message never delivered by poll")
	}
}

func TestHandleCloseIsIdempotent(t *testing.T) {
	fake := newFakeChat()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sync := testSynchronizer(t, srv, nil)
	h := sync.Subscribe("p1", func([]models.Message) {})

	h.Close()
	h.Close()
	h.Close()

	sync.mu.Lock()
	require.Empty(t, sync.loops)
	sync.mu.Unlock()
	require.Empty(t, h.Messages())
}

func TestDuplicateSubscribersShareOneLoop(t *testing.T) {
	fake := newFakeChat()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sync := testSynchronizer(t, srv, nil)
	h1 := sync.Subscribe("p1", func([]models.Message) {})
	h2 := sync.Subscribe("p1", func([]models.Message) {})

	sync.mu.Lock()
	require.Len(t, sync.loops, 1)
	sync.mu.Unlock()

	// first close keeps the loop alive for the remaining subscriber
	h1.Close()
	sync.mu.Lock()
	require.Len(t, sync.loops, 1)
	sync.mu.Unlock()

	h2.Close()
	sync.mu.Lock()
	require.Empty(t, sync.loops)
	sync.mu.Unlock()
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	fake := newFakeChat()
	fake.setMessages("p1", []models.Message{{ID: "m1", CreatedAt: time.Now()}})
	gate := make(chan struct{})
	fake.listGate = gate
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sync := testSynchronizer(t, srv, nil)
	delivered := make(chan struct{}, 1)
	h := sync.Subscribe("p1", func([]models.Message) {
		select {
		case delivered <- struct{}{}:
		default:
		}
	})

	// the first fetch is parked on the gate; close while it is in flight
	time.Sleep(20 * time.Millisecond)
	h.Close()
	close(gate)

	select {
	case <-delivered:
		t.Fatal("closed handle received an in-flight result")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollFailureKeepsSnapshotAndDegrades(t *testing.T) {
	fake := newFakeChat()
	fake.setMessages("p1", []models.Message{{ID: "m1", CreatedAt: time.Now()}})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	type signal struct {
		groupID  string
		degraded bool
	}
	signals := make(chan signal, 8)
	sync := testSynchronizer(t, srv, func(groupID string, degraded bool) {
		signals <- signal{groupID, degraded}
	})

	got := make(chan []models.Message, 1)
	h := sync.Subscribe("p1", func(msgs []models.Message) {
		select {
		case got <- msgs:
		default:
		}
	})
	defer h.Close()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial delivery")
	}

	// failures start; the snapshot must survive and the degraded signal
	// must fire only after the third consecutive failure
	fake.setFailList(true)
	select {
	case sig := <-signals:
		require.Equal(t, "p1", sig.groupID)
		require.True(t, sig.degraded)
	case <-time.After(2 * time.Second):
		t.Fatal("degraded signal never fired")
	}
	require.Len(t, h.Messages(), 1)

	// recovery clears the signal
	fake.setFailList(false)
	select {
	case sig := <-signals:
		require.False(t, sig.degraded)
	case <-time.After(2 * time.Second):
		t.Fatal("recovery signal never fired")
	}
}
