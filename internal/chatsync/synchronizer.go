package chatsync

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"project-chat/internal/models"
)

// DefaultPollInterval is how long the synchronizer waits between a completed
// fetch and the next one for a group.
const DefaultPollInterval = 2 * time.Second

// degradedThreshold is how many consecutive poll failures mark a group's
// connectivity as degraded.
const degradedThreshold = 3

// UpdateFunc receives a group's full message list, oldest first, after every
// successful poll.
type UpdateFunc func(msgs []models.Message)

// DegradedFunc is notified when a group's polling enters or leaves the
// degraded state.
type DegradedFunc func(groupID string, degraded bool)

// Synchronizer keeps subscribed groups' message lists fresh by polling.
// Subscribers to the same group share one polling loop; fetch and delivery
// for a group are strictly sequential, so callbacks never observe reordered
// batches.
type Synchronizer struct {
	client     *Client
	log        zerolog.Logger
	interval   time.Duration
	onDegraded DegradedFunc

	mu     sync.Mutex
	loops  map[string]*pollLoop
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSynchronizer builds a Synchronizer around the given client. interval <= 0
// uses DefaultPollInterval. onDegraded may be nil.
func NewSynchronizer(client *Client, log zerolog.Logger, interval time.Duration, onDegraded DegradedFunc) *Synchronizer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		client:     client,
		log:        log,
		interval:   interval,
		onDegraded: onDegraded,
		loops:      make(map[string]*pollLoop),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscribe registers fn for the group's updates and returns the handle that
// owns the registration. The first subscriber starts the group's polling
// loop; later subscribers join it.
func (s *Synchronizer) Subscribe(groupID string, fn UpdateFunc) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop, ok := s.loops[groupID]
	if !ok {
		ctx, cancel := context.WithCancel(s.ctx)
		loop = &pollLoop{
			groupID: groupID,
			sync:    s,
			cancel:  cancel,
			handles: make(map[*Handle]UpdateFunc),
		}
		s.loops[groupID] = loop
		go loop.run(ctx)
	}

	h := &Handle{loop: loop}
	loop.mu.Lock()
	loop.handles[h] = fn
	loop.mu.Unlock()
	return h
}

// Close stops every polling loop. Open handles become inert.
func (s *Synchronizer) Close() {
	s.cancel()
	s.mu.Lock()
	s.loops = make(map[string]*pollLoop)
	s.mu.Unlock()
}

func (s *Synchronizer) release(loop *pollLoop, h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loop.mu.Lock()
	delete(loop.handles, h)
	empty := len(loop.handles) == 0
	loop.mu.Unlock()

	if empty && s.loops[loop.groupID] == loop {
		loop.cancel()
		delete(s.loops, loop.groupID)
	}
}

// Handle owns one subscription. Closing it is idempotent; once closed, its
// callback receives nothing, including results of fetches already in flight.
type Handle struct {
	loop   *pollLoop
	once   sync.Once
	closed atomic.Bool
}

// Close releases the subscription. The last handle on a group stops the
// group's polling loop.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		h.loop.sync.release(h.loop, h)
	})
}

// Messages returns the latest delivered snapshot for the handle's group,
// oldest first. It never fails; before the first successful poll, or after
// Close, it returns an empty list.
func (h *Handle) Messages() []models.Message {
	if h.closed.Load() {
		return []models.Message{}
	}
	return h.loop.snapshotCopy()
}

// pollLoop is the shared per-group fetch loop.
type pollLoop struct {
	groupID string
	sync    *Synchronizer
	cancel  context.CancelFunc

	mu       sync.Mutex
	handles  map[*Handle]UpdateFunc
	snapshot []models.Message

	failures int
	degraded bool
}

func (l *pollLoop) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		msgs, err := l.sync.client.ListMessages(ctx, l.groupID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.recordFailure(err)
		} else {
			sort.SliceStable(msgs, func(i, j int) bool {
				return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
			})
			l.deliver(ctx, msgs)
		}

		// Rearm only after the fetch finished, so slow responses never
		// stack concurrent fetches for the same group.
		timer.Reset(l.sync.interval)
	}
}

// deliver stores the snapshot and fans it out. A handle closed while the
// fetch was in flight is skipped.
func (l *pollLoop) deliver(ctx context.Context, msgs []models.Message) {
	if msgs == nil {
		msgs = []models.Message{}
	}

	l.mu.Lock()
	if ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.snapshot = msgs
	targets := make([]*Handle, 0, len(l.handles))
	fns := make([]UpdateFunc, 0, len(l.handles))
	for h, fn := range l.handles {
		targets = append(targets, h)
		fns = append(fns, fn)
	}
	wasDegraded := l.degraded
	l.failures = 0
	l.degraded = false
	l.mu.Unlock()

	if wasDegraded && l.sync.onDegraded != nil {
		l.sync.onDegraded(l.groupID, false)
	}

	for i, h := range targets {
		if h.closed.Load() || fns[i] == nil {
			continue
		}
		fns[i](msgs)
	}
}

func (l *pollLoop) recordFailure(err error) {
	l.mu.Lock()
	l.failures++
	justDegraded := !l.degraded && l.failures >= degradedThreshold
	if justDegraded {
		l.degraded = true
	}
	failures := l.failures
	l.mu.Unlock()

	l.sync.log.Warn().Err(err).Str("group_id", l.groupID).Int("consecutive_failures", failures).Msg("message poll failed")
	if justDegraded && l.sync.onDegraded != nil {
		l.sync.onDegraded(l.groupID, true)
	}
}

func (l *pollLoop) snapshotCopy() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, len(l.snapshot))
	copy(out, l.snapshot)
	return out
}
