package chatsync

import (
	"sync"

	"project-chat/internal/models"
)

// UnreadTracker derives per-group unread counts from delivered message
// batches. Counts are recomputed from scratch on every batch, so they stay
// correct however the list changed between polls.
type UnreadTracker struct {
	userID string

	mu     sync.RWMutex
	counts map[string]int
}

// NewUnreadTracker builds a tracker for the given user.
func NewUnreadTracker(userID string) *UnreadTracker {
	return &UnreadTracker{
		userID: userID,
		counts: make(map[string]int),
	}
}

// Recompute replaces the group's unread count from the full message list and
// returns the new count. A message is unread when someone else sent it and
// the user is not in its read_by set.
func (t *UnreadTracker) Recompute(groupID string, msgs []models.Message) int {
	count := 0
	for _, msg := range msgs {
		if msg.UnreadFor(t.userID) {
			count++
		}
	}

	t.mu.Lock()
	t.counts[groupID] = count
	t.mu.Unlock()
	return count
}

// Count returns the group's last computed unread count, zero for unknown
// groups.
func (t *UnreadTracker) Count(groupID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[groupID]
}

// Total sums the stored per-group counts.
func (t *UnreadTracker) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, c := range t.counts {
		total += c
	}
	return total
}

// Forget drops the group's count, used when the user leaves a group.
func (t *UnreadTracker) Forget(groupID string) {
	t.mu.Lock()
	delete(t.counts, groupID)
	t.mu.Unlock()
}
