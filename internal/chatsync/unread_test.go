package chatsync

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"project-chat/internal/models"
)

func TestUnreadRecompute(t *testing.T) {
	tracker := NewUnreadTracker("u1")

	msgs := []models.Message{
		{ID: "m1", SenderID: "u1"},                                        // own message
		{ID: "m2", SenderID: "u2"},                                        // unread
		{ID: "m3", SenderID: "u2", ReadBy: pq.StringArray{"u1"}},          // read
		{ID: "m4", SenderID: "u3", ReadBy: pq.StringArray{"u2", "u3"}},    // unread
		{ID: "m5", SenderID: "u1", ReadBy: pq.StringArray{"u2"}},          // own, read by other
	}

	require.Equal(t, 2, tracker.Recompute("p1", msgs))
	require.Equal(t, 2, tracker.Count("p1"))

	// marking everything read drops the count to zero on the next batch
	for i := range msgs {
		msgs[i].ReadBy = pq.StringArray{"u1"}
	}
	require.Equal(t, 0, tracker.Recompute("p1", msgs))
}

func TestUnreadTotalSumsGroups(t *testing.T) {
	tracker := NewUnreadTracker("u1")
	tracker.Recompute("p1", []models.Message{{ID: "a", SenderID: "u2"}})
	tracker.Recompute("p2", []models.Message{
		{ID: "b", SenderID: "u2"},
		{ID: "c", SenderID: "u3"},
	})

	require.Equal(t, 1, tracker.Count("p1"))
	require.Equal(t, 2, tracker.Count("p2"))
	require.Equal(t, 3, tracker.Total())
	require.Equal(t, 0, tracker.Count("unknown"))

	tracker.Forget("p2")
	require.Equal(t, 1, tracker.Total())
}
