package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestReactionSetAddIsSetSemantics(t *testing.T) {
	set := ReactionSet{}

	require.True(t, set.Add("👍", "u1"))
	require.False(t, set.Add("👍", "u1")) // same user, same emoji: no-op
	require.True(t, set.Add("👍", "u2"))
	require.True(t, set.Add("🎉", "u1")) // same user, different emoji

	require.Len(t, set["👍"], 2)
	require.Len(t, set["🎉"], 1)
	require.True(t, set.Has("👍", "u1"))
	require.False(t, set.Has("🎉", "u2"))
}

func TestReactionSetScanRoundTrip(t *testing.T) {
	set := ReactionSet{"👍": {"u1", "u2"}}
	val, err := set.Value()
	require.NoError(t, err)

	var out ReactionSet
	require.NoError(t, out.Scan(val))
	require.Equal(t, set, out)

	var empty ReactionSet
	require.NoError(t, empty.Scan(nil))
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestMessageUnreadFor(t *testing.T) {
	msg := Message{SenderID: "u2", ReadBy: pq.StringArray{"u3"}}
	require.True(t, msg.UnreadFor("u1"))
	require.False(t, msg.UnreadFor("u2")) // own message
	require.False(t, msg.UnreadFor("u3")) // already read

	withFile := Message{FileName: "a.txt", FileURL: "http://x/a.txt"}
	require.True(t, withFile.HasFile())
}

func TestGroupRenderable(t *testing.T) {
	require.True(t, Group{ID: "p1", Name: "x", Members: pq.StringArray{"u1"}}.Renderable())
	require.False(t, Group{Name: "x", Members: pq.StringArray{"u1"}}.Renderable())
	require.False(t, Group{ID: "p1", Name: "x"}.Renderable())
}
