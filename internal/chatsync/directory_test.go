package chatsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"project-chat/internal/models"
)

func TestDirectoryStartFiltersMalformedGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/groups" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"groups": []models.Group{
			{ID: "p1", Name: "Launch", Members: pq.StringArray{"u1"}},
			{ID: "", Name: "broken", Members: pq.StringArray{"u1"}}, // no id
			{ID: "p2", Name: "no members"},                          // nil members
		}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", srv.Client())
	updates := make(chan []models.Group, 1)
	dir := NewDirectory(client, zerolog.Nop(), time.Hour, func(groups []models.Group) {
		select {
		case updates <- groups:
		default:
		}
	})

	require.NoError(t, dir.Start(context.Background()))
	defer dir.Stop()

	select {
	case groups := <-updates:
		require.Len(t, groups, 1)
		require.Equal(t, "p1", groups[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no directory update")
	}
	require.Len(t, dir.Groups(), 1)
}

func TestDirectoryStartFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", srv.Client())
	dir := NewDirectory(client, zerolog.Nop(), time.Hour, nil)
	require.Error(t, dir.Start(context.Background()))
}

func TestDirectoryStopIsSafeWithoutStart(t *testing.T) {
	dir := NewDirectory(NewClient("http://localhost:0", "tok", nil), zerolog.Nop(), time.Hour, nil)
	dir.Stop()
	dir.Stop()
}
