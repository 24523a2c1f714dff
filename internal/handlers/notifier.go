package handlers

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"project-chat/internal/repositories"
	"project-chat/internal/ws"
)

// DirectoryNotifier recomputes and pushes the group directory for users whose
// group list just changed. Pushes for different users run concurrently; a
// failed push for one user does not block the others.
type DirectoryNotifier struct {
	groupRepo repositories.GroupRepository
	hub       *ws.Hub
	log       zerolog.Logger
}

// NewDirectoryNotifier constructs a DirectoryNotifier.
func NewDirectoryNotifier(groupRepo repositories.GroupRepository, hub *ws.Hub, log zerolog.Logger) *DirectoryNotifier {
	return &DirectoryNotifier{groupRepo: groupRepo, hub: hub, log: log}
}

// NotifyMembers pushes fresh directory snapshots to every listed user that
// currently holds a directory stream.
func (n *DirectoryNotifier) NotifyMembers(ctx context.Context, userIDs []string) {
	if n == nil || n.hub == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, userID := range userIDs {
		if !n.hub.HasListeners(userID) {
			continue
		}
		userID := userID
		g.Go(func() error {
			groups, err := n.groupRepo.ListGroupsForUser(gctx, userID)
			if err != nil {
				n.log.Error().Err(err).Str("user_id", userID).Msg("directory push failed")
				return nil
			}
			n.hub.PushDirectory(userID, groups)
			return nil
		})
	}
	_ = g.Wait()
}
