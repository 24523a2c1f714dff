package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"project-chat/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group persistence. Groups mirror project team
// membership, so creation and membership changes come from the project
// provisioning flow rather than chat users.
type GroupRepository interface {
	CreateGroup(ctx context.Context, id, name, creatorID string, memberIDs []string) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	Touch(ctx context.Context, groupID string) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `g.id, g.name, g.creator_id, g.created_at, g.updated_at, array_agg(gm.user_id) AS members`

// CreateGroup creates a group and its members atomically. The id is the
// project id the group belongs to.
func (r *GroupRepo) CreateGroup(ctx context.Context, id, name, creatorID string, memberIDs []string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO groups (id, name, creator_id) VALUES ($1, $2, $3) RETURNING id, name, creator_id, created_at, updated_at`,
		id, name, creatorID).
		Scan(&group.ID, &group.Name, &group.CreatorID, &group.CreatedAt, &group.UpdatedAt); err != nil {
		return models.Group{}, err
	}

	// ensure creator present and dedupe members
	memberSet := map[string]struct{}{creatorID: {}}
	for _, m := range memberIDs {
		memberSet[m] = struct{}{}
	}
	members := make([]string, 0, len(memberSet))
	for m := range memberSet {
		members = append(members, m)
	}
	sort.Strings(members)

	for _, m := range members {
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, m); err != nil {
			return models.Group{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	group.Members = pq.StringArray(members)
	return group, nil
}

// ListGroupsForUser returns groups that include the user, most recently
// updated first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT `+groupColumns+`
        FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE g.id IN (SELECT group_id FROM group_members WHERE user_id=$1)
        GROUP BY g.id
        ORDER BY g.updated_at DESC`, userID)
	return groups, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// GetGroup fetches a single group with its member set.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+`
        FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE g.id=$1
        GROUP BY g.id`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// AddMember adds a user to the group, mirroring a project team change.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID); err != nil {
		return err
	}
	return r.Touch(ctx, groupID)
}

// RemoveMember removes a user from the group.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID); err != nil {
		return err
	}
	return r.Touch(ctx, groupID)
}

// Touch bumps updated_at so the group surfaces first in directory listings.
func (r *GroupRepo) Touch(ctx context.Context, groupID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET updated_at = NOW() WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}
