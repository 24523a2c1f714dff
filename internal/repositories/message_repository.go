package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"project-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListMessages(ctx context.Context, groupID string) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	AddReaction(ctx context.Context, groupID, messageID, userID, emoji string) error
	MarkRead(ctx context.Context, groupID, userID string, messageIDs []string) error
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, group_id, sender_id, sender_name, sender_avatar, text, file_name, file_url, file_type, file_size, reactions, read_by, created_at`

// CreateMessage persists a message and returns the canonical record with the
// server-assigned id and timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Reactions == nil {
		msg.Reactions = models.ReactionSet{}
	}

	var out models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages
        (id, group_id, sender_id, sender_name, sender_avatar, text, file_name, file_url, file_type, file_size, reactions)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING `+messageColumns,
		msg.ID, msg.GroupID, msg.SenderID, msg.SenderName, msg.SenderAvatar,
		msg.Text, msg.FileName, msg.FileURL, msg.FileType, msg.FileSize, msg.Reactions).
		StructScan(&out)
	return out, err
}

// ListMessages returns the group's full message list, newest first. Callers
// that need display order sort ascending themselves.
func (r *MessageRepo) ListMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE group_id=$1 ORDER BY created_at DESC`, groupID)
	return msgs, err
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// AddReaction records a reaction with set semantics: reacting twice with the
// same emoji leaves a single entry. The row is locked so concurrent reactions
// to one message serialize.
func (r *MessageRepo) AddReaction(ctx context.Context, groupID, messageID, userID, emoji string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var reactions models.ReactionSet
	err = tx.QueryRowxContext(ctx, `SELECT reactions FROM messages WHERE id=$1 AND group_id=$2 FOR UPDATE`, messageID, groupID).
		Scan(&reactions)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrMessageNotFound
		return err
	}
	if err != nil {
		return err
	}

	if !reactions.Add(emoji, userID) {
		// already present, nothing to write
		err = tx.Commit()
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE messages SET reactions=$1 WHERE id=$2`, reactions, messageID); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// MarkRead appends the user to read_by for the given messages, skipping rows
// that already contain the user.
func (r *MessageRepo) MarkRead(ctx context.Context, groupID, userID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE messages
        SET read_by = (SELECT array_agg(DISTINCT u) FROM unnest(array_append(read_by, $1)) AS u)
        WHERE group_id=$2 AND id = ANY($3) AND NOT (read_by @> ARRAY[$1])`,
		userID, groupID, pq.Array(messageIDs))
	return err
}
