package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"project-chat/internal/attachments"
	"project-chat/internal/cache"
	"project-chat/internal/models"
	"project-chat/internal/observability"
	"project-chat/internal/repositories"
	"project-chat/internal/telemetry"
)

// MessageCache is the part of the message cache the handler needs.
type MessageCache interface {
	Get(ctx context.Context, groupID string) ([]models.Message, error)
	Set(ctx context.Context, groupID string, msgs []models.Message) error
	Invalidate(ctx context.Context, groupID string) error
}

// IdempotencyStore deduplicates send attempts by client token.
type IdempotencyStore interface {
	Lookup(ctx context.Context, token string) (models.Message, error)
	Remember(ctx context.Context, token string, msg models.Message) error
}

// MessageHandler manages message endpoints for a group.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	groupRepo   repositories.GroupRepository
	msgCache    MessageCache
	idem        IdempotencyStore
	files       attachments.Store
	notifier    *DirectoryNotifier
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler. Cache, idempotency store and
// file store may be nil; the matching features degrade gracefully.
func NewMessageHandler(
	messageRepo repositories.MessageRepository,
	groupRepo repositories.GroupRepository,
	msgCache MessageCache,
	idem IdempotencyStore,
	files attachments.Store,
	notifier *DirectoryNotifier,
	audit *telemetry.AuditEmitter,
) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		groupRepo:   groupRepo,
		msgCache:    msgCache,
		idem:        idem,
		files:       files,
		notifier:    notifier,
		audit:       audit,
	}
}

// GetMessages returns the group's full message list, newest first. This is
// the 2s polling target, so hits are served from the short-TTL cache when
// possible.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	groupID := c.Param("group_id")

	userID := c.GetString("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	if h.msgCache != nil {
		if msgs, err := h.msgCache.Get(c.Request.Context(), groupID); err == nil {
			observability.IncMessageListFetch("cache")
			c.JSON(http.StatusOK, gin.H{"messages": msgs})
			return
		}
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	if h.msgCache != nil {
		_ = h.msgCache.Set(c.Request.Context(), groupID, msgs)
	}
	observability.IncMessageListFetch("db")
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage persists a text message. The sender identity comes from the
// token, never the body, so a client cannot impersonate another user.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	groupID := c.Param("group_id")

	userID := c.GetString("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if replayed, ok := h.replayIdempotent(c); ok {
		c.JSON(http.StatusOK, replayed)
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), models.Message{
		GroupID:      groupID,
		SenderID:     userID,
		SenderName:   c.GetString("userName"),
		SenderAvatar: c.GetString("userAvatar"),
		Text:         req.Text,
	})
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.finishSend(c, groupID, msg, "text")
	c.JSON(http.StatusCreated, msg)
}

// Upload persists a file message as one atomic operation: the blob is stored
// first and removed again when the message row cannot be created, so history
// never references a missing file and storage holds no orphans.
func (h *MessageHandler) Upload(c *gin.Context) {
	groupID := c.Param("group_id")

	userID := c.GetString("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	if h.files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	if replayed, ok := h.replayIdempotent(c); ok {
		c.JSON(http.StatusOK, replayed)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer src.Close()

	name := filepath.Base(fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	key := groupID + "/" + uuid.NewString() + "-" + name

	url, err := h.files.Put(c.Request.Context(), key, src, fileHeader.Size, contentType)
	if err != nil {
		h.emitAudit(c, "ERROR", "file store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), models.Message{
		GroupID:      groupID,
		SenderID:     userID,
		SenderName:   c.GetString("userName"),
		SenderAvatar: c.GetString("userAvatar"),
		Text:         strings.TrimSpace(c.PostForm("text")),
		FileName:     name,
		FileURL:      url,
		FileType:     contentType,
		FileSize:     fileHeader.Size,
	})
	if err != nil {
		// roll the blob back so no orphan survives the failed send
		_ = h.files.Delete(c.Request.Context(), key)
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.finishSend(c, groupID, msg, "file")
	c.JSON(http.StatusCreated, msg)
}

// PostReaction records an emoji reaction with set semantics.
func (h *MessageHandler) PostReaction(c *gin.Context) {
	groupID := c.Param("group_id")
	messageID := c.Param("message_id")

	userID := c.GetString("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messageRepo.AddReaction(c.Request.Context(), groupID, messageID, userID, req.Emoji); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		h.emitAudit(c, "ERROR", "could not add reaction")
		c.JSON(status, gin.H{"error": "could not add reaction"})
		return
	}

	if h.msgCache != nil {
		_ = h.msgCache.Invalidate(c.Request.Context(), groupID)
	}
	h.emitAudit(c, "INFO", "Reaction added")
	c.Status(http.StatusNoContent)
}

// MarkRead acknowledges messages for the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	groupID := c.Param("group_id")

	userID := c.GetString("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	var req struct {
		MessageIDs []string `json:"message_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messageRepo.MarkRead(c.Request.Context(), groupID, userID, req.MessageIDs); err != nil {
		h.emitAudit(c, "ERROR", "could not mark read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark read"})
		return
	}

	if h.msgCache != nil {
		_ = h.msgCache.Invalidate(c.Request.Context(), groupID)
	}
	c.Status(http.StatusNoContent)
}

// replayIdempotent returns the previously stored message for the request's
// idempotency token, if one exists.
func (h *MessageHandler) replayIdempotent(c *gin.Context) (models.Message, bool) {
	if h.idem == nil {
		return models.Message{}, false
	}
	token := c.GetHeader("X-Idempotency-Key")
	if token == "" {
		return models.Message{}, false
	}
	msg, err := h.idem.Lookup(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.emitAudit(c, "ERROR", "idempotency lookup failed")
		}
		return models.Message{}, false
	}
	h.emitAudit(c, "INFO", "Duplicate send replayed")
	return msg, true
}

func (h *MessageHandler) finishSend(c *gin.Context, groupID string, msg models.Message, kind string) {
	if h.idem != nil {
		if token := c.GetHeader("X-Idempotency-Key"); token != "" {
			_ = h.idem.Remember(c.Request.Context(), token, msg)
		}
	}
	if h.msgCache != nil {
		_ = h.msgCache.Invalidate(c.Request.Context(), groupID)
	}

	// Posting bumps the group's updated_at; push new ordering to members.
	if err := h.groupRepo.Touch(c.Request.Context(), groupID); err == nil {
		if group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID); err == nil {
			h.notifier.NotifyMembers(c.Request.Context(), group.Members)
		}
	}

	observability.IncMessageSent(kind)
	h.emitAudit(c, "INFO", "Message sent")
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
