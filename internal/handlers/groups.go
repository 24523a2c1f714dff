package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"project-chat/internal/repositories"
	"project-chat/internal/telemetry"
)

// GroupHandler manages group endpoints. Groups are provisioned alongside
// projects, so membership changes arrive from the project flow rather than
// from chat users directly.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	notifier  *DirectoryNotifier
	audit     *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, notifier *DirectoryNotifier, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groupRepo: groupRepo,
		notifier:  notifier,
		audit:     audit,
	}
}

// CreateGroup handles POST /api/groups. The id is the project id the chat
// channel belongs to.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		ID        string   `json:"id" binding:"required"`
		Name      string   `json:"name" binding:"required"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), req.ID, req.Name, userID, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.notifier.NotifyMembers(c.Request.Context(), group.Members)
	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns groups the caller belongs to, most recently updated
// first.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetString("userID")
	groups, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// AddMember handles POST /api/groups/:group_id/members.
func (h *GroupHandler) AddMember(c *gin.Context) {
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
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groupRepo.AddMember(c.Request.Context(), groupID, req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		h.emitAudit(c, "ERROR", "could not add member")
		c.JSON(status, gin.H{"error": "could not add member"})
		return
	}

	h.notifyGroup(c, groupID)
	h.emitAudit(c, "INFO", "Group member added")
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/groups/:group_id/members/:user_id.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID := c.Param("group_id")
	targetID := c.Param("user_id")

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

	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, targetID); err != nil {
		h.emitAudit(c, "ERROR", "could not remove member")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	// The removed user also gets a push so their directory drops the group.
	h.notifier.NotifyMembers(c.Request.Context(), []string{targetID})
	h.notifyGroup(c, groupID)
	h.emitAudit(c, "INFO", "Group member removed")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) notifyGroup(c *gin.Context, groupID string) {
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		return
	}
	h.notifier.NotifyMembers(c.Request.Context(), group.Members)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
