package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"project-chat/internal/auth"
	"project-chat/internal/observability"
	"project-chat/internal/repositories"
)

// DirectoryWebSocketHandler serves the live group-directory stream. The
// client receives its full ordered group list right after the handshake and
// again whenever membership or group ordering changes.
type DirectoryWebSocketHandler struct {
	hub       *Hub
	groupRepo repositories.GroupRepository
	tokens    *auth.Manager
}

// NewDirectoryWebSocketHandler constructs a DirectoryWebSocketHandler.
func NewDirectoryWebSocketHandler(hub *Hub, groupRepo repositories.GroupRepository, tokens *auth.Manager) *DirectoryWebSocketHandler {
	return &DirectoryWebSocketHandler{hub: hub, groupRepo: groupRepo, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client for directory
// pushes.
func (h *DirectoryWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("project-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	} else if len(token) > 7 {
		// strip "Bearer "
		token = token[7:]
	}

	user, err := h.tokens.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(user.ID, conn, info)

	observability.IncWSActive("directory")
	observability.IncWSEvent("directory", "ws_connect")
	_ = observability.PublishEvent(ctx, directoryRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "directory",
				"event":       "ws_connect",
				"conn_id":     info.ConnID,
				"duration_ms": 0,
				"reason":      "",
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	// Initial snapshot so the client does not wait for the first change.
	if groups, err := h.groupRepo.ListGroupsForUser(ctx, user.ID); err == nil {
		h.hub.PushDirectory(user.ID, groups)
	}

	// Keep connection alive and clean on close.
	go func() {
		defer func() {
			h.hub.RemoveClient(user.ID, conn)
			observability.DecWSActive("directory")
			observability.IncWSEvent("directory", "ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("directory", "ws_error")
				}
				return
			}
		}
	}()
}
