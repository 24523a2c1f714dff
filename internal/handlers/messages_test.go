package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"project-chat/internal/cache"
	"project-chat/internal/mocks"
	"project-chat/internal/models"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Set("userName", "alice")
		c.Set("userAvatar", "a.png")
		c.Next()
	})
	r.GET("/api/groups/:group_id/messages", handler.GetMessages)
	r.POST("/api/groups/:group_id/messages", handler.PostMessage)
	r.POST("/api/groups/:group_id/messages/:message_id/reaction", handler.PostReaction)
	r.POST("/api/groups/:group_id/messages/read", handler.MarkRead)
	r.POST("/api/groups/:group_id/upload", handler.Upload)
	return r
}

func TestGetMessagesCacheMiss(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	msgCache := new(mocks.MessageCacheMock)
	handler := NewMessageHandler(messageRepo, groupRepo, msgCache, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	listed := []models.Message{{ID: "m2", GroupID: "p1"}, {ID: "m1", GroupID: "p1"}}
	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	msgCache.On("Get", mock.Anything, "p1").Return(([]models.Message)(nil), cache.ErrCacheMiss).Once()
	messageRepo.On("ListMessages", mock.Anything, "p1").Return(listed, nil).Once()
	msgCache.On("Set", mock.Anything, "p1", listed).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/groups/p1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	groupRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	msgCache.AssertExpectations(t)
}

func TestGetMessagesCacheHitSkipsRepo(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	msgCache := new(mocks.MessageCacheMock)
	handler := NewMessageHandler(messageRepo, groupRepo, msgCache, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	msgCache.On("Get", mock.Anything, "p1").Return([]models.Message{{ID: "m1"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/groups/p1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
	msgCache.AssertExpectations(t)
}

func TestGetMessagesForbiddenForNonMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), groupRepo, nil, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/groups/p1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestPostMessageSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	msgCache := new(mocks.MessageCacheMock)
	handler := NewMessageHandler(messageRepo, groupRepo, msgCache, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.GroupID == "p1" && msg.SenderID == "u1" && msg.Text == "hello"
	})).Return(models.Message{ID: "m1", GroupID: "p1", SenderID: "u1", Text: "hello"}, nil).Once()
	msgCache.On("Invalidate", mock.Anything, "p1").Return(nil).Once()
	groupRepo.On("Touch", mock.Anything, "p1").Return(nil).Once()
	groupRepo.On("GetGroup", mock.Anything, "p1").Return(models.Group{ID: "p1"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/messages", bytes.NewBufferString(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "m1", resp.ID)
	groupRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	msgCache.AssertExpectations(t)
}

func TestPostMessageRejectsEmptyText(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(messageRepo, groupRepo, nil, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/messages", bytes.NewBufferString(`{"text":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestPostMessageIdempotentReplay(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	idem := new(mocks.IdempotencyStoreMock)
	handler := NewMessageHandler(messageRepo, groupRepo, nil, idem, nil, nil, nil)
	router := setupMessageRouter(handler)

	stored := models.Message{ID: "m1", GroupID: "p1", Text: "hello"}
	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	idem.On("Lookup", mock.Anything, "tok-1").Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/messages", bytes.NewBufferString(`{"text":"hello"}`))
	req.Header.Set("X-Idempotency-Key", "tok-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "m1", resp.ID)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	idem.AssertExpectations(t)
}

func multipartBody(t *testing.T, text string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("file contents"))
	require.NoError(t, err)
	if text != "" {
		require.NoError(t, w.WriteField("text", text))
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestUploadSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	files := new(mocks.AttachmentStoreMock)
	handler := NewMessageHandler(messageRepo, groupRepo, nil, nil, files, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	files.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.Anything, mock.AnythingOfType("int64"), mock.AnythingOfType("string")).
		Return("https://files.example/notes.txt", nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.GroupID == "p1" && msg.FileName == "notes.txt" && msg.FileURL == "https://files.example/notes.txt"
	})).Return(models.Message{ID: "m1", GroupID: "p1", FileName: "notes.txt"}, nil).Once()
	groupRepo.On("Touch", mock.Anything, "p1").Return(nil).Once()
	groupRepo.On("GetGroup", mock.Anything, "p1").Return(models.Group{ID: "p1"}, nil).Once()

	body, contentType := multipartBody(t, "see attached")
	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	files.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	groupRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	files.AssertExpectations(t)
}

func TestUploadRemovesBlobWhenInsertFails(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	files := new(mocks.AttachmentStoreMock)
	handler := NewMessageHandler(messageRepo, groupRepo, nil, nil, files, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	files.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.Anything, mock.AnythingOfType("int64"), mock.AnythingOfType("string")).
		Return("https://files.example/notes.txt", nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, assert.AnError).Once()
	files.On("Delete", mock.Anything, mock.AnythingOfType("string")).Return(nil).Once()

	body, contentType := multipartBody(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	files.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostReactionSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	msgCache := new(mocks.MessageCacheMock)
	handler := NewMessageHandler(messageRepo, groupRepo, msgCache, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	messageRepo.On("AddReaction", mock.Anything, "p1", "m1", "u1", "👍").Return(nil).Once()
	msgCache.On("Invalidate", mock.Anything, "p1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/messages/m1/reaction", bytes.NewBufferString(`{"emoji":"👍"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertExpectations(t)
	msgCache.AssertExpectations(t)
}

func TestMarkReadSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	msgCache := new(mocks.MessageCacheMock)
	handler := NewMessageHandler(messageRepo, groupRepo, msgCache, nil, nil, nil, nil)
	router := setupMessageRouter(handler)

	groupRepo.On("IsMember", mock.Anything, "p1", "u1").Return(true, nil).Once()
	messageRepo.On("MarkRead", mock.Anything, "p1", "u1", []string{"m1", "m2"}).Return(nil).Once()
	msgCache.On("Invalidate", mock.Anything, "p1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/p1/messages/read", bytes.NewBufferString(`{"message_ids":["m1","m2"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertExpectations(t)
	msgCache.AssertExpectations(t)
}
