package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"project-chat/internal/models"
)

func TestIssueAndValidate(t *testing.T) {
	mgr := NewManager("test-secret", "project-chat", time.Hour)

	token, err := mgr.Issue(models.User{ID: "u1", Name: "alice", Avatar: "a.png"})
	require.NoError(t, err)

	user, err := mgr.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, "alice", user.Name)
	require.Equal(t, "a.png", user.Avatar)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", "project-chat", time.Hour).Issue(models.User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewManager("secret-b", "project-chat", time.Hour).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	token, err := NewManager("test-secret", "project-chat", -time.Minute).Issue(models.User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewManager("test-secret", "project-chat", time.Hour).Validate(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}
