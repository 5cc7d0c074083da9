package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	token := newToken()
	require.Len(t, token, tokenLength)
	for _, c := range token {
		assert.Contains(t, tokenAlphabet, string(c))
	}
}

func TestNewTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token := newToken()
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestSSHNew(t *testing.T) {
	m := NewManager(nil)
	accountID := uuid.New()

	sess := m.SSHNew(accountID)
	assert.Equal(t, accountID, sess.AccountID)
	assert.Len(t, sess.Token, tokenLength)
	assert.Len(t, sess.RefreshToken, tokenLength)
	assert.NotEqual(t, sess.Token, sess.RefreshToken)
	assert.NotEqual(t, uuid.Nil, sess.ID)
}
