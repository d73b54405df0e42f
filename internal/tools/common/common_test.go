package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claudia-labs/claudia/internal/server"
	"github.com/claudia-labs/claudia/internal/tokens"
)

func TestGetUserFromArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    string
		wantErr bool
	}{
		{"present", map[string]any{"user": "U123"}, "U123", false},
		{"missing", map[string]any{}, "", true},
		{"empty", map[string]any{"user": ""}, "", true},
		{"wrong type", map[string]any{"user": 42}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetUserFromArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubRefresher struct{ err error }

func (s *stubRefresher) Refresh(context.Context, string) (*tokens.TokenResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tokens.TokenResult{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestTokenForUser_NotConnected(t *testing.T) {
	store := tokens.NewMemoryStore()
	manager := tokens.NewManager(store, &stubRefresher{}, nil)
	sc := server.NewServerContext(context.Background(), server.Deps{Manager: manager})

	_, err := TokenForUser(context.Background(), sc, "U404")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/connect")
}

func TestTokenForUser_ValidToken(t *testing.T) {
	store := tokens.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), &tokens.CredentialRecord{
		UserID:      "U123",
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
	manager := tokens.NewManager(store, &stubRefresher{}, nil)
	sc := server.NewServerContext(context.Background(), server.Deps{Manager: manager})

	token, err := TokenForUser(context.Background(), sc, "U123")

	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}
