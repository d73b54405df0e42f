package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/claudia-labs/claudia/internal/instrumentation"
)

type fakeRefresher struct {
	result *TokenResult
	err    error
	calls  int
	// hook runs before returning, letting tests mutate the store mid-refresh.
	hook func()
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*TokenResult, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestManager(t *testing.T, store Store, refresher Refresher) *Manager {
	t.Helper()
	m := NewManager(store, refresher, slog.Default())
	m.now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestGetValidToken_NotConnected(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{}
	m := newTestManager(t, store, refresher)

	_, err := m.GetValidToken(context.Background(), "U123")

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, refresher.calls, "refresh should not be attempted for unknown users")
}

func TestGetValidToken_FreshTokenSkipsRefresh(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{}
	m := newTestManager(t, store, refresher)

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "fresh-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now().Add(30 * time.Minute),
	}))

	token, err := m.GetValidToken(context.Background(), "U123")

	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Zero(t, refresher.calls)
}

func TestGetValidToken_ExpiredTokenRefreshes(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{
		result: &TokenResult{
			AccessToken:  "new-token",
			RefreshToken: "refresh-2",
			Expiry:       time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
		},
	}
	m := newTestManager(t, store, refresher)

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now().Add(-time.Minute),
	}))

	token, err := m.GetValidToken(context.Background(), "U123")

	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
	assert.Equal(t, 1, refresher.calls)

	rec, err := store.Get(context.Background(), "U123")
	require.NoError(t, err)
	assert.Equal(t, "new-token", rec.AccessToken)
	assert.Equal(t, "refresh-2", rec.RefreshToken)
	assert.Equal(t,
		time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC).Add(-ExpiryMargin),
		rec.ExpiresAt,
		"stored expiry should carry the safety margin")
}

func TestGetValidToken_ExpiryAtBoundaryRefreshes(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{
		result: &TokenResult{
			AccessToken:  "new-token",
			RefreshToken: "refresh-2",
			Expiry:       time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
		},
	}
	m := newTestManager(t, store, refresher)

	// ExpiresAt exactly equal to now counts as expired.
	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now(),
	}))

	token, err := m.GetValidToken(context.Background(), "U123")

	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
	assert.Equal(t, 1, refresher.calls)
}

func TestGetValidToken_InvalidGrantPurgesRecord(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{
		err: fmt.Errorf("%w: AADSTS70000 refresh token revoked", ErrInvalidGrant),
	}
	m := newTestManager(t, store, refresher)

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now().Add(-time.Minute),
	}))

	_, err := m.GetValidToken(context.Background(), "U123")

	assert.ErrorIs(t, err, ErrReauthorizationRequired)

	_, err = store.Get(context.Background(), "U123")
	assert.ErrorIs(t, err, ErrNoRecord, "rejected credentials must be purged")

	// The next call reports not-connected instead of failing again.
	_, err = m.GetValidToken(context.Background(), "U123")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetValidToken_TransientFailureKeepsRecord(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{err: errors.New("dial tcp: connection refused")}
	m := newTestManager(t, store, refresher)

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now().Add(-time.Minute),
	}))

	_, err := m.GetValidToken(context.Background(), "U123")

	assert.ErrorIs(t, err, ErrTransientExchange)

	rec, getErr := store.Get(context.Background(), "U123")
	require.NoError(t, getErr)
	assert.Equal(t, "refresh-1", rec.RefreshToken, "transient failure must not mutate the record")
}

func TestGetValidToken_RefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{
		result: &TokenResult{
			AccessToken: "new-token",
			Expiry:      time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
		},
	}
	m := newTestManager(t, store, refresher)

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now().Add(-time.Minute),
	}))

	token, err := m.GetValidToken(context.Background(), "U123")

	require.NoError(t, err)
	assert.Equal(t, "new-token", token)

	rec, err := store.Get(context.Background(), "U123")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", rec.RefreshToken)
}

func TestGetValidToken_ConcurrentRefreshUsesWinner(t *testing.T) {
	store := NewMemoryStore()
	refresher := &fakeRefresher{
		result: &TokenResult{
			AccessToken:  "loser-token",
			RefreshToken: "loser-refresh",
			Expiry:       time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
		},
	}
	m := newTestManager(t, store, refresher)

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    m.now().Add(-time.Minute),
	}))

	// Simulate another instance completing its refresh first: by the time
	// this refresh returns, the stored refresh token has rotated.
	refresher.hook = func() {
		_ = store.Put(context.Background(), &CredentialRecord{
			UserID:       "U123",
			AccessToken:  "winner-token",
			RefreshToken: "winner-refresh",
			ExpiresAt:    m.now().Add(55 * time.Minute),
		})
	}

	token, err := m.GetValidToken(context.Background(), "U123")

	require.NoError(t, err)
	assert.Equal(t, "winner-token", token, "loser must adopt the winner's token")

	rec, err := store.Get(context.Background(), "U123")
	require.NoError(t, err)
	assert.Equal(t, "winner-refresh", rec.RefreshToken, "winner's rotation must survive")
}

func TestConnect_StoresRecordWithMargin(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, store, &fakeRefresher{})

	expiry := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	err := m.Connect(context.Background(), "U777", &TokenResult{
		AccessToken:  "tok",
		RefreshToken: "ref",
		Expiry:       expiry,
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "U777")
	require.NoError(t, err)
	assert.Equal(t, expiry.Add(-ExpiryMargin), rec.ExpiresAt)

	connected, err := m.Connected(context.Background(), "U777")
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestDisconnect_RemovesRecord(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, store, &fakeRefresher{})

	require.NoError(t, store.Put(context.Background(), &CredentialRecord{
		UserID:       "U123",
		RefreshToken: "refresh-1",
	}))

	require.NoError(t, m.Disconnect(context.Background(), "U123"))

	connected, err := m.Connected(context.Background(), "U123")
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestGetValidToken_RefreshOutcomesRecorded(t *testing.T) {
	tests := []struct {
		name       string
		refresher  *fakeRefresher
		wantResult string
	}{
		{
			name: "success",
			refresher: &fakeRefresher{result: &TokenResult{
				AccessToken:  "new-token",
				RefreshToken: "refresh-2",
				Expiry:       time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
			}},
			wantResult: "success",
		},
		{
			name:       "invalid grant",
			refresher:  &fakeRefresher{err: fmt.Errorf("%w: revoked", ErrInvalidGrant)},
			wantResult: "invalid_grant",
		},
		{
			name:       "transient failure",
			refresher:  &fakeRefresher{err: errors.New("dial tcp: connection refused")},
			wantResult: "transient_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
			metrics, err := instrumentation.NewMetrics(meter, false)
			require.NoError(t, err)

			store := NewMemoryStore()
			m := newTestManager(t, store, tt.refresher)
			m.SetMetrics(metrics)

			require.NoError(t, store.Put(context.Background(), &CredentialRecord{
				UserID:       "U123",
				AccessToken:  "stale-token",
				RefreshToken: "refresh-1",
				ExpiresAt:    m.now().Add(-time.Minute),
			}))

			_, _ = m.GetValidToken(context.Background(), "U123")

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(context.Background(), &rm))

			counts := map[string]int64{}
			for _, sm := range rm.ScopeMetrics {
				for _, mt := range sm.Metrics {
					if mt.Name != "oauth_token_refresh_total" {
						continue
					}
					sum, ok := mt.Data.(metricdata.Sum[int64])
					require.True(t, ok)
					for _, dp := range sum.DataPoints {
						result, _ := dp.Attributes.Value(attribute.Key("result"))
						counts[result.AsString()] += dp.Value
					}
				}
			}
			assert.Equal(t, map[string]int64{tt.wantResult: 1}, counts)
		})
	}
}
