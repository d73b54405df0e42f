package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claudia-labs/claudia/internal/instrumentation"
	"github.com/claudia-labs/claudia/internal/logging"
)

// ExpiryMargin is subtracted from the issuer's reported expiry when a token
// is stored, so tokens are refreshed before they can expire mid-request.
const ExpiryMargin = 5 * time.Minute

// TokenResult is a freshly issued token set from the identity platform.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Refresher exchanges a refresh token for a new token set. Failures caused
// by a rejected refresh token must be wrapped with ErrInvalidGrant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenResult, error)
}

// Manager owns the credential lifecycle: it stores token sets after
// authorization and silently keeps access tokens fresh on demand.
type Manager struct {
	store     Store
	refresher Refresher
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	now       func() time.Time
}

// NewManager creates a credential manager over the given store and refresher.
func NewManager(store Store, refresher Refresher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics attaches a metrics recorder for refresh outcomes. Without one,
// refreshes are not recorded.
func (m *Manager) SetMetrics(metrics *instrumentation.Metrics) {
	m.metrics = metrics
}

// Connect stores a freshly authorized token set for a user, replacing any
// previous record.
func (m *Manager) Connect(ctx context.Context, userID string, tok *TokenResult) error {
	rec := &CredentialRecord{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Add(-ExpiryMargin),
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}

	m.logger.InfoContext(ctx, "user connected",
		logging.Operation("connect"),
		logging.UserHash(userID),
	)
	return nil
}

// Connected reports whether a credential record exists for the user. It does
// not validate the tokens.
func (m *Manager) Connected(ctx context.Context, userID string) (bool, error) {
	_, err := m.store.Get(ctx, userID)
	if errors.Is(err, ErrNoRecord) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Disconnect removes the stored credentials for a user.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	if err := m.store.Delete(ctx, userID); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "user disconnected",
		logging.Operation("disconnect"),
		logging.UserHash(userID),
	)
	return nil
}

// GetValidToken returns a usable access token for the user, refreshing it
// first when the stored one is stale.
//
// Error outcomes:
//   - ErrNotConnected: no record exists for the user.
//   - ErrReauthorizationRequired: the issuer rejected the refresh token;
//     the stale record has been purged.
//   - ErrTransientExchange: the refresh failed for a recoverable reason;
//     the stored record is untouched.
func (m *Manager) GetValidToken(ctx context.Context, userID string) (string, error) {
	rec, err := m.store.Get(ctx, userID)
	if errors.Is(err, ErrNoRecord) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}

	now := m.now()
	if !rec.Expired(now) {
		return rec.AccessToken, nil
	}

	return m.refresh(ctx, rec)
}

// refresh exchanges the record's refresh token and persists the outcome.
func (m *Manager) refresh(ctx context.Context, rec *CredentialRecord) (string, error) {
	log := m.logger.With(
		logging.Operation("token_refresh"),
		logging.UserHash(rec.UserID),
	)

	tok, err := m.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			// The refresh token is dead. Purge the record so the next
			// call reports not-connected instead of failing the same way
			// forever.
			if delErr := m.store.Delete(ctx, rec.UserID); delErr != nil {
				log.ErrorContext(ctx, "failed to purge rejected credentials", logging.Err(delErr))
			}
			m.metrics.RecordTokenRefresh(ctx, "invalid_grant")
			log.WarnContext(ctx, "refresh token rejected, reauthorization required", logging.Err(err))
			return "", fmt.Errorf("%w: %v", ErrReauthorizationRequired, err)
		}

		m.metrics.RecordTokenRefresh(ctx, "transient_failure")
		log.WarnContext(ctx, "token refresh failed transiently", logging.Err(err))
		return "", fmt.Errorf("%w: %v", ErrTransientExchange, err)
	}
	m.metrics.RecordTokenRefresh(ctx, "success")

	updated := &CredentialRecord{
		UserID:       rec.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Add(-ExpiryMargin),
	}
	if updated.RefreshToken == "" {
		// The issuer did not rotate the refresh token. Keep the old one.
		updated.RefreshToken = rec.RefreshToken
	}

	err = m.store.CompareAndSwap(ctx, rec.RefreshToken, updated)
	switch {
	case err == nil:
		log.InfoContext(ctx, "access token refreshed",
			logging.Status(logging.StatusSuccess),
			slog.String("access_token", logging.SanitizeToken(updated.AccessToken)),
		)
		return updated.AccessToken, nil

	case errors.Is(err, ErrSwapConflict), errors.Is(err, ErrNoRecord):
		// Another refresh for this user won the race. Use its result
		// rather than clobbering the newer refresh token.
		winner, getErr := m.store.Get(ctx, rec.UserID)
		if getErr != nil {
			if errors.Is(getErr, ErrNoRecord) {
				return "", ErrNotConnected
			}
			return "", fmt.Errorf("reload credentials after conflict: %w", getErr)
		}
		log.InfoContext(ctx, "concurrent refresh detected, using winner's token")
		return winner.AccessToken, nil

	default:
		return "", fmt.Errorf("store refreshed credentials: %w", err)
	}
}
