package tokens

import "time"

// CredentialRecord is the durable per-user token state.
//
// ExpiresAt already includes the safety margin: it is always the issuer's
// reported expiry minus ExpiryMargin, never the raw value, so a token is
// treated as stale slightly before it truly is.
type CredentialRecord struct {
	// UserID is the opaque chat-platform identifier of the connected user.
	UserID string

	// AccessToken is the short-lived bearer credential for Microsoft Graph.
	AccessToken string

	// RefreshToken mints new access tokens. The issuer may rotate it on
	// every refresh.
	RefreshToken string

	// ExpiresAt is the instant the access token is considered stale.
	// The zero value means unknown and is treated as already expired.
	ExpiresAt time.Time
}

// Expired reports whether the access token should no longer be used as of
// the given instant. A missing expiry counts as expired.
func (r *CredentialRecord) Expired(now time.Time) bool {
	if r.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(r.ExpiresAt)
}

// clone returns a copy so store implementations never hand out aliased
// records.
func (r *CredentialRecord) clone() *CredentialRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
