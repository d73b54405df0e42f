package tokens

import "errors"

// Error taxonomy for the credential lifecycle. Classification happens here,
// at the boundary; callers match with errors.Is and never inspect raw
// transport errors.
var (
	// ErrNotConnected indicates no credential record exists for the user.
	// This is an expected state: the user has never authorized (or has been
	// purged) and must be prompted to connect their account.
	ErrNotConnected = errors.New("tokens: user not connected")

	// ErrReauthorizationRequired indicates the refresh token itself was
	// rejected by the issuer. The record has been purged; the user must
	// authorize again from scratch.
	ErrReauthorizationRequired = errors.New("tokens: reauthorization required")

	// ErrTransientExchange indicates a network or issuer failure during a
	// token exchange. The stored record is untouched, so a later call can
	// retry from the same state.
	ErrTransientExchange = errors.New("tokens: transient exchange failure")

	// ErrInvalidGrant tags refresh failures where the issuer rejected the
	// refresh token itself (an "invalid_grant"-style response). Refresher
	// implementations wrap their errors with it so the manager can tell
	// purge-worthy failures from transient ones.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrNoRecord is returned by stores when no record exists for a user.
	ErrNoRecord = errors.New("tokens: no record")

	// ErrSwapConflict is returned by CompareAndSwap when the stored refresh
	// token no longer matches the one that was read, meaning another
	// refresh won the race.
	ErrSwapConflict = errors.New("tokens: concurrent update conflict")
)
