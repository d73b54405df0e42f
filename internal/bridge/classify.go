package bridge

import (
	"encoding/json"
	"strings"
)

// Failure classes reported to callers. These are the values chat-facing
// code switches on to phrase its reply, so they are stable strings rather
// than error types.
const (
	ClassInvalidTool        = "invalid_tool"
	ClassAuthRequired       = "authentication_required"
	ClassToolError          = "tool_error"
	ClassMaxRetriesExceeded = "max_retries_exceeded"
)

// Result is the outcome of one tool invocation after classification and
// retries.
type Result struct {
	// OK is true when the provider returned a result payload.
	OK bool

	// Data is the raw result payload when OK.
	Data json.RawMessage

	// Class names the failure category when not OK.
	Class string

	// Message is a short human-readable description of the failure.
	Message string
}

// decision is the classification of a single attempt: the result to report
// and whether further attempts could change the outcome.
type decision struct {
	// retry is true when the attempt failed in a way a replay might fix.
	retry  bool
	result Result
}

// classify maps one raw provider reply to a decision.
//
// A result payload is success. An error payload is final: authentication
// failures get their own class because the caller reacts differently (it
// sends the user an authorization link instead of apologizing), and no
// error payload is retried since the provider already gave a definitive
// answer. Only a structurally malformed reply is worth retrying.
func classify(raw []byte) decision {
	resp, err := decodeResponse(raw)
	if err != nil {
		return decision{retry: true}
	}

	if len(resp.Result) > 0 && string(resp.Result) != "null" {
		return decision{result: Result{OK: true, Data: resp.Result}}
	}

	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		message := string(resp.Error)
		if isAuthError(message) {
			return decision{result: Result{
				Class:   ClassAuthRequired,
				Message: "Microsoft 365 authentication required",
			}}
		}
		return decision{result: Result{
			Class:   ClassToolError,
			Message: message,
		}}
	}

	// Neither result nor error: the reply does not follow the protocol.
	return decision{retry: true}
}

// isAuthError sniffs an error payload for authentication failures. The
// provider does not use structured error codes for these, so matching on
// the message text is the only signal available.
func isAuthError(errorPayload string) bool {
	lower := strings.ToLower(errorPayload)
	return strings.Contains(lower, "authentication") || strings.Contains(lower, "login")
}
