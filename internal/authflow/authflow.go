// Package authflow serves the browser-facing OAuth authorization flow:
// /connect hands the user off to the Microsoft sign-in page and /callback
// receives the authorization code and stores the resulting credentials.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claudia-labs/claudia/internal/logging"
	"github.com/claudia-labs/claudia/internal/tokens"
)

// stateTTL bounds how long a pending authorization may sit between
// /connect and /callback.
const stateTTL = 10 * time.Minute

// Authorizer is the OAuth client surface the flow needs.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*tokens.TokenResult, error)
}

// Connector stores a completed authorization.
type Connector interface {
	Connect(ctx context.Context, userID string, tok *tokens.TokenResult) error
}

type pendingState struct {
	userID  string
	expires time.Time
}

// Handler implements the /connect and /callback endpoints. State tokens
// tie a callback to the user who initiated it, so an attacker cannot graft
// their Microsoft account onto someone else's chat identity.
type Handler struct {
	auth      Authorizer
	connector Connector
	logger    *slog.Logger

	mu     sync.Mutex
	states map[string]pendingState
	now    func() time.Time
}

// NewHandler creates the authorization flow handler.
func NewHandler(auth Authorizer, connector Connector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:      auth,
		connector: connector,
		logger:    logger,
		states:    make(map[string]pendingState),
		now:       time.Now,
	}
}

// Register mounts the flow's routes on a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/connect", h.HandleConnect)
	mux.HandleFunc("/callback", h.HandleCallback)
}

// HandleConnect starts an authorization for the user named in the query and
// redirects the browser to the Microsoft sign-in page.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	state := uuid.NewString()
	h.mu.Lock()
	h.pruneLocked()
	h.states[state] = pendingState{userID: userID, expires: h.now().Add(stateTTL)}
	h.mu.Unlock()

	h.logger.InfoContext(r.Context(), "authorization started",
		logging.Operation("oauth_connect"),
		logging.UserHash(userID),
	)

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusFound)
}

// HandleCallback completes an authorization: it validates the state,
// exchanges the code, and stores the credentials for the initiating user.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		h.logger.WarnContext(r.Context(), "authorization denied by user or issuer",
			logging.Operation("oauth_callback"),
			slog.String("oauth_error", errCode),
		)
		h.renderPage(w, http.StatusBadRequest, "Authorization failed",
			"Microsoft reported an error. You can close this window and try connecting again.")
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		http.Error(w, "missing state or code parameter", http.StatusBadRequest)
		return
	}

	userID, ok := h.takeState(state)
	if !ok {
		h.logger.WarnContext(r.Context(), "callback with unknown or expired state",
			logging.Operation("oauth_callback"),
		)
		h.renderPage(w, http.StatusBadRequest, "Authorization expired",
			"This sign-in link is no longer valid. Please start again from the chat.")
		return
	}

	tok, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "code exchange failed",
			logging.Operation("oauth_callback"),
			logging.UserHash(userID),
			logging.Err(err),
		)
		h.renderPage(w, http.StatusBadGateway, "Authorization failed",
			"We could not complete the sign-in with Microsoft. Please try again.")
		return
	}

	if err := h.connector.Connect(r.Context(), userID, tok); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to store credentials",
			logging.Operation("oauth_callback"),
			logging.UserHash(userID),
			logging.Err(err),
		)
		h.renderPage(w, http.StatusInternalServerError, "Something went wrong",
			"Your sign-in succeeded but we could not save it. Please try again.")
		return
	}

	h.logger.InfoContext(r.Context(), "authorization completed",
		logging.Operation("oauth_callback"),
		logging.UserHash(userID),
		logging.Status(logging.StatusSuccess),
	)
	h.renderPage(w, http.StatusOK, "Connected",
		"Your Microsoft 365 account is connected. You can close this window and return to the chat.")
}

// takeState consumes a pending state token. Each token is single use.
func (h *Handler) takeState(state string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pending, ok := h.states[state]
	if !ok {
		return "", false
	}
	delete(h.states, state)

	if h.now().After(pending.expires) {
		return "", false
	}
	return pending.userID, true
}

// pruneLocked drops expired states. Caller holds the mutex.
func (h *Handler) pruneLocked() {
	now := h.now()
	for state, pending := range h.states {
		if now.After(pending.expires) {
			delete(h.states, state)
		}
	}
}

func (h *Handler) renderPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 40em; margin: 4em auto;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, message)
}
