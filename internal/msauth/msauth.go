// Package msauth wraps the Microsoft identity platform OAuth2 flows:
// building authorization URLs, exchanging authorization codes, and
// refreshing access tokens.
package msauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/claudia-labs/claudia/internal/config"
	"github.com/claudia-labs/claudia/internal/tokens"
)

// defaultTokenLifetime is assumed when the issuer omits an expiry from a
// token response.
const defaultTokenLifetime = time.Hour

// Client performs OAuth2 exchanges against the Microsoft identity platform
// for a single app registration.
type Client struct {
	oauth *oauth2.Config
}

// NewClient builds an OAuth2 client from the application configuration.
func NewClient(cfg config.Config) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(cfg.TenantID),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}
}

// AuthURL returns the authorization URL the user visits to grant access.
// The state parameter is round-tripped through the callback and must be
// verified there.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange trades an authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, code string) (*tokens.TokenResult, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return resultFromToken(tok), nil
}

// Refresh trades a refresh token for a new token set. When the issuer
// rejects the refresh token itself, the error wraps tokens.ErrInvalidGrant
// so callers can distinguish reauthorize-worthy failures from transient ones.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*tokens.TokenResult, error) {
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			return nil, fmt.Errorf("%w: %v", tokens.ErrInvalidGrant, err)
		}
		return nil, fmt.Errorf("refresh token exchange: %w", err)
	}
	return resultFromToken(tok), nil
}

func resultFromToken(tok *oauth2.Token) *tokens.TokenResult {
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(defaultTokenLifetime)
	}
	return &tokens.TokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiry,
	}
}

// isInvalidGrant reports whether a token endpoint error means the refresh
// token is dead rather than the request having failed transiently.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		return strings.Contains(string(retrieveErr.Body), "invalid_grant")
	}
	return false
}
