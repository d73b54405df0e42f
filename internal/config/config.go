package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the Microsoft application credentials and OAuth settings
// shared by every component that talks to the identity platform.
//
// Config is loaded exactly once at process start and passed explicitly to
// the components that need it. Loading failures are fatal: a process that
// cannot identify itself to the issuer must not start.
type Config struct {
	// ClientID is the application (client) ID from the Azure app registration.
	ClientID string

	// ClientSecret is the client secret for the app registration.
	ClientSecret string

	// TenantID selects the directory tenant. Defaults to "common" so both
	// work and personal accounts can sign in.
	TenantID string

	// RedirectURL is the OAuth callback URL registered with the app.
	RedirectURL string

	// Scopes are the delegated permissions requested during authorization.
	Scopes []string
}

// DefaultScopes are the delegated Microsoft Graph permissions the assistant
// needs. offline_access is required to receive refresh tokens.
var DefaultScopes = []string{
	"openid",
	"profile",
	"User.Read",
	"Mail.Read",
	"Mail.Send",
	"Calendars.ReadWrite",
	"offline_access",
}

// secretsPayload is the on-disk shape of a secrets file. The field names
// match the secret payload used by the hosted deployment.
type secretsPayload struct {
	ClientID     string `json:"microsoft_client_id"`
	ClientSecret string `json:"microsoft_client_secret"`
	TenantID     string `json:"microsoft_tenant_id"`
}

// Load builds a Config from the environment, optionally merging a JSON
// secrets file referenced by CLAUDIA_SECRETS_FILE. Environment variables
// take precedence over the secrets file.
//
// Required: a client ID and client secret from either source.
func Load() (Config, error) {
	cfg := Config{
		ClientID:     os.Getenv("MS_CLIENT_ID"),
		ClientSecret: os.Getenv("MS_CLIENT_SECRET"),
		TenantID:     os.Getenv("MS_TENANT_ID"),
		RedirectURL:  os.Getenv("MS_REDIRECT_URL"),
		Scopes:       DefaultScopes,
	}

	if path := os.Getenv("CLAUDIA_SECRETS_FILE"); path != "" {
		fileCfg, err := loadSecretsFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load secrets file: %w", err)
		}
		if cfg.ClientID == "" {
			cfg.ClientID = fileCfg.ClientID
		}
		if cfg.ClientSecret == "" {
			cfg.ClientSecret = fileCfg.ClientSecret
		}
		if cfg.TenantID == "" {
			cfg.TenantID = fileCfg.TenantID
		}
	}

	if cfg.TenantID == "" {
		cfg.TenantID = "common"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadSecretsFile reads and parses a JSON secrets file.
func loadSecretsFile(path string) (secretsPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return secretsPayload{}, err
	}

	var payload secretsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return secretsPayload{}, fmt.Errorf("parse %s: %w", path, err)
	}

	return payload, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("microsoft client ID is required (set MS_CLIENT_ID or CLAUDIA_SECRETS_FILE)")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("microsoft client secret is required (set MS_CLIENT_SECRET or CLAUDIA_SECRETS_FILE)")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("at least one OAuth scope is required")
	}
	return nil
}
