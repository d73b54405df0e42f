package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MS_CLIENT_ID", "MS_CLIENT_SECRET", "MS_TENANT_ID",
		"MS_REDIRECT_URL", "CLAUDIA_SECRETS_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MS_CLIENT_ID", "env-client")
	t.Setenv("MS_CLIENT_SECRET", "env-secret")
	t.Setenv("MS_TENANT_ID", "contoso")
	t.Setenv("MS_REDIRECT_URL", "https://example.com/callback")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, "env-secret", cfg.ClientSecret)
	assert.Equal(t, "contoso", cfg.TenantID)
	assert.Equal(t, "https://example.com/callback", cfg.RedirectURL)
	assert.Equal(t, DefaultScopes, cfg.Scopes)
}

func TestLoad_FromSecretsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"microsoft_client_id": "file-client",
		"microsoft_client_secret": "file-secret",
		"microsoft_tenant_id": "file-tenant"
	}`), 0o600))
	t.Setenv("CLAUDIA_SECRETS_FILE", path)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "file-client", cfg.ClientID)
	assert.Equal(t, "file-secret", cfg.ClientSecret)
	assert.Equal(t, "file-tenant", cfg.TenantID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"microsoft_client_id": "file-client",
		"microsoft_client_secret": "file-secret"
	}`), 0o600))
	t.Setenv("CLAUDIA_SECRETS_FILE", path)
	t.Setenv("MS_CLIENT_ID", "env-client")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "env-client", cfg.ClientID, "environment must take precedence")
	assert.Equal(t, "file-secret", cfg.ClientSecret)
}

func TestLoad_TenantDefaultsToCommon(t *testing.T) {
	clearEnv(t)
	t.Setenv("MS_CLIENT_ID", "client")
	t.Setenv("MS_CLIENT_SECRET", "secret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "common", cfg.TenantID)
}

func TestLoad_MissingCredentials(t *testing.T) {
	clearEnv(t)

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_BadSecretsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	t.Setenv("CLAUDIA_SECRETS_FILE", path)

	_, err := Load()

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "complete",
			cfg:     Config{ClientID: "id", ClientSecret: "secret", Scopes: DefaultScopes},
			wantErr: false,
		},
		{
			name:    "missing client id",
			cfg:     Config{ClientSecret: "secret", Scopes: DefaultScopes},
			wantErr: true,
		},
		{
			name:    "missing client secret",
			cfg:     Config{ClientID: "id", Scopes: DefaultScopes},
			wantErr: true,
		},
		{
			name:    "no scopes",
			cfg:     Config{ClientID: "id", ClientSecret: "secret"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
