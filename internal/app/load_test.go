package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigFile = `
log_level = "debug"

[server]
host = "0.0.0.0"
port = 8080

[crm]
base_url = "https://file.amocrm.ru"
client_id = "file-client"
client_secret = "file-secret"
redirect_uri = "https://example.com/callback"
timeout = "3s"

[storage]
type = "memory"
`

func writeConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leadbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigFile), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t), nil, func() []string { return nil })
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.EqualValues(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://file.amocrm.ru", cfg.CRM.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, TokenStorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, DefaultConfigLeadName, cfg.Lead.Name)
}

func TestLoadConfig_Precedence(t *testing.T) {
	environ := func() []string {
		return []string{
			"LEADBRIDGE_CRM__CLIENT_ID=env-client",
			"LEADBRIDGE_SERVER__PORT=9090",
			"LEADBRIDGE_LEAD__COMPANY_NAME=Env LLC",
			"UNRELATED=1",
		}
	}
	flags := map[string]any{
		"server.port": 7070,
	}

	cfg, err := LoadConfig(writeConfigFile(t), flags, environ)
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.CRM.ClientID, "env overrides file")
	assert.EqualValues(t, 7070, cfg.Server.Port, "flags override env")
	assert.Equal(t, "Env LLC", cfg.Lead.CompanyName)
	assert.Equal(t, "file-secret", cfg.CRM.ClientSecret)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig("", nil, func() []string {
		return []string{"LEADBRIDGE_STORAGE__TYPE=memory"}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), nil, func() []string { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config file")
}
