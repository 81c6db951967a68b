package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		CRM: CRMConfig{
			BaseURL:      "https://example.amocrm.ru",
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURI:  "https://example.com/callback",
		},
		Storage: StorageConfig{Type: TokenStorageTypeMemory},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: TokenStorageTypeMongoDB}}
	require.NoError(t, cfg.ApplyDefaults())

	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, DefaultConfigServerHost, cfg.Server.Host)
	assert.EqualValues(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Timeout)
	assert.Equal(t, 10*time.Second, cfg.CRM.Timeout)
	assert.EqualValues(t, 7, cfg.CRM.RateLimit)
	assert.Equal(t, 1, cfg.CRM.RateBurst)
	assert.Equal(t, DefaultConfigLeadName, cfg.Lead.Name)
	assert.Equal(t, DefaultConfigCompanyName, cfg.Lead.CompanyName)
	assert.Equal(t, "leadbridge", cfg.Storage.MongoDatabase)
	assert.Equal(t, "refreshtokens", cfg.Storage.MongoCollection)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Lead:    LeadConfig{Name: "Inbound", CompanyName: "Acme"},
		Storage: StorageConfig{Type: TokenStorageTypeFile, File: "/tmp/token.json"},
	}
	require.NoError(t, cfg.ApplyDefaults())

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.EqualValues(t, 8080, cfg.Server.Port)
	assert.Equal(t, "Inbound", cfg.Lead.Name)
	assert.Equal(t, "Acme", cfg.Lead.CompanyName)
	assert.Equal(t, "/tmp/token.json", cfg.Storage.File)
}

func TestApplyDefaults_StoragePaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	file := &Config{}
	require.NoError(t, file.ApplyDefaults())
	assert.Equal(t, TokenStorageTypeFile, file.Storage.Type)
	assert.Equal(t, filepath.Join("leadbridge", "refresh_token.json"), lastTwo(file.Storage.File))

	sqlite := &Config{Storage: StorageConfig{Type: TokenStorageTypeSQLite}}
	require.NoError(t, sqlite.ApplyDefaults())
	assert.Equal(t, filepath.Join("leadbridge", "leadbridge.db"), lastTwo(sqlite.Storage.SQLitePath))
}

func lastTwo(path string) string {
	return filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.CRM.BaseURL = "" }, "BaseURL"},
		{"invalid base url", func(c *Config) { c.CRM.BaseURL = "not a url" }, "BaseURL"},
		{"missing client id", func(c *Config) { c.CRM.ClientID = "" }, "ClientID"},
		{"missing redirect uri", func(c *Config) { c.CRM.RedirectURI = "" }, "RedirectURI"},
		{"no client secret", func(c *Config) { c.CRM.ClientSecret = "" }, "client_secret or crm.client_secret_param required"},
		{"secret from ssm", func(c *Config) { c.CRM.ClientSecret = ""; c.CRM.ClientSecretParam = "/leadbridge/secret" }, ""},
		{"both secrets", func(c *Config) { c.CRM.ClientSecretParam = "/leadbridge/secret" }, "mutually exclusive"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LogFormat"},
		{"bad exporter", func(c *Config) { c.LogExporter = "zipkin" }, "LogExporter"},
		{"otlp exporter", func(c *Config) { c.LogExporter = "otlp-grpc" }, ""},
		{"bad storage", func(c *Config) { c.Storage.Type = "redis" }, "Type"},
		{"negative rate", func(c *Config) { c.CRM.RateLimit = -1 }, "RateLimit"},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = TokenStorageTypePostgres }, "postgres_dsn required"},
		{"mongodb without uri", func(c *Config) { c.Storage.Type = TokenStorageTypeMongoDB }, "mongodb_uri required"},
		{"dynamodb without table", func(c *Config) { c.Storage.Type = TokenStorageTypeDynamoDB }, "dynamodb_table required"},
		{"file without path", func(c *Config) { c.Storage.Type = TokenStorageTypeFile }, "file path required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q does not mention %q", err, tt.wantErr)
		})
	}
}
