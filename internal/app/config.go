package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/leadbridge/internal/crm"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different backends supported for the refresh token.
type TokenStorageType string

const (
	TokenStorageTypeFile     TokenStorageType = "file"
	TokenStorageTypeKeyring  TokenStorageType = "keyring"
	TokenStorageTypePostgres TokenStorageType = "postgres"
	TokenStorageTypeSQLite   TokenStorageType = "sqlite"
	TokenStorageTypeDynamoDB TokenStorageType = "dynamodb"
	TokenStorageTypeMongoDB  TokenStorageType = "mongodb"
	TokenStorageTypeMemory   TokenStorageType = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 3000
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigStorageType     = TokenStorageTypeFile
	DefaultConfigCRMTimeout      = crm.DefaultTimeout
	DefaultConfigCRMRateLimit    = crm.DefaultRateLimit
	DefaultConfigCRMRateBurst    = crm.DefaultRateBurst
	DefaultConfigLeadName        = "Website request"
	DefaultConfigCompanyName     = "Horns & Hooves LLC"
	DefaultConfigMongoDatabase   = "leadbridge"
	DefaultConfigMongoCollection = "refreshtokens"
	DefaultConfigDynamoDBTable   = "leadbridge-tokens"
	keyringService               = "leadbridge-refresh-token"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// CRMConfig describes the CRM account and its OAuth2 integration.
type CRMConfig struct {
	BaseURL      string `json:"base_url" validate:"required,url"`
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret"`
	// ClientSecretParam names an SSM parameter holding the client secret.
	ClientSecretParam string `json:"client_secret_param"`
	RedirectURI       string `json:"redirect_uri" validate:"required,url"`
	// AuthCode is the one-time authorization code used when no usable refresh token is stored.
	AuthCode  string        `json:"auth_code"`
	Timeout   time.Duration `json:"timeout" validate:"gte=0"`
	RateLimit float64       `json:"rate_limit" validate:"gte=0"`
	RateBurst int           `json:"rate_burst" validate:"gte=0"`
}

// LeadConfig holds the fixed attributes of created leads.
type LeadConfig struct {
	Name        string `json:"name" validate:"required"`
	CompanyName string `json:"company_name" validate:"required"`
}

// StorageConfig describes where the refresh token is persisted.
type StorageConfig struct {
	Type TokenStorageType `json:"type" validate:"required,oneof=file keyring postgres sqlite dynamodb mongodb memory"`

	// Backend-specific settings, only the ones matching Type are used
	File            string `json:"file,omitempty"`
	KeyringUser     string `json:"keyring_user,omitempty"`
	PostgresDSN     string `json:"postgres_dsn,omitempty"`
	SQLitePath      string `json:"sqlite_path,omitempty"`
	DynamoDBTable   string `json:"dynamodb_table,omitempty"`
	MongoURI        string `json:"mongodb_uri,omitempty"`
	MongoDatabase   string `json:"mongodb_database,omitempty"`
	MongoCollection string `json:"mongodb_collection,omitempty"`

	// KMSKeyID enables envelope encryption of the stored token with AWS KMS.
	KMSKeyID string `json:"kms_key_id,omitempty"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level     `json:"log_level"`
	LogFormat   LogFormat      `json:"log_format" validate:"oneof=text json"`
	LogExporter string         `json:"log_exporter" validate:"omitempty,oneof=stdout otlp-grpc otlp-http"`
	Server      ServerConfig   `json:"server"`
	Shutdown    ShutdownConfig `json:"shutdown"`
	CRM         CRMConfig      `json:"crm"`
	Lead        LeadConfig     `json:"lead"`
	Storage     StorageConfig  `json:"storage"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.CRM.Timeout == 0 {
		c.CRM.Timeout = DefaultConfigCRMTimeout
	}
	if c.CRM.RateLimit == 0 {
		c.CRM.RateLimit = DefaultConfigCRMRateLimit
	}
	if c.CRM.RateBurst == 0 {
		c.CRM.RateBurst = DefaultConfigCRMRateBurst
	}
	if c.Lead.Name == "" {
		c.Lead.Name = DefaultConfigLeadName
	}
	if c.Lead.CompanyName == "" {
		c.Lead.CompanyName = DefaultConfigCompanyName
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(configDir, "leadbridge", "refresh_token.json")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeSQLite:
		if c.Storage.SQLitePath == "" {
			dataDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.sqlite_path required (auto-detect failed: %w)", err)
			}
			c.Storage.SQLitePath = filepath.Join(dataDir, "leadbridge", "leadbridge.db")
		}
	case TokenStorageTypeDynamoDB:
		if c.Storage.DynamoDBTable == "" {
			c.Storage.DynamoDBTable = DefaultConfigDynamoDBTable
		}
	case TokenStorageTypeMongoDB:
		if c.Storage.MongoDatabase == "" {
			c.Storage.MongoDatabase = DefaultConfigMongoDatabase
		}
		if c.Storage.MongoCollection == "" {
			c.Storage.MongoCollection = DefaultConfigMongoCollection
		}
	case TokenStorageTypePostgres, TokenStorageTypeMemory:
		// postgres_dsn must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.CRM.ClientSecret == "" && c.CRM.ClientSecretParam == "" {
		return errors.New("crm.client_secret or crm.client_secret_param required")
	}
	if c.CRM.ClientSecret != "" && c.CRM.ClientSecretParam != "" {
		return errors.New("crm.client_secret and crm.client_secret_param are mutually exclusive")
	}

	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case TokenStorageTypePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("postgres_dsn required for postgres storage")
		}
	case TokenStorageTypeSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite_path required for sqlite storage")
		}
	case TokenStorageTypeDynamoDB:
		if c.Storage.DynamoDBTable == "" {
			return errors.New("dynamodb_table required for dynamodb storage")
		}
	case TokenStorageTypeMongoDB:
		if c.Storage.MongoURI == "" {
			return errors.New("mongodb_uri required for mongodb storage")
		}
	}

	return nil
}
