package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Gateway    GatewayConfig
	Webhook    WebhookConfig
	KV         KVConfig
	Session    SessionConfig
	CRM        CRMConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	BasicAuth          []string
	BasePath           string
	TenantID           string
	CorsAllowedOrigins []string
	ServerID           string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

const (
	GatewayModeHosted     = "hosted"
	GatewayModeSelfHosted = "self_hosted"
)

type GatewayConfig struct {
	Mode         string
	BaseURL      string
	APIKey       string
	Instance     string
	Integration  string
	Timeout      time.Duration
	MaxRetries   int
	APIKeyHeader string
}

type WebhookConfig struct {
	PublicURL    string
	Path         string
	VerifyAPIKey bool
	Async        bool
}

type KVConfig struct {
	RESTURL        string
	RESTToken      string
	ValkeyAddress  string
	ValkeyPassword string
	ValkeyDB       int
	KeyPrefix      string
}

type SessionConfig struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	StoreURI             string
	LogLevel             string
	SQLSignalKeys        bool
}

type CRMConfig struct {
	DefaultOwnerID string
	CountryCode    string
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	storages := getEnv("APP_STORAGES_DIR", "storages")

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = splitList(v)
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		corsOrigins = splitList(v)
	}

	cfg := &Config{
		App: AppConfig{
			Version:            "v1.0.0",
			Port:               getEnv("APP_PORT", "3000"),
			Debug:              getEnvBool("APP_DEBUG", false),
			BasicAuth:          basicAuth,
			BasePath:           getEnv("APP_BASE_PATH", ""),
			TenantID:           getEnv("APP_TENANT_ID", "default"),
			CorsAllowedOrigins: corsOrigins,
			ServerID:           getEnv("SERVER_ID", "wacrm"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", filepath.Join(storages, "crm.db")),
		},
		Gateway: GatewayConfig{
			Mode:         strings.ToLower(getEnv("GATEWAY_MODE", GatewayModeHosted)),
			BaseURL:      strings.TrimSuffix(getEnv("GATEWAY_BASE_URL", ""), "/"),
			APIKey:       getEnv("GATEWAY_API_KEY", ""),
			Instance:     getEnv("GATEWAY_INSTANCE", "default"),
			Integration:  getEnv("GATEWAY_INTEGRATION", "WHATSAPP-BAILEYS"),
			Timeout:      getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
			MaxRetries:   getEnvInt("GATEWAY_MAX_RETRIES", 3),
			APIKeyHeader: getEnv("GATEWAY_API_KEY_HEADER", "apikey"),
		},
		Webhook: WebhookConfig{
			PublicURL:    getEnv("WEBHOOK_PUBLIC_URL", ""),
			Path:         getEnv("WEBHOOK_PATH", "/webhook/whatsapp"),
			VerifyAPIKey: getEnvBool("WEBHOOK_VERIFY_APIKEY", false),
			Async:        getEnvBool("WEBHOOK_ASYNC", true),
		},
		KV: KVConfig{
			RESTURL:        strings.TrimSuffix(getEnv("KV_REST_URL", ""), "/"),
			RESTToken:      getEnv("KV_REST_TOKEN", ""),
			ValkeyAddress:  getEnv("VALKEY_ADDRESS", ""),
			ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),
			ValkeyDB:       getEnvInt("VALKEY_DB", 0),
			KeyPrefix:      getEnv("KV_KEY_PREFIX", "wa-session"),
		},
		Session: SessionConfig{
			MaxReconnectAttempts: getEnvInt("SESSION_MAX_RECONNECT", 3),
			ReconnectDelay:       getEnvDuration("SESSION_RECONNECT_DELAY", 5*time.Second),
			StoreURI:             getEnv("SESSION_STORE_URI", "file:"+filepath.Join(storages, "whatsmeow.db")+"?_foreign_keys=on"),
			LogLevel:             getEnv("SESSION_LOG_LEVEL", "ERROR"),
			SQLSignalKeys:        getEnvBool("SESSION_SQL_SIGNAL_KEYS", false),
		},
		CRM: CRMConfig{
			DefaultOwnerID: getEnv("CRM_DEFAULT_OWNER_ID", ""),
			CountryCode:    getEnv("CRM_COUNTRY_CODE", "55"),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("MESSAGE_WORKER_POOL_SIZE", 4),
			QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 500),
		},
	}

	Global = cfg
	return cfg, nil
}

// Warnings lists configuration gaps the service can run with but should report.
func (c *Config) Warnings() []string {
	var out []string
	if c.Gateway.Mode == GatewayModeHosted {
		if c.Gateway.BaseURL == "" || c.Gateway.APIKey == "" {
			out = append(out, "GATEWAY_BASE_URL / GATEWAY_API_KEY not set: gateway calls will fail")
		}
		if c.Webhook.PublicURL == "" {
			out = append(out, "WEBHOOK_PUBLIC_URL not set: the gateway cannot be told where to deliver events")
		}
	}
	if !c.KV.HasBackend() {
		out = append(out, "no KV backend configured (KV_REST_URL/KV_REST_TOKEN or VALKEY_ADDRESS): session credentials are kept in memory and lost on restart")
	}
	if len(c.App.BasicAuth) == 0 {
		out = append(out, "APP_BASIC_AUTH not set: the instance API rejects every request")
	}
	return out
}

func (k KVConfig) HasREST() bool {
	return k.RESTURL != "" && k.RESTToken != ""
}

func (k KVConfig) HasBackend() bool {
	return k.HasREST() || k.ValkeyAddress != ""
}

func (g GatewayConfig) SelfHosted() bool {
	return g.Mode == GatewayModeSelfHosted
}

// TargetURL is where the gateway should deliver events. A public URL that
// already carries a path is used as-is.
func (w WebhookConfig) TargetURL() string {
	if w.PublicURL == "" {
		return ""
	}
	u, err := url.Parse(w.PublicURL)
	if err == nil && u.Path != "" && u.Path != "/" {
		return w.PublicURL
	}
	return strings.TrimSuffix(w.PublicURL, "/") + w.Path
}
