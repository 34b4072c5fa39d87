package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultConfigPath     = "config/paydesk.yaml"
	defaultServerAddress  = ":4001"
	defaultSandboxAddress = ":4002"
	defaultAPITimeout     = 20 * time.Second
	defaultIdleTTL        = 30 * time.Minute
	defaultSessionTTL     = 12 * time.Hour
	defaultPageSize       = 10
	defaultDebounce       = 300 * time.Millisecond
	defaultMaxFileBytes   = 10 * 1024 * 1024
	defaultPresignExpiry  = 15 * time.Minute
	defaultRedisPrefix    = "paydesk:session:"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Identity IdentityConfig `yaml:"identity"`
	Session  SessionConfig  `yaml:"session"`
	Console  ConsoleConfig  `yaml:"console"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Address        string        `yaml:"address"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	CookieSecret   string        `yaml:"cookie_secret"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	IdleTTL        time.Duration `yaml:"idle_ttl"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DevUser is an account of the dev identity provider.
type DevUser struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	Password     string `yaml:"password"`
	Subject      string `yaml:"sub"`
	FullName     string `yaml:"full_name"`
	Department   string `yaml:"department"`
	Role         string `yaml:"role"`
	Unconfirmed  bool   `yaml:"unconfirmed"`
}

type IdentityConfig struct {
	Provider     string    `yaml:"provider"` // cognito|dev
	Region       string    `yaml:"region"`
	UserPoolID   string    `yaml:"user_pool_id"`
	ClientID     string    `yaml:"client_id"`
	ClientSecret string    `yaml:"client_secret"`
	Endpoint     string    `yaml:"endpoint"`
	DevSecret    string    `yaml:"dev_secret"`
	DevUsers     []DevUser `yaml:"dev_users"`
}

type SessionConfig struct {
	Backend       string        `yaml:"backend"` // redis|file|memory
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	FileDir       string        `yaml:"file_dir"`
	TTL           time.Duration `yaml:"ttl"`
}

// Option is one selectable value of an enumerated field.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// ViewRule declares who may open a view.
type ViewRule struct {
	ID          string   `yaml:"id"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Roles       []string `yaml:"roles"`
}

type AttachmentConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MaxBytes     int64    `yaml:"max_bytes"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// ConsoleConfig describes the enabled feature set of the console.
type ConsoleConfig struct {
	Views          []ViewRule          `yaml:"views"`
	Actions        map[string][]string `yaml:"actions"`
	DefaultViews   map[string]string   `yaml:"default_views"`
	PaymentMethods []Option            `yaml:"payment_methods"`
	DefaultMethod  string              `yaml:"default_method"`
	Statuses       []Option            `yaml:"statuses"`
	Attachments    AttachmentConfig    `yaml:"attachments"`
	PageSize       int                 `yaml:"page_size"`
	SearchDebounce time.Duration       `yaml:"search_debounce"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // mysql|pgx
	URL    string `yaml:"url"`
}

type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Region        string        `yaml:"region"`
	Bucket        string        `yaml:"bucket"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	PublicBaseURL string        `yaml:"public_base_url"`
	Expiry        time.Duration `yaml:"expiry"`
}

// SandboxConfig configures the local stand-in for the remote payments API.
type SandboxConfig struct {
	Address  string         `yaml:"address"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// Load reads the YAML file (CONFIG_PATH or the default location), applies
// environment overrides and defaults. A missing file is not an error.
func Load() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Parse decodes YAML bytes and applies defaults, without touching the environment.
func Parse(data []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// defaultConfig holds the defaults that a zero value cannot express. It is
// decoded over, so explicit false values in the file still apply.
func defaultConfig() Config {
	var cfg Config
	cfg.Console.Attachments.Enabled = true
	return cfg
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	setString(&cfg.Server.CookieSecret, "COOKIE_SECRET")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}

	setString(&cfg.API.BaseURL, "API_BASE_URL")
	if err := setDuration(&cfg.API.Timeout, "API_TIMEOUT"); err != nil {
		return err
	}

	setString(&cfg.Identity.Provider, "IDENTITY_PROVIDER")
	setString(&cfg.Identity.Region, "COGNITO_REGION")
	setString(&cfg.Identity.UserPoolID, "COGNITO_USER_POOL_ID")
	setString(&cfg.Identity.ClientID, "COGNITO_CLIENT_ID")
	setString(&cfg.Identity.ClientSecret, "COGNITO_CLIENT_SECRET")
	setString(&cfg.Identity.DevSecret, "DEV_TOKEN_SECRET")

	setString(&cfg.Session.Backend, "SESSION_BACKEND")
	setString(&cfg.Session.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Session.RedisPassword, "REDIS_PASSWORD")
	if v, err := readIntEnv("REDIS_DB"); err != nil {
		return fmt.Errorf("parse REDIS_DB: %w", err)
	} else if v != nil {
		cfg.Session.RedisDB = *v
	}
	setString(&cfg.Session.FileDir, "SESSION_FILE_DIR")

	if v, err := readIntEnv("PAGE_SIZE"); err != nil {
		return fmt.Errorf("parse PAGE_SIZE: %w", err)
	} else if v != nil {
		cfg.Console.PageSize = *v
	}

	setString(&cfg.Sandbox.Address, "SANDBOX_ADDR")
	setString(&cfg.Sandbox.Database.Driver, "DB_DRIVER")
	setString(&cfg.Sandbox.Database.URL, "DATABASE_URL")
	setString(&cfg.Sandbox.Storage.Endpoint, "S3_ENDPOINT")
	setString(&cfg.Sandbox.Storage.Bucket, "S3_BUCKET")
	setString(&cfg.Sandbox.Storage.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.Sandbox.Storage.SecretKey, "S3_SECRET_KEY")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	return nil
}

// ApplyDefaults fills every unset value. The console defaults reproduce the
// original two-role deployment extended with the richer role set.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultServerAddress
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Server.IdleTTL <= 0 {
		c.Server.IdleTTL = defaultIdleTTL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultAPITimeout
	}
	if c.Identity.Provider == "" {
		c.Identity.Provider = "cognito"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = defaultRedisPrefix
	}
	if c.Session.FileDir == "" {
		c.Session.FileDir = ".paydesk/sessions"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = defaultSessionTTL
	}
	if c.Sandbox.Address == "" {
		c.Sandbox.Address = defaultSandboxAddress
	}
	if c.Sandbox.Storage.Expiry <= 0 {
		c.Sandbox.Storage.Expiry = defaultPresignExpiry
	}
	if c.Sandbox.Storage.Region == "" {
		c.Sandbox.Storage.Region = "us-east-1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Console.applyDefaults()
}

func (c *ConsoleConfig) applyDefaults() {
	if len(c.Views) == 0 {
		c.Views = []ViewRule{
			{
				ID:          "payment-create",
				Label:       "Payment Form",
				Description: "Create new payment",
				Roles:       []string{"agent", "account", "sales", "sales_admin", "management", "admin"},
			},
			{
				ID:          "payment-records",
				Label:       "Payment Records",
				Description: "View payment history",
				Roles:       []string{"account", "sales_admin", "management", "admin"},
			},
			{
				ID:          "user-admin",
				Label:       "Access Control",
				Description: "Review role permissions",
				Roles:       []string{"admin"},
			},
		}
	}
	if c.Actions == nil {
		c.Actions = map[string][]string{
			"edit-receipt": {"account", "sales_admin", "management", "admin"},
		}
	}
	if c.DefaultViews == nil {
		c.DefaultViews = map[string]string{
			"agent":   "payment-create",
			"account": "payment-records",
		}
	}
	if len(c.PaymentMethods) == 0 {
		c.PaymentMethods = []Option{
			{Value: "bank_transfer", Label: "Bank Transfer"},
			{Value: "tng", Label: "TNG"},
			{Value: "card", Label: "Card"},
			{Value: "cash", Label: "Cash"},
		}
	}
	if c.DefaultMethod == "" {
		c.DefaultMethod = c.PaymentMethods[0].Value
	}
	if len(c.Statuses) == 0 {
		c.Statuses = []Option{
			{Value: "pending", Label: "Pending"},
			{Value: "reviewed", Label: "Reviewed"},
			{Value: "processing", Label: "Processing"},
			{Value: "completed", Label: "Completed"},
			{Value: "failed", Label: "Failed"},
		}
	}
	if c.Attachments.MaxBytes <= 0 {
		c.Attachments.MaxBytes = defaultMaxFileBytes
	}
	if len(c.Attachments.AllowedTypes) == 0 {
		c.Attachments.AllowedTypes = []string{
			"image/jpeg", "image/png", "image/gif",
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"text/plain",
		}
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = defaultDebounce
	}
}

// Validate checks the values the console server cannot start without.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.API.BaseURL) == "" {
		problems = append(problems, "api.base_url is required")
	}
	if strings.TrimSpace(c.Server.CookieSecret) == "" {
		problems = append(problems, "server.cookie_secret is required")
	}
	switch c.Identity.Provider {
	case "cognito":
		if c.Identity.Region == "" || c.Identity.UserPoolID == "" || c.Identity.ClientID == "" {
			problems = append(problems, "identity.region/user_pool_id/client_id are required for cognito")
		}
	case "dev":
		if c.Identity.DevSecret == "" {
			problems = append(problems, "identity.dev_secret is required for the dev provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("identity.provider %q is not supported", c.Identity.Provider))
	}
	switch c.Session.Backend {
	case "redis":
		if c.Session.RedisAddr == "" {
			problems = append(problems, "session.redis_addr is required for the redis backend")
		}
	case "file", "memory":
	default:
		problems = append(problems, fmt.Sprintf("session.backend %q is not supported", c.Session.Backend))
	}
	if !c.Console.HasMethod(c.Console.DefaultMethod) {
		problems = append(problems, fmt.Sprintf("console.default_method %q is not a configured payment method", c.Console.DefaultMethod))
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// HasMethod reports whether value is a configured payment method.
func (c ConsoleConfig) HasMethod(value string) bool {
	for _, m := range c.PaymentMethods {
		if m.Value == value {
			return true
		}
	}
	return false
}

// HasStatus reports whether value is a configured payment status.
func (c ConsoleConfig) HasStatus(value string) bool {
	for _, s := range c.Statuses {
		if s.Value == value {
			return true
		}
	}
	return false
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
