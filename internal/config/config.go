// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shopfront/internal/logger"
)

const (
	defaultInventoryTimeout = 5 * time.Second
	defaultGeoTimeout       = 3 * time.Second
	defaultRetentionHours   = 72
)

// Geo resolution modes
const (
	GeoModeHTTP = "http"
	GeoModeMMDB = "mmdb"
)

// InventoryConfig is everything the partner inventory client needs.
type InventoryConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	SigningSecret string        `yaml:"signing_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

// GeoConfig selects and configures the visitor location lookup.
type GeoConfig struct {
	Mode         string        `yaml:"mode"`
	EndpointURL  string        `yaml:"endpoint_url"`
	DatabasePath string        `yaml:"database_path"`
	Timeout      time.Duration `yaml:"timeout"`
}

type PageConfig struct {
	FeaturedProductID string `yaml:"featured_product_id"`
	Title             string `yaml:"title"`
}

type AuditConfig struct {
	DBPath         string `yaml:"db_path"`
	RetentionHours int    `yaml:"retention_hours"`
}

type ServerConfig struct {
	Host           string  `yaml:"host"`
	Port           string  `yaml:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// TrustedProxies lists addresses or CIDR ranges whose forwarding
	// headers identify the client. Empty means the socket peer is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Config is the full application configuration. It is built once at startup
// and handed to components explicitly.
type Config struct {
	Environment string          `yaml:"environment"`
	Inventory   InventoryConfig `yaml:"inventory"`
	Geo         GeoConfig       `yaml:"geo"`
	Page        PageConfig      `yaml:"page"`
	Audit       AuditConfig     `yaml:"audit"`
	Server      ServerConfig    `yaml:"server"`
}

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// Helper: log which environment is running
func LogCurrentEnvironment(cfg *Config) {
	if cfg.Environment == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in %s environment", cfg.Environment)
	}
}

// lookup prefers the environment specific key, then the plain key.
func lookup(key string) string {
	if v := GetEnvBasedSetting(key); v != "" {
		return v
	}
	return os.Getenv(key)
}

func setString(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := lookup(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := lookup(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := lookup(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

//
// --- Loaders ---
//

// LoadEnv reads .env file
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	err = godotenv.Load(".env")
	if err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// LoggerConfig returns a logger.Config struct populated from environment
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "server_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
		Debug:         os.Getenv("LOG_DEBUG") == "true",
	}
}

// Defaults returns a Config with every optional value filled in.
func Defaults() *Config {
	return &Config{
		Environment: "dev",
		Inventory: InventoryConfig{
			Timeout: defaultInventoryTimeout,
		},
		Geo: GeoConfig{
			Mode:    GeoModeHTTP,
			Timeout: defaultGeoTimeout,
		},
		Page: PageConfig{
			Title: "Home",
		},
		Audit: AuditConfig{
			DBPath:         "./data/shopfront.db",
			RetentionHours: defaultRetentionHours,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           "5051",
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
	}
}

// LoadFile overlays a YAML file onto cfg. Keys absent from the file keep
// their current values.
func LoadFile(cfg *Config, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", filename, err)
	}
	return nil
}

// Load builds the configuration: defaults, then the optional CONFIG_FILE,
// then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Inventory.BaseURL = strings.TrimRight(cfg.Inventory.BaseURL, "/")
	cfg.Geo.Mode = strings.ToLower(strings.TrimSpace(cfg.Geo.Mode))

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	setString(&cfg.Inventory.BaseURL, "INVENTORY_API_BASE_URL")
	setString(&cfg.Inventory.APIKey, "INVENTORY_API_KEY")
	setString(&cfg.Inventory.SigningSecret, "INVENTORY_SIGNING_SECRET")

	setString(&cfg.Geo.Mode, "GEO_MODE")
	setString(&cfg.Geo.EndpointURL, "GEO_ENDPOINT_URL")
	setString(&cfg.Geo.DatabasePath, "GEO_DATABASE_PATH")

	setString(&cfg.Page.FeaturedProductID, "FEATURED_PRODUCT_ID")
	setString(&cfg.Page.Title, "PAGE_TITLE")

	setString(&cfg.Audit.DBPath, "AUDIT_DB_PATH")

	setString(&cfg.Server.Host, "SERVER_HOST")
	setString(&cfg.Server.Port, "SERVER_PORT")
	if v := lookup("TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = splitList(v)
	}

	for _, err := range []error{
		setDuration(&cfg.Inventory.Timeout, "INVENTORY_TIMEOUT"),
		setDuration(&cfg.Geo.Timeout, "GEO_TIMEOUT"),
		setInt(&cfg.Audit.RetentionHours, "AUDIT_RETENTION_HOURS"),
		setFloat(&cfg.Server.RateLimitRPS, "RATE_LIMIT_RPS"),
		setInt(&cfg.Server.RateLimitBurst, "RATE_LIMIT_BURST"),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Inventory.BaseURL == "":
		return fmt.Errorf("INVENTORY_API_BASE_URL is required")
	case c.Inventory.APIKey == "":
		return fmt.Errorf("INVENTORY_API_KEY is required")
	case c.Inventory.SigningSecret == "":
		return fmt.Errorf("INVENTORY_SIGNING_SECRET is required")
	case c.Page.FeaturedProductID == "":
		return fmt.Errorf("FEATURED_PRODUCT_ID is required")
	case c.Inventory.Timeout <= 0 || c.Geo.Timeout <= 0:
		return fmt.Errorf("upstream timeouts must be positive")
	case c.Server.RateLimitRPS <= 0:
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.Server.RateLimitRPS)
	case c.Server.RateLimitBurst <= 0:
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.Server.RateLimitBurst)
	}

	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}

	switch c.Geo.Mode {
	case GeoModeHTTP:
		if c.Geo.EndpointURL == "" {
			return fmt.Errorf("GEO_ENDPOINT_URL is required when GEO_MODE=%s", GeoModeHTTP)
		}
	case GeoModeMMDB:
		if c.Geo.DatabasePath == "" {
			return fmt.Errorf("GEO_DATABASE_PATH is required when GEO_MODE=%s", GeoModeMMDB)
		}
	default:
		return fmt.Errorf("unknown GEO_MODE %q", c.Geo.Mode)
	}
	return nil
}

// Address builds the server listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}
