package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "kit.yaml"
	homeConfigName    = "config.yaml"
	homeDirName       = ".kit"

	// DefaultAddr is the listen address used when server.addr is unset.
	DefaultAddr = "127.0.0.1:8000"
)

// Config is the kit.yaml document.
type Config struct {
	DataDir     string             `yaml:"data_dir"`
	Server      ServerSection      `yaml:"server"`
	Log         LogSection         `yaml:"log"`
	Tools       ToolsSection       `yaml:"tools"`
	Preferences PreferencesSection `yaml:"preferences"`
	Market      MarketSection      `yaml:"market"`
	History     HistorySection     `yaml:"history"`
	Telemetry   TelemetrySection   `yaml:"telemetry"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `yaml:"-"`
}

// ServerSection configures the HTTP transport.
type ServerSection struct {
	Addr       string `yaml:"addr"`
	CORSOrigin string `yaml:"cors_origin"`
	MaxBody    int64  `yaml:"max_body"`
}

// LogSection configures slog output.
type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ToolsSection configures discovery.
type ToolsSection struct {
	PluginDir     string   `yaml:"plugin_dir"`
	EnforceSchema *bool    `yaml:"enforce_schema"`
	Disabled      []string `yaml:"disabled"`
}

// PreferencesSection selects the long-term preference backend.
type PreferencesSection struct {
	Backend string       `yaml:"backend"`
	Path    string       `yaml:"path"`
	Redis   RedisSection `yaml:"redis"`
}

// RedisSection configures a Redis connection.
type RedisSection struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// MarketSection configures the marketplace watcher.
type MarketSection struct {
	ListingsPath string `yaml:"listings_path"`
}

// HistorySection selects the dispatch history backend.
type HistorySection struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Limit   int    `yaml:"limit"`
}

// TelemetrySection configures metrics and tracing export.
type TelemetrySection struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	ServiceName  string `yaml:"service_name"`
	Prometheus   *bool  `yaml:"prometheus"`
}

// Preference and history backends.
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// DefaultConfig returns the configuration used when no kit.yaml exists.
func DefaultConfig() Config {
	return Config{
		Server:      ServerSection{Addr: DefaultAddr, CORSOrigin: "*", MaxBody: 1 << 20},
		Log:         LogSection{Level: "info", Format: "text"},
		Preferences: PreferencesSection{Backend: BackendFile},
		History:     HistorySection{Backend: BackendFile},
		Telemetry:   TelemetrySection{ServiceName: "kit"},
	}
}

// EnforceSchema reports whether dispatch validates payloads against input_schema.
func (c Config) EnforceSchema() bool {
	return c.Tools.EnforceSchema == nil || *c.Tools.EnforceSchema
}

// PrometheusEnabled reports whether /metrics is served.
func (c Config) PrometheusEnabled() bool {
	return c.Telemetry.Prometheus == nil || *c.Telemetry.Prometheus
}

// SlogLevel maps log.level to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DiscoverConfigPath resolves the config location with first-match semantics.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverConfigPathFrom is a testable variant of DiscoverConfigPath.
func DiscoverConfigPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, homeDirName, homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// If explicit path is set, not found is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadConfig reads path over the defaults, expands environment references,
// resolves relative paths against the config directory, and applies KIT_*
// overrides. An empty path yields defaults plus overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	baseDir := ""

	if clean := strings.TrimSpace(path); clean != "" {
		// #nosec G304 -- path resolved from explicit local config discovery.
		data, err := os.ReadFile(clean)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %q: %w", clean, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %q: %w", clean, err)
		}
		cfg.Path = clean
		baseDir = filepath.Dir(clean)
	}

	cfg.expand(baseDir)
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.fillDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) expand(baseDir string) {
	c.DataDir = expandPath(baseDir, c.DataDir)
	c.Server.Addr = expandEnvValue(c.Server.Addr)
	c.Tools.PluginDir = expandPath(baseDir, c.Tools.PluginDir)
	c.Preferences.Path = expandPath(baseDir, c.Preferences.Path)
	c.Preferences.Redis.Addr = expandEnvValue(c.Preferences.Redis.Addr)
	c.Preferences.Redis.Password = expandEnvValue(c.Preferences.Redis.Password)
	c.Market.ListingsPath = expandPath(baseDir, c.Market.ListingsPath)
	c.History.Path = expandPath(baseDir, c.History.Path)
	c.Telemetry.OTLPEndpoint = expandEnvValue(c.Telemetry.OTLPEndpoint)
}

func (c *Config) applyEnv() error {
	overrides := []struct {
		key    string
		target *string
	}{
		{"KIT_DATA_DIR", &c.DataDir},
		{"KIT_ADDR", &c.Server.Addr},
		{"KIT_LOG_LEVEL", &c.Log.Level},
		{"KIT_PLUGIN_DIR", &c.Tools.PluginDir},
		{"KIT_PREFERENCES_PATH", &c.Preferences.Path},
		{"KIT_REDIS_ADDR", &c.Preferences.Redis.Addr},
		{"KIT_LISTINGS_PATH", &c.Market.ListingsPath},
		{"KIT_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.target = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("KIT_SQLITE_PATH")); v != "" {
		c.History.Backend = BackendSQLite
		c.History.Path = v
	}
	if c.Preferences.Redis.Addr != "" && os.Getenv("KIT_REDIS_ADDR") != "" {
		c.Preferences.Backend = BackendRedis
	}
	if v := strings.TrimSpace(os.Getenv("KIT_ENFORCE_SCHEMA")); v != "" {
		enforce, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KIT_ENFORCE_SCHEMA must be a boolean: %w", err)
		}
		c.Tools.EnforceSchema = &enforce
	}
	return nil
}

func (c *Config) fillDefaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve user home: %w", err)
		}
		c.DataDir = filepath.Join(home, homeDirName)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Preferences.Backend == "" {
		c.Preferences.Backend = BackendFile
	}
	if c.Preferences.Backend == BackendFile && c.Preferences.Path == "" {
		c.Preferences.Path = filepath.Join(c.DataDir, "preferences.json")
	}
	if c.History.Backend == "" {
		c.History.Backend = BackendFile
	}
	if c.History.Path == "" {
		switch c.History.Backend {
		case BackendFile:
			c.History.Path = filepath.Join(c.DataDir, "history.json")
		case BackendSQLite:
			c.History.Path = filepath.Join(c.DataDir, "kit.db")
		}
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "kit"
	}
	return nil
}

func (c Config) validate() error {
	switch c.Preferences.Backend {
	case BackendNone, BackendFile:
	case BackendRedis:
		if c.Preferences.Redis.Addr == "" {
			return errors.New("preferences.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported preferences.backend %q", c.Preferences.Backend)
	}
	switch c.History.Backend {
	case BackendNone, BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unsupported history.backend %q", c.History.Backend)
	}
	if c.History.Limit < 0 {
		return errors.New("history.limit must not be negative")
	}
	return nil
}

func expandPath(baseDir, p string) string {
	p = strings.TrimSpace(expandEnvValue(p))
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if baseDir == "" {
		return filepath.Clean(p)
	}
	return resolveConfigRelative(baseDir, p)
}

func expandEnvValue(value string) string {
	return os.ExpandEnv(value)
}

func resolveConfigRelative(baseDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
