package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for lunabot.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	API       APIConfig       `json:"api" yaml:"api"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
}

// GatewayConfig configures the message stream connection.
type GatewayConfig struct {
	Host             string `json:"host" yaml:"host" env:"LUNA_HOST"` // host:port, no scheme
	Path             string `json:"path" yaml:"path" env:"LUNA_WS_PATH"`
	ConnectTimeoutMs int    `json:"connectTimeoutMs" yaml:"connectTimeoutMs" env:"LUNA_CONNECT_TIMEOUT_MS"`
	ReconnectDelayMs int    `json:"reconnectDelayMs" yaml:"reconnectDelayMs" env:"LUNA_RECONNECT_DELAY_MS"`
	DrainTimeoutMs   int    `json:"drainTimeoutMs" yaml:"drainTimeoutMs"` // 0 = do not wait for handlers on shutdown
}

func (g GatewayConfig) ConnectTimeout() time.Duration {
	return time.Duration(g.ConnectTimeoutMs) * time.Millisecond
}

func (g GatewayConfig) ReconnectDelay() time.Duration {
	return time.Duration(g.ReconnectDelayMs) * time.Millisecond
}

func (g GatewayConfig) DrainTimeout() time.Duration {
	return time.Duration(g.DrainTimeoutMs) * time.Millisecond
}

// APIConfig configures the REST calls (reply, media, query).
type APIConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	QueryRetries   int `json:"queryRetries" yaml:"queryRetries"`
	RetryBackoffMs int `json:"retryBackoffMs" yaml:"retryBackoffMs"`
}

func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a APIConfig) RetryBackoff() time.Duration {
	return time.Duration(a.RetryBackoffMs) * time.Millisecond
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LUNA_LOG_LEVEL"` // debug | info | warn | error
	Format string `json:"format" yaml:"format"`                    // text | json
	File   string `json:"file,omitempty" yaml:"file,omitempty"`    // optional log file path
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"LUNA_METRICS_ENABLED"`
	Addr    string `json:"addr" yaml:"addr"`
}

// SimulatorConfig configures the local gateway simulator.
type SimulatorConfig struct {
	Addr   string `json:"addr" yaml:"addr"`
	DBPath string `json:"dbPath" yaml:"dbPath"` // empty = in-memory
}

// DefaultConfigDir returns the default config directory (~/.lunabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lunabot"
	}
	return filepath.Join(home, ".lunabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML (by extension) config file over Defaults,
// expands ${VAR} references, applies LUNA_* environment overrides and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Log.File = ExpandPath(cfg.Log.File)
	cfg.Simulator.DBPath = ExpandPath(cfg.Simulator.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg fields from LUNA_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		errs = append(errs, "gateway.host is required")
	}
	if strings.Contains(cfg.Gateway.Host, "://") {
		errs = append(errs, "gateway.host must be host:port without a scheme")
	}
	if !strings.HasPrefix(cfg.Gateway.Path, "/") {
		errs = append(errs, "gateway.path must start with /")
	}
	if cfg.Gateway.ConnectTimeoutMs < 1 {
		errs = append(errs, "gateway.connectTimeoutMs must be >= 1")
	}
	if cfg.Gateway.ReconnectDelayMs < 1 {
		errs = append(errs, "gateway.reconnectDelayMs must be >= 1")
	}
	if cfg.Gateway.DrainTimeoutMs < 0 {
		errs = append(errs, "gateway.drainTimeoutMs must be >= 0")
	}

	if cfg.API.TimeoutSeconds < 1 {
		errs = append(errs, "api.timeoutSeconds must be >= 1")
	}
	if cfg.API.QueryRetries < 0 || cfg.API.QueryRetries > 10 {
		errs = append(errs, "api.queryRetries must be between 0 and 10")
	}
	if cfg.API.RetryBackoffMs < 1 {
		errs = append(errs, "api.retryBackoffMs must be >= 1")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
		// valid
	default:
		errs = append(errs, "log.format must be one of: text, json")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
