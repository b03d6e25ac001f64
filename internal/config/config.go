// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/foldkeeper/foldkeeper/internal/validation"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FOLDKEEPER_"

// DataDirName is the default badger directory, created inside the managed root.
const DataDirName = ".foldkeeper"

// Config holds the application configuration.
type Config struct {
	App      AppConfig      `json:"app"`
	Logger   LoggerConfig   `json:"logger"`
	Data     DataConfig     `json:"data"`
	Library  LibraryConfig  `json:"library"`
	Pipeline PipelineConfig `json:"pipeline"`
	API      APIConfig      `json:"api"`
	Rename   RenameConfig   `json:"rename"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `json:"env" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `json:"log_level" validate:"required,oneof=debug info warn error"`
	Format string `json:"log_format" validate:"omitempty,oneof=json pretty"`
}

// DataConfig holds persistence configuration.
type DataConfig struct {
	Path string `json:"data_path" validate:"required"`
}

// LibraryConfig describes the managed tree.
type LibraryConfig struct {
	Root string `json:"root" validate:"required"`
	// IgnorePatterns are glob patterns the watcher never reports.
	IgnorePatterns []string `json:"ignore_patterns"`
}

// PipelineConfig holds the import pipeline settings.
type PipelineConfig struct {
	AutoProcess           bool          `json:"auto_process"`
	ShowDialog            bool          `json:"show_dialog"`
	BatchSize             int           `json:"batch_size" validate:"gte=1,lte=10000"`
	DialogThreshold       int           `json:"dialog_threshold" validate:"gte=0"`
	ProcessCooldown       time.Duration `json:"process_cooldown"`
	DialogCooldown        time.Duration `json:"dialog_cooldown"`
	SettingsCacheLifetime time.Duration `json:"settings_cache_lifetime"`
}

// APIConfig holds the status API configuration.
type APIConfig struct {
	Enabled        bool     `json:"api_enabled"`
	Addr           string   `json:"api_addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// RenameConfig throttles renames per directory.
type RenameConfig struct {
	RatePerSecond float64 `json:"rename_rate" validate:"gt=0"`
	Burst         int     `json:"rename_burst" validate:"gte=1"`

	// DryRun logs renames without touching the disk.
	DryRun bool `json:"dry_run"`
}

// Flags are the command-line overrides. Unchanged flags fall through to the
// environment.
type Flags struct {
	fs *pflag.FlagSet
}

// flagSpec binds a flag name to its environment key.
type flagSpec struct {
	name  string
	env   string
	usage string
}

var flagSpecs = []flagSpec{
	{"env", "ENV", "Environment (development, staging, production)"},
	{"log-level", "LOG_LEVEL", "Log level (debug, info, warn, error)"},
	{"log-format", "LOG_FORMAT", "Log format (json, pretty; default depends on env)"},
	{"data-path", "DATA_PATH", "Directory for persisted conventions and results (default: <root>/.foldkeeper)"},
	{"root", "ROOT", "Managed directory tree (default: current directory)"},
	{"ignore", "IGNORE", "Comma-separated glob patterns the watcher ignores"},
	{"auto-process", "AUTO_PROCESS", "Apply conventions to new files automatically (default: true)"},
	{"show-dialog", "SHOW_DIALOG", "Route small batches to human review (default: true)"},
	{"batch-size", "BATCH_SIZE", "Files per batch (default: 50)"},
	{"dialog-threshold", "DIALOG_THRESHOLD", "Largest batch routed to review (default: 10)"},
	{"process-cooldown", "PROCESS_COOLDOWN", "Minimum delay between processing cycles (default: 500ms)"},
	{"dialog-cooldown", "DIALOG_COOLDOWN", "Minimum delay between review requests (default: 5s)"},
	{"settings-cache-lifetime", "SETTINGS_CACHE_LIFETIME", "Reload persisted conventions after this long (default: 5m)"},
	{"api", "API_ENABLED", "Serve the status API (default: true)"},
	{"api-addr", "API_ADDR", "Status API listen address (default: 127.0.0.1:7878)"},
	{"allowed-origins", "ALLOWED_ORIGINS", "Comma-separated CORS origins for the status API"},
	{"rename-rate", "RENAME_RATE", "Renames per second per directory (default: 20)"},
	{"rename-burst", "RENAME_BURST", "Rename burst per directory (default: 10)"},
	{"dry-run", "DRY_RUN", "Log renames without performing them (default: false)"},
}

// RegisterFlags adds every configuration flag to fs, plus --env-file.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	for _, spec := range flagSpecs {
		fs.String(spec.name, "", spec.usage)
	}
	fs.String("env-file", ".env", "Path to .env file")
	return &Flags{fs: fs}
}

// value returns the flag's value if it was set on the command line.
func (f *Flags) value(name string) string {
	if f == nil || f.fs == nil {
		return ""
	}
	fl := f.fs.Lookup(name)
	if fl == nil || !fl.Changed {
		return ""
	}
	return fl.Value.String()
}

func (f *Flags) envFile() string {
	if f == nil || f.fs == nil {
		return ".env"
	}
	if fl := f.fs.Lookup("env-file"); fl != nil {
		return fl.Value.String()
	}
	return ".env"
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables (FOLDKEEPER_*).
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(flags *Flags) (*Config, error) {
	_ = loadEnvFile(flags.envFile())

	get := func(name, envKey, def string) string {
		return getConfigValue(flags.value(name), EnvPrefix+envKey, def)
	}
	getBool := func(name, envKey string, def bool) bool {
		return getBoolConfigValue(flags.value(name), EnvPrefix+envKey, def)
	}
	getInt := func(name, envKey string, def int) (int, error) {
		return getIntConfigValue(flags.value(name), EnvPrefix+envKey, def)
	}
	getDuration := func(name, envKey, def string) (time.Duration, error) {
		s := get(name, envKey, def)
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
		}
		return d, nil
	}

	cfg := &Config{
		App: AppConfig{
			Environment: get("env", "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(get("log-level", "LOG_LEVEL", "info")),
			Format: get("log-format", "LOG_FORMAT", ""),
		},
		Data: DataConfig{
			Path: get("data-path", "DATA_PATH", ""),
		},
		Library: LibraryConfig{
			Root:           get("root", "ROOT", "."),
			IgnorePatterns: splitList(get("ignore", "IGNORE", "")),
		},
		Pipeline: PipelineConfig{
			AutoProcess: getBool("auto-process", "AUTO_PROCESS", true),
			ShowDialog:  getBool("show-dialog", "SHOW_DIALOG", true),
		},
		API: APIConfig{
			Enabled:        getBool("api", "API_ENABLED", true),
			Addr:           get("api-addr", "API_ADDR", "127.0.0.1:7878"),
			AllowedOrigins: splitList(get("allowed-origins", "ALLOWED_ORIGINS", "")),
		},
		Rename: RenameConfig{
			DryRun: getBool("dry-run", "DRY_RUN", false),
		},
	}

	var err error
	if cfg.Pipeline.BatchSize, err = getInt("batch-size", "BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.Pipeline.DialogThreshold, err = getInt("dialog-threshold", "DIALOG_THRESHOLD", 10); err != nil {
		return nil, err
	}
	if cfg.Pipeline.ProcessCooldown, err = getDuration("process-cooldown", "PROCESS_COOLDOWN", "500ms"); err != nil {
		return nil, err
	}
	if cfg.Pipeline.DialogCooldown, err = getDuration("dialog-cooldown", "DIALOG_COOLDOWN", "5s"); err != nil {
		return nil, err
	}
	if cfg.Pipeline.SettingsCacheLifetime, err = getDuration("settings-cache-lifetime", "SETTINGS_CACHE_LIFETIME", "5m"); err != nil {
		return nil, err
	}
	if cfg.Rename.Burst, err = getInt("rename-burst", "RENAME_BURST", 10); err != nil {
		return nil, err
	}
	rate := get("rename-rate", "RENAME_RATE", "20")
	if cfg.Rename.RatePerSecond, err = strconv.ParseFloat(rate, 64); err != nil {
		return nil, fmt.Errorf("invalid rename-rate %q: %w", rate, err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	v := validation.New()
	for _, section := range []any{c.App, c.Logger, c.Data, c.Library, c.Pipeline, c.API, c.Rename} {
		if err := v.Validate(section); err != nil {
			return err
		}
	}

	for name, d := range map[string]time.Duration{
		"process-cooldown":        c.Pipeline.ProcessCooldown,
		"dialog-cooldown":         c.Pipeline.DialogCooldown,
		"settings-cache-lifetime": c.Pipeline.SettingsCacheLifetime,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

// expandPaths resolves the library root and places the data directory inside it by default.
func (c *Config) expandPaths() error {
	root, err := expandPath(c.Library.Root, "")
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	c.Library.Root = root

	data, err := expandPath(c.Data.Path, filepath.Join(root, DataDirName))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Data.Path = data
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) (int, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
