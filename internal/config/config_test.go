package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Data:    DataConfig{Path: "/project/.foldkeeper"},
		Library: LibraryConfig{Root: "/project"},
		Pipeline: PipelineConfig{
			AutoProcess:           true,
			ShowDialog:            true,
			BatchSize:             50,
			DialogThreshold:       10,
			ProcessCooldown:       500 * time.Millisecond,
			DialogCooldown:        5 * time.Second,
			SettingsCacheLifetime: 5 * time.Minute,
		},
		API:    APIConfig{Enabled: true, Addr: "127.0.0.1:7878"},
		Rename: RenameConfig{RatePerSecond: 20, Burst: 10},
	}
}

// newFlags parses args into a fresh flag set so tests never share global state.
func newFlags(t *testing.T, args ...string) *Flags {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	args = append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, fs.Parse(args))
	return flags
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "unknown environment", mutate: func(c *Config) { c.App.Environment = "test" }, field: "env"},
		{name: "environment is case sensitive", mutate: func(c *Config) { c.App.Environment = "DEVELOPMENT" }, field: "env"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logger.Level = "trace" }, field: "log_level"},
		{name: "unknown log format", mutate: func(c *Config) { c.Logger.Format = "xml" }, field: "log_format"},
		{name: "missing data path", mutate: func(c *Config) { c.Data.Path = "" }, field: "data_path"},
		{name: "missing root", mutate: func(c *Config) { c.Library.Root = "" }, field: "root"},
		{name: "zero batch size", mutate: func(c *Config) { c.Pipeline.BatchSize = 0 }, field: "batch_size"},
		{name: "negative threshold", mutate: func(c *Config) { c.Pipeline.DialogThreshold = -1 }, field: "dialog_threshold"},
		{name: "bad api address", mutate: func(c *Config) { c.API.Addr = "not an address" }, field: "api_addr"},
		{name: "api enabled without address", mutate: func(c *Config) { c.API.Addr = "" }, field: "api_addr"},
		{name: "zero rename rate", mutate: func(c *Config) { c.Rename.RatePerSecond = 0 }, field: "rename_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.field)
		})
	}
}

func TestValidate_APIDisabledNeedsNoAddress(t *testing.T) {
	cfg := validConfig()
	cfg.API = APIConfig{Enabled: false}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_NegativeDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.DialogCooldown = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "dialog-cooldown")
}

func TestLoadConfig_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := LoadConfig(newFlags(t, "--root", root))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, root, cfg.Library.Root)
	assert.Equal(t, filepath.Join(root, DataDirName), cfg.Data.Path)
	assert.True(t, cfg.Pipeline.AutoProcess)
	assert.True(t, cfg.Pipeline.ShowDialog)
	assert.Equal(t, 50, cfg.Pipeline.BatchSize)
	assert.Equal(t, 10, cfg.Pipeline.DialogThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.ProcessCooldown)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.DialogCooldown)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.SettingsCacheLifetime)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:7878", cfg.API.Addr)
	assert.InDelta(t, 20.0, cfg.Rename.RatePerSecond, 0.001)
	assert.Equal(t, 10, cfg.Rename.Burst)
}

func TestLoadConfig_Precedence(t *testing.T) {
	root := t.TempDir()
	t.Setenv("FOLDKEEPER_BATCH_SIZE", "25")
	t.Setenv("FOLDKEEPER_DIALOG_THRESHOLD", "3")
	t.Setenv("FOLDKEEPER_SHOW_DIALOG", "no")
	t.Setenv("FOLDKEEPER_IGNORE", "*.psd, build/** ,")

	cfg, err := LoadConfig(newFlags(t, "--root", root, "--batch-size", "100", "--process-cooldown", "2s"))
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Pipeline.BatchSize, "flag wins over env")
	assert.Equal(t, 3, cfg.Pipeline.DialogThreshold, "env wins over default")
	assert.False(t, cfg.Pipeline.ShowDialog)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.ProcessCooldown)
	assert.Equal(t, []string{"*.psd", "build/**"}, cfg.Library.IgnorePatterns)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	root := t.TempDir()

	_, err := LoadConfig(newFlags(t, "--root", root, "--batch-size", "many"))
	assert.ErrorContains(t, err, "many")

	_, err = LoadConfig(newFlags(t, "--root", root, "--dialog-cooldown", "soon"))
	assert.ErrorContains(t, err, "dialog-cooldown")

	_, err = LoadConfig(newFlags(t, "--root", root, "--env", "test"))
	assert.ErrorContains(t, err, "config validation failed")
}

func TestLoadConfig_NilFlags(t *testing.T) {
	t.Setenv("FOLDKEEPER_ROOT", t.TempDir())
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Pipeline.BatchSize)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		def  string
		want string
	}{
		{name: "empty uses default", in: "", def: "/fallback", want: "/fallback"},
		{name: "tilde", in: "~/assets", want: filepath.Join(home, "assets")},
		{name: "absolute is cleaned", in: "/a/b/../c/", want: "/a/c"},
		{name: "relative becomes absolute", in: "assets", want: filepath.Join(cwd, "assets")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.in, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("FOLDKEEPER_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "FOLDKEEPER_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "FOLDKEEPER_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "FOLDKEEPER_UNSET_KEY", "default"))
}

func TestGetBoolConfigValue(t *testing.T) {
	assert.True(t, getBoolConfigValue("YES", "", false))
	assert.True(t, getBoolConfigValue("1", "", false))
	assert.False(t, getBoolConfigValue("off", "", true))
	assert.True(t, getBoolConfigValue("", "FOLDKEEPER_UNSET_BOOL", true))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# comment

FOLDKEEPER_ENVFILE_PLAIN=plain
export FOLDKEEPER_ENVFILE_EXPORTED = "quoted value"
FOLDKEEPER_ENVFILE_KEPT=from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FOLDKEEPER_ENVFILE_KEPT", "from-env")
	t.Setenv("FOLDKEEPER_ENVFILE_PLAIN", "")
	t.Setenv("FOLDKEEPER_ENVFILE_EXPORTED", "")

	require.NoError(t, loadEnvFile(path))

	assert.Equal(t, "plain", os.Getenv("FOLDKEEPER_ENVFILE_PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("FOLDKEEPER_ENVFILE_EXPORTED"))
	assert.Equal(t, "from-env", os.Getenv("FOLDKEEPER_ENVFILE_KEPT"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JUST_A_KEY\n"), 0o600))

	assert.ErrorContains(t, loadEnvFile(path), "line 1")
}

func TestLoadEnvFile_Missing(t *testing.T) {
	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}
