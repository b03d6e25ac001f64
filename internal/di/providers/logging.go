package providers

import (
	"io"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/logger"
)

// LogOutput is where log records are written. A nil Writer means stderr.
type LogOutput struct {
	io.Writer
}

// ProvideLogger builds the process logger from the logger and app sections
// of the configuration.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	out := do.MustInvoke[LogOutput](i)

	env := cfg.App.Environment
	log := logger.New(logger.Config{
		Writer:      out.Writer,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   env == "development",
		Environment: env,
	})

	log.Debug("config resolved",
		"env", env,
		"level", cfg.Logger.Level,
		"root", cfg.Library.Root,
		"data", cfg.Data.Path,
	)
	return log, nil
}
