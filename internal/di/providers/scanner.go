package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/ignore"
	"github.com/foldkeeper/foldkeeper/internal/logger"
	"github.com/foldkeeper/foldkeeper/internal/scanner"
)

// ProvideIgnoreMatcher provides the ignore rules shared by the watcher and
// the walker.
func ProvideIgnoreMatcher(i do.Injector) (*ignore.Matcher, error) {
	cfg := do.MustInvoke[*config.Config](i)

	var patterns []string
	if len(cfg.Library.IgnorePatterns) > 0 {
		patterns = append(append(patterns, ignore.DefaultPatterns...), cfg.Library.IgnorePatterns...)
	}

	return ignore.New(ignore.Options{
		Root:          cfg.Library.Root,
		Patterns:      patterns,
		Hidden:        true,
		ReadGitignore: true,
	})
}

// ProvideWalker provides the tree walker.
func ProvideWalker(i do.Injector) (*scanner.Walker, error) {
	log := do.MustInvoke[*logger.Logger](i)
	matcher := do.MustInvoke[*ignore.Matcher](i)

	return scanner.NewWalker(log.WithComponent("scanner"), matcher), nil
}

// SeedKnownFiles marks every file already in the tree as seen so only files
// that arrive later are processed. It should run before the watcher starts.
func SeedKnownFiles(ctx context.Context, i do.Injector) error {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	walker := do.MustInvoke[*scanner.Walker](i)
	pipeline := do.MustInvoke[*PipelineHandle](i)

	files, err := walker.Files(ctx, cfg.Library.Root)
	if err != nil {
		return err
	}

	n := pipeline.MarkKnown(files)
	log.Info("existing files recorded", "count", n)
	return nil
}
