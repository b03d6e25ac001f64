// Package cli implements the foldkeeper command line.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/di"
)

const (
	cmdName = "foldkeeper"
	cmdDesc = `Keeps file names in a directory tree consistent with per-folder naming conventions.`
)

// Version is stamped at build time.
var Version = "dev"

// RootArgs holds the configuration flags shared by every command.
type RootArgs struct {
	flags *config.Flags
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	args := &RootArgs{}
	cmd := &cobra.Command{
		Use:           cmdName,
		Short:         cmdDesc,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	args.flags = config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newWatchCmd(args),
		newScanCmd(args),
		newResolveCmd(args),
		newApplyCmd(args),
		newConventionsCmd(args),
		newStatsCmd(args),
	)
	return cmd
}

// open loads the configuration, lets the command adjust it, and builds the
// container. Logs go to the command's stderr.
func (ra *RootArgs) open(cmd *cobra.Command, adjust ...func(*config.Config)) (*do.RootScope, *config.Config, error) {
	cfg, err := config.LoadConfig(ra.flags)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	for _, fn := range adjust {
		fn(cfg)
	}
	return di.NewContainer(cfg, cmd.ErrOrStderr()), cfg, nil
}

// oneShot turns off what only makes sense while watching: review requests
// and the status API.
func oneShot(cfg *config.Config) {
	cfg.Pipeline.ShowDialog = false
	cfg.API.Enabled = false
}

func shutdown(cmd *cobra.Command, injector *do.RootScope) {
	if err := injector.Shutdown(); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", err)
	}
}

// relPath maps p onto the managed root. Relative paths are taken as already
// relative to it.
func relPath(root, p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}
