package cli

import (
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/foldkeeper/foldkeeper/internal/di"
	"github.com/foldkeeper/foldkeeper/internal/logger"
)

func newWatchCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the tree and apply conventions to files as they arrive",
		Long: `Watch records the files already in the tree, then applies the governing
convention to every file added afterwards. Small batches are offered for review
on the status API event stream instead of being renamed directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector, _, err := ra.open(cmd)
			if err != nil {
				return err
			}
			defer shutdown(cmd, injector)

			ctx := cmd.Context()
			if err := di.Bootstrap(ctx, injector); err != nil {
				return err
			}

			log := do.MustInvoke[*logger.Logger](injector)
			<-ctx.Done()
			log.Info("shutting down")
			return nil
		},
	}
}
