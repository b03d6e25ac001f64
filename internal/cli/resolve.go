package cli

import (
	"fmt"
	"path"
	"strings"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/foldkeeper/foldkeeper/internal/di/providers"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

func newResolveCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show which convention governs a file and the name it would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			injector, cfg, err := ra.open(cmd, oneShot)
			if err != nil {
				return err
			}
			defer shutdown(cmd, injector)

			convs := do.MustInvoke[*providers.ConventionsHandle](injector)
			pipeline, err := do.Invoke[*providers.PipelineHandle](injector)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rel := relPath(cfg.Library.Root, args[0])
			if convs.IsGloballyExcluded(rel) {
				_, err := fmt.Fprintf(out, "%s: excluded\n", rel)
				return err
			}

			prop, err := pipeline.Propose(rel)
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				_, err := fmt.Fprintf(out, "%s: no convention\n", rel)
				return err
			}
			if err != nil {
				return err
			}

			conv := convs.Resolve(rel)
			_, _ = fmt.Fprintf(out, "path:        %s\n", prop.Path)
			_, _ = fmt.Fprintf(out, "convention:  %s (%s, auto-apply %t)\n", prop.ConventionPath, conv.NamingStyle, conv.AutoApply)
			_, _ = fmt.Fprintf(out, "new path:    %s\n", prop.NewPath)
			if len(prop.Violations) > 0 {
				_, _ = fmt.Fprintf(out, "violations:  %s\n", strings.Join(prop.Violations, "; "))
			}
			return nil
		},
	}
}

func newApplyCmd(ra *RootArgs) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "apply <name>",
		Short: "Print the name a file would get in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			injector, cfg, err := ra.open(cmd, oneShot)
			if err != nil {
				return err
			}
			defer shutdown(cmd, injector)

			convs, err := do.Invoke[*providers.ConventionsHandle](injector)
			if err != nil {
				return err
			}

			d := relPath(cfg.Library.Root, dir)
			conv := convs.ResolveDir(d)
			if conv == nil {
				return domainerrors.NotFoundf("no convention governs %q", d)
			}

			base, ext := domain.SplitName(path.Base(args[0]))
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, conv.Apply(base, ext)); err != nil {
				return err
			}
			for _, v := range conv.Validate(base, ext) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "violation: %s\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory the file would live in, relative to the root")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}
