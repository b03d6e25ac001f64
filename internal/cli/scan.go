package cli

import (
	"fmt"
	"io"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/foldkeeper/foldkeeper/internal/di/providers"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	"github.com/foldkeeper/foldkeeper/internal/processor"
	"github.com/foldkeeper/foldkeeper/internal/scanner"
)

func newScanCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Apply conventions to every file already in the tree",
		Long: `Scan walks the managed root and runs every file through the import pipeline
once, as if it had just arrived. With --dry-run nothing is renamed or recorded;
the renames that would happen are listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector, cfg, err := ra.open(cmd, oneShot)
			if err != nil {
				return err
			}
			defer shutdown(cmd, injector)

			ctx := cmd.Context()
			walker := do.MustInvoke[*scanner.Walker](injector)
			pipeline, err := do.Invoke[*providers.PipelineHandle](injector)
			if err != nil {
				return err
			}

			files, err := walker.Files(ctx, cfg.Library.Root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cfg.Rename.DryRun {
				convs := do.MustInvoke[*providers.ConventionsHandle](injector)
				return previewScan(out, convs, pipeline.Pipeline, files)
			}

			pipeline.OnChange(ctx, processor.ChangeSet{Added: files})
			results, err := pipeline.Flush(ctx)
			if err != nil {
				return err
			}
			printResults(out, len(files), results)
			return nil
		},
	}
}

// previewScan lists what a scan would rename without touching the disk.
func previewScan(w io.Writer, convs *providers.ConventionsHandle, pipeline *processor.Pipeline, files []string) error {
	would := 0
	for _, rel := range files {
		conv := convs.Resolve(rel)
		if conv == nil || !conv.AutoApply || convs.IsGloballyExcluded(rel) {
			continue
		}
		prop, err := pipeline.Propose(rel)
		if err != nil || prop.NewPath == prop.Path {
			continue
		}
		would++
		if _, err := fmt.Fprintf(w, "would rename  %s -> %s\n", prop.Path, path.Base(prop.NewPath)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s files scanned, %s would be renamed (dry run)\n",
		humanize.Comma(int64(len(files))), humanize.Comma(int64(would)))
	return err
}

func printResults(w io.Writer, scanned int, results []domain.ProcessingResult) {
	var renamed, failed int64
	for _, r := range results {
		switch {
		case !r.Success:
			failed++
			_, _ = fmt.Fprintf(w, "failed        %s: %s\n", r.OriginalPath, r.ErrorMessage)
		case r.Kind == domain.ResultRenamed || r.Kind == domain.ResultMoved:
			renamed++
			_, _ = fmt.Fprintf(w, "renamed       %s -> %s\n", r.OriginalPath, path.Base(r.NewPath))
		}
	}
	_, _ = fmt.Fprintf(w, "%s files scanned, %s renamed, %s failed\n",
		humanize.Comma(int64(scanned)), humanize.Comma(renamed), humanize.Comma(failed))
}
