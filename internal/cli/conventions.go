package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/foldkeeper/foldkeeper/internal/di/providers"
)

func newConventionsCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conventions",
		Aliases: []string{"conv"},
		Short:   "Inspect and edit the convention store",
	}
	cmd.AddCommand(
		newConventionsListCmd(ra),
		newConventionsExportCmd(ra),
		newConventionsImportCmd(ra),
		newConventionsScanTopCmd(ra),
	)
	return cmd
}

// withConventions runs fn against the loaded convention store and saves any
// edits it makes.
func (ra *RootArgs) withConventions(cmd *cobra.Command, fn func(*providers.ConventionsHandle) error) error {
	injector, _, err := ra.open(cmd, oneShot)
	if err != nil {
		return err
	}
	defer shutdown(cmd, injector)

	convs, err := do.Invoke[*providers.ConventionsHandle](injector)
	if err != nil {
		return err
	}
	if err := fn(convs); err != nil {
		return err
	}
	if convs.Dirty() {
		return convs.Save(cmd.Context())
	}
	return nil
}

func newConventionsListCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every convention, shallowest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ra.withConventions(cmd, func(convs *providers.ConventionsHandle) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "PATH\tSTYLE\tPREFIX\tSUFFIX\tAUTO\tEXTENSIONS")
				for _, c := range convs.All() {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
						c.Path, c.NamingStyle, dash(c.Prefix), dash(c.Suffix), c.AutoApply,
						dash(strings.Join(c.AllowedExtensions, ",")))
				}
				return tw.Flush()
			})
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newConventionsExportCmd(ra *RootArgs) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the convention store as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ra.withConventions(cmd, func(convs *providers.ConventionsHandle) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return convs.ExportYAML(w)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write instead of stdout")
	return cmd
}

func newConventionsImportCmd(ra *RootArgs) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load conventions from a YAML document",
		Long: `Import adds the conventions of a YAML document written by export. Paths that
already have a convention are kept, and added conventions start with auto-apply
off. --replace instead swaps the whole store, settings included, for the
document as written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return ra.withConventions(cmd, func(convs *providers.ConventionsHandle) error {
				n, err := convs.ImportYAML(f, replace)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d conventions\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the store instead of merging")
	return cmd
}

func newConventionsScanTopCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-top",
		Short: "Reset to one convention per top level folder",
		Long: `Scan-top drops every convention deeper than one level and registers each top
level folder that has none, seeding it from the keyword presets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ra.withConventions(cmd, func(convs *providers.ConventionsHandle) error {
				n, err := convs.ScanTopLevelOnly(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %d folders, %d conventions total\n", n, convs.Len())
				return err
			})
		},
	}
}
