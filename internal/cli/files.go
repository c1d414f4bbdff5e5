package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/svdb/internal/index"
)

type filesOptions struct {
	missing bool
	include string
}

var filesFlags filesOptions

// filesCmd represents the files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the files the index covers",
	Long: `Files prints every file the project index covers: root files and the
headers they include.

Examples:
  # All indexed files
  svdb files

  # Includes that could not be resolved
  svdb files --missing

  # Headers whose name starts with "uvm_"
  svdb files --include uvm_
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		return runFiles(cmd.Context(), cmd.OutOrStdout(), root, filesFlags)
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.Flags().BoolVar(&filesFlags.missing, "missing", false, "List unresolved includes instead")
	filesCmd.Flags().StringVar(&filesFlags.include, "include", "", "List included files whose name starts with this prefix")
}

func runFiles(ctx context.Context, out io.Writer, root string, opts filesOptions) error {
	p, err := openProject(root, nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if _, err := p.rebuild(ctx); err != nil {
		return err
	}

	switch {
	case opts.missing:
		for _, m := range p.mgr.MissingIncludes() {
			fmt.Fprintf(out, "%s:%d: include %q not found\n", m.File, m.Line, m.Include)
		}
	case opts.include != "":
		for _, f := range p.mgr.FindIncludedFile(opts.include, index.PrefixMatcher) {
			fmt.Fprintln(out, f)
		}
	default:
		for _, f := range p.mgr.Files() {
			fmt.Fprintln(out, f)
		}
	}
	return nil
}
