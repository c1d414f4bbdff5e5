package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/svdb/internal/config"
	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/index"
	"github.com/mvp-joe/svdb/internal/preproc"
)

type preprocOptions struct {
	defines  []string
	includes []string
	lineMap  bool
}

var preprocFlags preprocOptions

// preprocCmd represents the preproc command
var preprocCmd = &cobra.Command{
	Use:   "preproc <file>",
	Short: "Print the preprocessed text of a file",
	Long: `Preproc expands macros, follows includes and evaluates conditional
compilation for <file>, printing the result. Diagnostics go to stderr.

Project defines and include directories from .svdb/config.yml apply; -D and
-I add to them.

Examples:
  svdb preproc rtl/top.sv
  svdb preproc -D SIM -D WIDTH=16 -I rtl/include rtl/top.sv
  svdb preproc --line-map rtl/top.sv
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		return runPreproc(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), root, args[0], preprocFlags)
	},
}

func init() {
	rootCmd.AddCommand(preprocCmd)
	preprocCmd.Flags().StringArrayVarP(&preprocFlags.defines, "define", "D", nil, "Define a macro (NAME or NAME=VALUE)")
	preprocCmd.Flags().StringArrayVarP(&preprocFlags.includes, "incdir", "I", nil, "Add an include directory")
	preprocCmd.Flags().BoolVar(&preprocFlags.lineMap, "line-map", false, "Prefix each line with the file and line it came from")
}

func runPreproc(ctx context.Context, out, errOut io.Writer, root, file string, opts preprocOptions) error {
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Preproc.Defines = append(cfg.Preproc.Defines, opts.defines...)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	provider := fs.NewOS()
	dirs := cfg.IncludeDirs(root)
	for _, d := range opts.includes {
		dirs = append(dirs, provider.ResolvePath(d, root))
	}

	pp := preproc.New(preproc.Config{
		Includes:          index.NewIncludeSearch(provider, dirs, nil),
		Opener:            provider,
		Globals:           preproc.NewMacroTableFromDefines(cfg.DefineMap()),
		MaxExpansionDepth: cfg.Preproc.MaxExpansionDepth,
		Logger:            logrus.WithField("component", "preproc"),
	})

	res, err := pp.PreprocessFile(ctx, provider.ResolvePath(file, root))
	if err != nil {
		return fmt.Errorf("failed to preprocess %s: %w", file, err)
	}

	if opts.lineMap {
		writeLineMap(out, res.Output)
	} else {
		io.WriteString(out, res.Output.Text())
	}
	printMarkers(errOut, res.Markers)
	return nil
}

func writeLineMap(out io.Writer, o *preproc.Output) {
	lines := strings.SplitAfter(o.Text(), "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		if loc, ok := o.Location(i + 1); ok {
			fmt.Fprintf(out, "%s:%d| %s", loc.Path, loc.Line, line)
		} else {
			io.WriteString(out, line)
		}
	}
	if t := o.Text(); t != "" && !strings.HasSuffix(t, "\n") {
		fmt.Fprintln(out)
	}
}
