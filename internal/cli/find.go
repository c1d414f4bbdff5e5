package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/index"
)

type findOptions struct {
	prefix  bool
	kind    string
	macro   bool
	members bool
	at      string
}

var findFlags findOptions

// findCmd represents the find command
var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Look up global-scope declarations or macros by name",
	Long: `Find brings the index up to date and prints the declarations named <name>.

Examples:
  # Where is module fifo declared?
  svdb find fifo

  # Every class whose name starts with "axi_"
  svdb find axi_ --prefix --kind class

  # Show a package together with its members
  svdb find bus_pkg --members

  # Look up a macro definition
  svdb find WIDTH --macro

  # The definition of WIDTH in effect at line 40 of rtl/top.sv
  svdb find WIDTH --at rtl/top.sv:40
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		return runFind(cmd.Context(), cmd.OutOrStdout(), root, args[0], findFlags)
	},
}

func init() {
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().BoolVarP(&findFlags.prefix, "prefix", "p", false, "Match names case-insensitively by prefix")
	findCmd.Flags().StringVarP(&findFlags.kind, "kind", "k", "", "Only show declarations of this kind (module, class, package, ...)")
	findCmd.Flags().BoolVarP(&findFlags.macro, "macro", "m", false, "Look up macro definitions instead of declarations")
	findCmd.Flags().BoolVar(&findFlags.members, "members", false, "List the members of matching packages")
	findCmd.Flags().StringVar(&findFlags.at, "at", "", "Resolve the macro as seen at <file>:<line> (implies --macro)")
}

func runFind(ctx context.Context, out io.Writer, root, name string, opts findOptions) error {
	kind := db.KindUnknown
	if opts.kind != "" {
		kind = db.ParseItemKind(opts.kind)
		if kind == db.KindUnknown {
			return fmt.Errorf("unknown declaration kind %q", opts.kind)
		}
	}

	var atPath string
	var atLine int
	if opts.at != "" {
		var err error
		if atPath, atLine, err = parsePosition(root, opts.at); err != nil {
			return err
		}
	}

	p, err := openProject(root, nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if _, err := p.rebuild(ctx); err != nil {
		return err
	}

	var matcher index.Matcher = index.ExactMatcher
	if opts.prefix {
		matcher = index.PrefixMatcher
	}

	if opts.at != "" {
		def, err := p.mgr.FindMacroAt(ctx, name, atPath, atLine)
		if err != nil {
			return err
		}
		if def == nil {
			fmt.Fprintf(out, "Macro %q is not defined at %s:%d\n", name, atPath, atLine)
			return nil
		}
		printMacro(out, def)
		return nil
	}
	if opts.macro {
		return printMacros(out, p, name, matcher)
	}

	found := 0
	for _, d := range p.mgr.FindGlobalScopeDecl(ctx, name, matcher) {
		if kind != db.KindUnknown && d.Kind != kind {
			continue
		}
		found++
		printDecl(out, "", d)
		if d.Kind == db.KindClass && d.Super != "" {
			if super := p.mgr.FindSuperClass(ctx, d); super != nil {
				fmt.Fprintf(out, "  extends %s (%s:%d)\n", super.Name, super.File, super.Line)
			} else {
				fmt.Fprintf(out, "  extends %s (unresolved)\n", d.Super)
			}
		}
		if opts.members && d.Kind == db.KindPackage {
			for _, m := range p.mgr.FindPackageDecl(ctx, d) {
				printDecl(out, "  ", m)
			}
		}
	}
	if found == 0 {
		fmt.Fprintf(out, "No declarations found for %q\n", name)
	}
	return nil
}

func printDecl(out io.Writer, indent string, d db.DeclCacheItem) {
	fmt.Fprintf(out, "%s%-12s %-24s %s:%d\n", indent, d.Kind, d.Name, d.File, d.Line)
}

func printMacros(out io.Writer, p *project, name string, matcher index.Matcher) error {
	names := p.mgr.MacroNames(name, matcher)
	if len(names) == 0 {
		fmt.Fprintf(out, "No macros found for %q\n", name)
		return nil
	}
	for _, n := range names {
		if def := p.mgr.FindMacro(n); def != nil {
			printMacro(out, def)
		}
	}
	return nil
}

func printMacro(out io.Writer, def *db.MacroDef) {
	if def.Path == "" {
		fmt.Fprintf(out, "`define %s\n  (global define)\n", def.Text())
		return
	}
	fmt.Fprintf(out, "`define %s\n  %s:%d\n", def.Text(), def.Path, def.Line)
}

// parsePosition splits a <file>:<line> argument. Relative files are taken
// from the project root.
func parsePosition(root, pos string) (string, int, error) {
	i := strings.LastIndex(pos, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid position %q: expected <file>:<line>", pos)
	}
	line, err := strconv.Atoi(pos[i+1:])
	if err != nil || line < 1 {
		return "", 0, fmt.Errorf("invalid line in position %q", pos)
	}
	path := pos[:i]
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path, line, nil
}
