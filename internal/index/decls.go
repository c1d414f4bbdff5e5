package index

import (
	"sort"
	"strings"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/parser"
	"github.com/mvp-joe/svdb/internal/preproc"
)

// symbolFiles parses the output of a run and returns one symbol file per
// file of its tree. Unprocessed regions from the first inclusion of each
// file are added as placeholder items.
func symbolFiles(res *preproc.Result) map[string]*db.File {
	files := parser.ParseOutput(res.Output)
	regionsDone := make(map[string]bool)

	for id := 0; id < res.Tree.Len(); id++ {
		n := res.Tree.Node(preproc.NodeID(id))
		f, ok := files[n.Path]
		if !ok {
			f = &db.File{Path: n.Path}
			files[n.Path] = f
		}
		if regionsDone[n.Path] {
			continue
		}
		regionsDone[n.Path] = true

		regions := n.File.Regions()
		if len(regions) == 0 {
			continue
		}
		for _, r := range regions {
			f.Items = append(f.Items, db.Item{
				Kind:    db.KindUnprocessedRegion,
				Path:    n.Path,
				Line:    r.Line,
				EndLine: r.EndLine,
			})
		}
		sort.SliceStable(f.Items, func(i, j int) bool {
			return f.Items[i].Line < f.Items[j].Line
		})
	}
	return files
}

// collectDecls flattens the declarations of files, visited in order, into
// cache items. Package members carry the package as their container.
func collectDecls(order []string, files map[string]*db.File) []db.DeclCacheItem {
	var out []db.DeclCacheItem
	for _, path := range order {
		f := files[path]
		if f == nil {
			continue
		}
		for _, it := range f.Items {
			d, ok := declItem(it, "")
			if !ok {
				continue
			}
			out = append(out, d)
			if it.Kind != db.KindPackage {
				continue
			}
			for _, c := range it.Children {
				if cd, ok := declItem(c, it.Name); ok {
					out = append(out, cd)
				}
			}
		}
	}
	return out
}

func declItem(it db.Item, container string) (db.DeclCacheItem, bool) {
	switch it.Kind {
	case db.KindModule, db.KindInterface, db.KindProgram, db.KindPackage,
		db.KindClass, db.KindTask, db.KindFunction, db.KindTypedef, db.KindCovergroup:
	default:
		return db.DeclCacheItem{}, false
	}
	// Out-of-block method bodies belong to their class.
	if strings.Contains(it.Name, "::") || it.Name == "" {
		return db.DeclCacheItem{}, false
	}

	d := db.DeclCacheItem{
		Name:      it.Name,
		Kind:      it.Kind,
		File:      it.Path,
		Line:      it.Line,
		Pos:       it.Pos,
		Container: container,
		Super:     it.Super,
	}
	for _, e := range it.Enumerators {
		d.Enumerators = append(d.Enumerators, e.Name)
	}
	return d, true
}

// enumeratorItems expands the enumerators of an enum typedef into items of
// their own. The typedef becomes their container.
func enumeratorItems(d db.DeclCacheItem) []db.DeclCacheItem {
	out := make([]db.DeclCacheItem, 0, len(d.Enumerators))
	for _, e := range d.Enumerators {
		out = append(out, db.DeclCacheItem{
			Name:      e,
			Kind:      db.KindEnumerator,
			File:      d.File,
			Line:      d.Line,
			Pos:       d.Pos,
			Container: d.Name,
			Index:     d.Index,
		})
	}
	return out
}
