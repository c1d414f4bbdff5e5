package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	svdb "github.com/mvp-joe/svdb/internal/db"
)

var (
	// ErrCacheVersionMismatch means the stored cache was written in another
	// format. Callers discard it and rebuild.
	ErrCacheVersionMismatch = errors.New("cache version mismatch")

	// ErrNoCache means nothing has been saved yet.
	ErrNoCache = errors.New("no cached data")
)

const (
	dbFileName   = "cache.db"
	lockFileName = "cache.lock"
)

// Store persists the BaseIndexCacheData of one base location in SQLite.
// Saves replace the whole snapshot in a single transaction, so a reader
// never sees half of a rebuild.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// Open opens (creating if needed) the cache database in dir. A lock file
// next to it serializes loads and saves across processes.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// One connection keeps the foreign_keys pragma in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, lock: flock.New(filepath.Join(dir, lockFileName))}, nil
}

// NewStore wraps an already prepared database. It takes no file lock.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire cache lock: %w", err)
	}
	defer s.lock.Unlock()
	return fn()
}

// Save replaces the stored snapshot with data.
func (s *Store) Save(data *svdb.BaseIndexCacheData) error {
	return s.withLock(func() error {
		version, err := GetSchemaVersion(s.db)
		if err != nil {
			return err
		}
		if version != "" && version != data.Version {
			if err := DropSchema(s.db); err != nil {
				return err
			}
			if err := CreateSchema(s.db); err != nil {
				return err
			}
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		// Cascades to every per-root table.
		if _, err := sq.Delete("roots").RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to clear roots: %w", err)
		}

		includePaths, err := json.Marshal(data.IncludePaths)
		if err != nil {
			return fmt.Errorf("failed to encode include paths: %w", err)
		}
		defines, err := json.Marshal(data.GlobalDefines)
		if err != nil {
			return fmt.Errorf("failed to encode global defines: %w", err)
		}
		meta := []struct{ key, value string }{
			{metaVersion, data.Version},
			{metaBaseLocation, data.BaseLocation},
			{metaGeneration, data.Generation},
			{metaIncludePaths, string(includePaths)},
			{metaGlobalDefines, string(defines)},
		}
		for _, m := range meta {
			if err := setMetadata(tx, m.key, m.value); err != nil {
				return err
			}
		}

		for pos, path := range data.RootOrder {
			root := data.Roots[path]
			if root == nil {
				continue
			}
			if err := writeRoot(tx, pos, root); err != nil {
				return fmt.Errorf("failed to write root %s: %w", path, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit cache: %w", err)
		}
		return nil
	})
}

func writeRoot(tx *sql.Tx, pos int, r *svdb.RootRecord) error {
	if _, err := sq.Insert("roots").
		Columns("root_path", "position", "included_by").
		Values(r.Path, pos, r.IncludedBy).
		RunWith(tx).Exec(); err != nil {
		return err
	}

	for path, mtime := range r.Files {
		if _, err := sq.Insert("files").
			Columns("root_path", "file_path", "mtime").
			Values(r.Path, path, mtime).
			RunWith(tx).Exec(); err != nil {
			return err
		}
	}

	for i, e := range r.Tree {
		if _, err := sq.Insert("file_tree").
			Columns("root_path", "seq", "parent_path", "child_path", "line").
			Values(r.Path, i, e.Parent, e.Child, e.Line).
			RunWith(tx).Exec(); err != nil {
			return err
		}
	}

	for i, m := range r.Defines {
		var params sql.NullString
		if m.Params != nil {
			b, err := json.Marshal(m.Params)
			if err != nil {
				return err
			}
			params = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := sq.Insert("macro_defs").
			Columns("root_path", "seq", "name", "params", "body", "file_path", "line", "undef").
			Values(r.Path, i, m.Name, params, m.Body, m.Path, m.Line, m.Undef).
			RunWith(tx).Exec(); err != nil {
			return err
		}
	}

	if err := writeRefs(tx, r.Path, r.RefMacros, false); err != nil {
		return err
	}
	if err := writeRefs(tx, r.Path, r.GlobalRefs, true); err != nil {
		return err
	}

	for i, d := range r.Decls {
		var enums sql.NullString
		if d.Enumerators != nil {
			b, err := json.Marshal(d.Enumerators)
			if err != nil {
				return err
			}
			enums = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := sq.Insert("decls").
			Columns("root_path", "seq", "name", "kind", "file_path", "line", "pos", "container", "super", "enumerators").
			Values(r.Path, i, d.Name, d.Kind.String(), d.File, d.Line, d.Pos, d.Container, d.Super, enums).
			RunWith(tx).Exec(); err != nil {
			return err
		}
	}

	for i, m := range r.Missing {
		if _, err := sq.Insert("missing_includes").
			Columns("root_path", "seq", "file_path", "include_name", "line").
			Values(r.Path, i, m.File, m.Include, m.Line).
			RunWith(tx).Exec(); err != nil {
			return err
		}
	}
	return nil
}

func writeRefs(tx *sql.Tx, root string, refs map[string]*string, afterReset bool) error {
	for name, value := range refs {
		var v sql.NullString
		if value != nil {
			v = sql.NullString{String: *value, Valid: true}
		}
		if _, err := sq.Insert("macro_refs").
			Columns("root_path", "name", "value", "after_reset").
			Values(root, name, v, afterReset).
			RunWith(tx).Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the stored snapshot. It returns ErrNoCache when nothing was
// saved and ErrCacheVersionMismatch when the stored format differs; in both
// cases the caller rebuilds from scratch.
func (s *Store) Load() (*svdb.BaseIndexCacheData, error) {
	var data *svdb.BaseIndexCacheData
	err := s.withLock(func() error {
		version, err := GetSchemaVersion(s.db)
		if err != nil {
			return err
		}
		if version == "" {
			return ErrNoCache
		}
		if version != svdb.CacheVersion {
			return fmt.Errorf("%w: stored %q, want %q", ErrCacheVersionMismatch, version, svdb.CacheVersion)
		}
		data, err = s.load()
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) load() (*svdb.BaseIndexCacheData, error) {
	meta, err := s.readMetadata()
	if err != nil {
		return nil, err
	}

	data := svdb.NewBaseIndexCacheData(meta[metaBaseLocation])
	data.Generation = meta[metaGeneration]
	if v := meta[metaIncludePaths]; v != "" {
		if err := json.Unmarshal([]byte(v), &data.IncludePaths); err != nil {
			return nil, fmt.Errorf("corrupt include paths: %w", err)
		}
	}
	if v := meta[metaGlobalDefines]; v != "" {
		if err := json.Unmarshal([]byte(v), &data.GlobalDefines); err != nil {
			return nil, fmt.Errorf("corrupt global defines: %w", err)
		}
		if data.GlobalDefines == nil {
			data.GlobalDefines = map[string]string{}
		}
	}

	rows, err := sq.Select("root_path", "included_by").From("roots").OrderBy("position").RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query roots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path, includedBy string
		if err := rows.Scan(&path, &includedBy); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		data.RootOrder = append(data.RootOrder, path)
		data.Roots[path] = &svdb.RootRecord{
			Path:       path,
			IncludedBy: includedBy,
			Files:      map[string]int64{},
			RefMacros:  map[string]*string{},
			GlobalRefs: map[string]*string{},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	loaders := []func(map[string]*svdb.RootRecord) error{
		s.loadFiles,
		s.loadTree,
		s.loadDefines,
		s.loadRefs,
		s.loadDecls,
		s.loadMissing,
	}
	for _, load := range loaders {
		if err := load(data.Roots); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (s *Store) readMetadata() (map[string]string, error) {
	rows, err := sq.Select("key", "value").From("cache_metadata").RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query cache metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan cache metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *Store) loadFiles(roots map[string]*svdb.RootRecord) error {
	rows, err := sq.Select("root_path", "file_path", "mtime").From("files").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var root, path string
		var mtime int64
		if err := rows.Scan(&root, &path, &mtime); err != nil {
			return fmt.Errorf("failed to scan file: %w", err)
		}
		if r := roots[root]; r != nil {
			r.Files[path] = mtime
		}
	}
	return rows.Err()
}

func (s *Store) loadTree(roots map[string]*svdb.RootRecord) error {
	rows, err := sq.Select("root_path", "parent_path", "child_path", "line").
		From("file_tree").OrderBy("root_path", "seq").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to query file tree: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var root string
		var e svdb.IncludeEdge
		if err := rows.Scan(&root, &e.Parent, &e.Child, &e.Line); err != nil {
			return fmt.Errorf("failed to scan include edge: %w", err)
		}
		if r := roots[root]; r != nil {
			r.Tree = append(r.Tree, e)
		}
	}
	return rows.Err()
}

func (s *Store) loadDefines(roots map[string]*svdb.RootRecord) error {
	rows, err := sq.Select("root_path", "name", "params", "body", "file_path", "line", "undef").
		From("macro_defs").OrderBy("root_path", "seq").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to query macro definitions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var root string
		var params sql.NullString
		var m svdb.MacroDef
		if err := rows.Scan(&root, &m.Name, &params, &m.Body, &m.Path, &m.Line, &m.Undef); err != nil {
			return fmt.Errorf("failed to scan macro definition: %w", err)
		}
		if params.Valid {
			m.Params = []svdb.MacroParam{}
			if err := json.Unmarshal([]byte(params.String), &m.Params); err != nil {
				return fmt.Errorf("corrupt parameters of macro %s: %w", m.Name, err)
			}
		}
		if r := roots[root]; r != nil {
			r.Defines = append(r.Defines, m)
		}
	}
	return rows.Err()
}

func (s *Store) loadRefs(roots map[string]*svdb.RootRecord) error {
	rows, err := sq.Select("root_path", "name", "value", "after_reset").From("macro_refs").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to query macro references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var root, name string
		var value sql.NullString
		var afterReset bool
		if err := rows.Scan(&root, &name, &value, &afterReset); err != nil {
			return fmt.Errorf("failed to scan macro reference: %w", err)
		}
		r := roots[root]
		if r == nil {
			continue
		}
		refs := r.RefMacros
		if afterReset {
			refs = r.GlobalRefs
		}
		if value.Valid {
			v := value.String
			refs[name] = &v
		} else {
			refs[name] = nil
		}
	}
	return rows.Err()
}

func (s *Store) loadDecls(roots map[string]*svdb.RootRecord) error {
	rows, err := sq.Select("root_path", "name", "kind", "file_path", "line", "pos", "container", "super", "enumerators").
		From("decls").OrderBy("root_path", "seq").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to query declarations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var root, kind string
		var enums sql.NullString
		var d svdb.DeclCacheItem
		if err := rows.Scan(&root, &d.Name, &kind, &d.File, &d.Line, &d.Pos, &d.Container, &d.Super, &enums); err != nil {
			return fmt.Errorf("failed to scan declaration: %w", err)
		}
		d.Kind = svdb.ParseItemKind(kind)
		if enums.Valid {
			if err := json.Unmarshal([]byte(enums.String), &d.Enumerators); err != nil {
				return fmt.Errorf("corrupt enumerators of %s: %w", d.Name, err)
			}
		}
		if r := roots[root]; r != nil {
			r.Decls = append(r.Decls, d)
		}
	}
	return rows.Err()
}

func (s *Store) loadMissing(roots map[string]*svdb.RootRecord) error {
	rows, err := sq.Select("root_path", "file_path", "include_name", "line").
		From("missing_includes").OrderBy("root_path", "seq").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to query missing includes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m := svdb.MissingInclude{}
		if err := rows.Scan(&m.Root, &m.File, &m.Include, &m.Line); err != nil {
			return fmt.Errorf("failed to scan missing include: %w", err)
		}
		if r := roots[m.Root]; r != nil {
			r.Missing = append(r.Missing, m)
		}
	}
	return rows.Err()
}
