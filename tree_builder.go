package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"gitgo/backend"
	"gitgo/ginternals"
	"gitgo/ginternals/object"
)

// ErrNoWorkTree is returned when an operation that needs a working tree
// is attempted on a bare repository
var ErrNoWorkTree = errors.New("repository has no working tree")

// TreeBuilder is used to build trees
type TreeBuilder struct {
	Backend backend.Backend
	entries map[string]object.TreeEntry
}

// NewTreeBuilder create a new empty tree builder
func (r *Repository) NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{
		Backend: r.dotGit,
	}
}

// NewTreeBuilderFromTree create a new tree builder containing the
// entries of another tree
func (r *Repository) NewTreeBuilderFromTree(t *object.Tree) *TreeBuilder {
	entries := map[string]object.TreeEntry{}
	for _, e := range t.Entries() {
		entries[e.Path] = e
	}

	return &TreeBuilder{
		Backend: r.dotGit,
		entries: entries,
	}
}

// Insert inserts a new object in a tree
func (tb *TreeBuilder) Insert(path string, oid ginternals.Oid, mode object.TreeObjectMode) error {
	if !mode.IsValid() {
		//nolint:goerr113 // no need to wrap the error, this would only be caused by a bug in the codebase
		return fmt.Errorf("invalid mode %o", mode)
	}
	if path == "" || strings.ContainsAny(path, "/\x00") {
		return fmt.Errorf("invalid entry name %q: %w", path, object.ErrObjectInvalid)
	}

	o, err := tb.Backend.Object(oid)
	if err != nil {
		return fmt.Errorf("cannot verify object: %w", err)
	}

	// TODO(melvin):
	// 2. gitlink?
	if o.Type() != object.TypeBlob && o.Type() != object.TypeTree {
		return fmt.Errorf("unexpected object %s: %w", o.Type().String(), object.ErrObjectInvalid)
	}

	e := object.TreeEntry{
		Mode: mode,
		Path: path,
		ID:   oid,
	}

	if tb.entries == nil {
		tb.entries = map[string]object.TreeEntry{}
	}
	tb.entries[path] = e
	return nil
}

// Remove removes an object from tree
func (tb *TreeBuilder) Remove(path string) {
	if tb.entries == nil {
		return
	}
	delete(tb.entries, path)
}

// Write creates and persists a new Tree object
func (tb *TreeBuilder) Write() (*object.Tree, error) {
	// We need to order all our entries by name, comparing the name of a
	// directory as if it ended with a "/" (the order git uses in trees)
	// We're going to extract the paths of the map
	// and just loop over the keys instead of the entries
	paths := make([]string, 0, len(tb.entries))
	for p := range tb.entries {
		paths = append(paths, p)
	}
	sortKey := func(p string) string {
		if tb.entries[p].Mode == object.ModeDirectory {
			return p + "/"
		}
		return p
	}
	sort.Slice(paths, func(i, j int) bool {
		return sortKey(paths[i]) < sortKey(paths[j])
	})

	entries := make([]object.TreeEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, tb.entries[p])
	}

	t := object.NewTree(entries)
	o := t.ToObject()
	if _, err := tb.Backend.WriteObject(o); err != nil {
		return nil, fmt.Errorf("could not write the object to the odb: %w", err)
	}
	return o.AsTree()
}

// WriteTree walks the directory at path (relative to the repository's
// working tree), writing a blob for every file and a tree for every
// subdirectory, and returns the oid of the tree representing path itself.
//
// Entries named ".git" are skipped, as are symlinks. A file's executable
// bit for its owner controls whether it's stored as ModeExecutable or
// ModeFile.
func (r *Repository) WriteTree(path string) (ginternals.Oid, error) {
	if r.IsBare() {
		return ginternals.NullOid, xerrors.Errorf("write-tree: %w", ErrNoWorkTree)
	}

	entries, err := afero.ReadDir(r.workTree, path)
	if err != nil {
		return ginternals.NullOid, xerrors.Errorf("could not list %s: %w", path, err)
	}

	tb := r.NewTreeBuilder()
	for _, entry := range entries {
		name := entry.Name()
		if name == "." || name == ".." || name == ".git" {
			continue
		}
		entryPath := filepath.Join(path, name)

		switch {
		case entry.Mode()&os.ModeSymlink != 0:
			continue
		case entry.IsDir():
			oid, err := r.WriteTree(entryPath)
			if err != nil {
				return ginternals.NullOid, err
			}
			if err := tb.Insert(name, oid, object.ModeDirectory); err != nil {
				return ginternals.NullOid, xerrors.Errorf("could not insert %s: %w", entryPath, err)
			}
		default:
			content, err := afero.ReadFile(r.workTree, entryPath)
			if err != nil {
				return ginternals.NullOid, xerrors.Errorf("could not read %s: %w", entryPath, err)
			}
			blob, err := r.NewBlob(content)
			if err != nil {
				return ginternals.NullOid, xerrors.Errorf("could not store %s: %w", entryPath, err)
			}
			mode := object.ModeFile
			if entry.Mode()&0o100 != 0 {
				mode = object.ModeExecutable
			}
			if err := tb.Insert(name, blob.ID(), mode); err != nil {
				return ginternals.NullOid, xerrors.Errorf("could not insert %s: %w", entryPath, err)
			}
		}
	}

	t, err := tb.Write()
	if err != nil {
		return ginternals.NullOid, xerrors.Errorf("could not write tree for %s: %w", path, err)
	}
	return t.ID(), nil
}
