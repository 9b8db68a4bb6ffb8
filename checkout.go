package git

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"gitgo/ginternals"
	"gitgo/ginternals/object"
)

// checkoutFrame is one unit of pending work for Checkout's stack: the oid
// of a tree to expand and the working-tree path it should land at.
type checkoutFrame struct {
	oid  ginternals.Oid
	path string
}

// Checkout materializes the tree rooted at treeOid into the repository's
// working tree, writing every blob and creating every directory it
// contains. Trees are walked with an explicit stack instead of recursion,
// since a clone can ingest an arbitrarily deep tree from an untrusted
// remote and shouldn't risk blowing the goroutine stack doing it.
//
// Symlink and gitlink entries are skipped, with a warning written to
// stderr: turning them into real symlinks/submodule checkouts is out of
// scope here.
func (r *Repository) Checkout(treeOid ginternals.Oid) error {
	if r.IsBare() {
		return xerrors.Errorf("checkout: %w", ErrNoWorkTree)
	}

	stack := []checkoutFrame{{oid: treeOid, path: "."}}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		t, err := r.GetTree(frame.oid)
		if err != nil {
			return xerrors.Errorf("could not load tree %s: %w", frame.oid.String(), err)
		}

		if frame.path != "." {
			if err := r.workTree.MkdirAll(frame.path, 0o755); err != nil {
				return xerrors.Errorf("could not create directory %s: %w", frame.path, err)
			}
		}

		for _, e := range t.Entries() {
			entryPath := filepath.Join(frame.path, e.Path)

			switch e.Mode {
			case object.ModeDirectory:
				stack = append(stack, checkoutFrame{oid: e.ID, path: entryPath})
			case object.ModeFile, object.ModeExecutable:
				o, err := r.GetObject(e.ID)
				if err != nil {
					return xerrors.Errorf("could not load blob for %s: %w", entryPath, err)
				}
				perm := os.FileMode(0o644)
				if e.Mode == object.ModeExecutable {
					perm = 0o755
				}
				if err := afero.WriteFile(r.workTree, entryPath, o.Bytes(), perm); err != nil {
					return xerrors.Errorf("could not write %s: %w", entryPath, err)
				}
			default:
				// ModeSymLink, ModeGitLink: nothing sane to materialize
				// without either following the remote's symlink target or
				// recursively cloning a submodule, so we leave them out of
				// the working tree rather than write something wrong.
				fmt.Fprintf(os.Stderr, "warning: skipping %s (mode %o)\n", entryPath, e.Mode)
				continue
			}
		}
	}

	return nil
}
