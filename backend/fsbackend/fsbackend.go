// Package fsbackend contains an implementation of the backend.Backend
// interface for the filesystem
package fsbackend

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"gitgo/backend"
	"gitgo/ginternals"
	"gitgo/ginternals/config"
	"gitgo/ginternals/packfile"
	"gitgo/internal/cache"
	"gitgo/internal/gitpath"
	"gitgo/internal/syncutil"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// cacheSize is the number of objects kept in the in-memory LRU cache
const cacheSize = 256

// Backend is a Backend implementation that uses the filesystem to store data
type Backend struct {
	cfg  *config.Config
	fs   afero.Fs
	root string

	objectMu     *syncutil.NamedMutex
	cache        *cache.LRU
	packfiles    map[ginternals.Oid]*packfile.Pack
	looseObjects sync.Map

	packsOnce sync.Once
	packsErr  error
	looseOnce sync.Once
	looseErr  error
}

// New returns a new Backend object backed by the given repository
// configuration
func New(cfg *config.Config) *Backend {
	return &Backend{
		cfg:       cfg,
		fs:        cfg.FS,
		root:      cfg.GitDirPath,
		objectMu:  syncutil.NewNamedMutex(32),
		cache:     cache.NewLRU(cacheSize),
		packfiles: map[ginternals.Oid]*packfile.Pack{},
	}
}

// Init initializes a repository
func (b *Backend) Init() error {
	// Create the directories
	dirs := []string{
		gitpath.ObjectsPath,
		gitpath.RefsTagsPath,
		gitpath.RefsHeadsPath,
		gitpath.ObjectsInfoPath,
		gitpath.ObjectsPackPath,
	}
	for _, d := range dirs {
		if err := b.fs.MkdirAll(filepath.Join(b.root, d), 0o750); err != nil {
			return xerrors.Errorf("could not create directory %s: %w", d, err)
		}
	}

	// Create the files with the default content
	// (taken from a repo created on github)
	desc := []byte("Unnamed repository; edit this file 'description' to name the repository.\n")
	if err := afero.WriteFile(b.fs, filepath.Join(b.root, gitpath.DescriptionPath), desc, 0o644); err != nil {
		return xerrors.Errorf("could not create description file: %w", err)
	}

	if err := b.cfg.Save(); err != nil {
		return xerrors.Errorf("could not persist the default config: %w", err)
	}

	return nil
}

// Path returns the root directory used by the backend to store its
// data
func (b *Backend) Path() string {
	return b.root
}

// Close releases the resources held by the backend. Loose objects and
// references are read directly from disk so there's nothing to flush,
// but open packfiles must be released.
func (b *Backend) Close() error {
	for _, pack := range b.packfiles {
		if err := pack.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ensurePacksLoaded loads the packfiles on first access and memoizes
// any error encountered
func (b *Backend) ensurePacksLoaded() error {
	b.packsOnce.Do(func() {
		b.packsErr = b.loadPacks()
	})
	return b.packsErr
}

// ensureLooseObjectsLoaded indexes the loose objects on first access
// and memoizes any error encountered
func (b *Backend) ensureLooseObjectsLoaded() error {
	b.looseOnce.Do(func() {
		b.looseErr = b.loadLooseObject()
	})
	return b.looseErr
}
