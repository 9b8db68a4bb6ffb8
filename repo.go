package git

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"gitgo/backend"
	"gitgo/backend/fsbackend"
	"gitgo/ginternals"
	"gitgo/ginternals/config"
	"gitgo/ginternals/object"
	"gitgo/internal/env"
	"gitgo/internal/gitpath"
)

// List of errors returned by the Repository struct
var (
	ErrRepositoryNotExist           = errors.New("repository does not exist")
	ErrRepositoryUnsupportedVersion = errors.New("repository not supported")
	ErrRepositoryExists             = errors.New("repository already exists")
	ErrTagNotFound                  = errors.New("tag not found")
	ErrTagExists                    = errors.New("tag already exists")
)

// repoFormatVersion is the highest repositoryformatversion this
// implementation knows how to read
const repoFormatVersion = 0

// Repository represent a git repository
// A Git repository is the .git/ folder inside a project.
// This repository tracks all changes made to files in your project,
// building a history over time.
// https://blog.axosoft.com/learning-git-repository/
type Repository struct {
	// Config is the configuration that was used to open/create this
	// repository
	Config *config.Config

	dotGit   backend.Backend
	workTree afero.Fs
}

// InitOptions contains all the optional data used to initialized a
// repository
type InitOptions struct {
	// IsBare represents whether a bare repository will be created or not
	IsBare bool
	// InitialBranchName is the name given to the first branch of the
	// repository. Defaults to "main"
	InitialBranchName string
	// Symlink tells Init to create the working tree's .git file as a
	// symlink to the git directory instead of the regular gitdir-file
	// format. This only matters when GitDirPath differs from the
	// default $WorkTree/.git location.
	Symlink bool
	// GitBackend represents the underlying backend to use to init the
	// repository and interact with the odb
	// By default the filesystem will be used
	GitBackend backend.Backend
	// WorkingTreeBackend represents the underlying backend to use to
	// interact with the working tree.
	// By default the filesystem will be used
	// Setting this is useless if IsBare is set to true
	WorkingTreeBackend afero.Fs
}

// InitRepository initialize a new git repository by creating the .git
// directory in the given path, which is where almost everything that
// Git stores and manipulates is located.
// https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain#ch10-git-internals
func InitRepository(repoPath string) (*Repository, error) {
	return InitRepositoryWithOptions(repoPath, InitOptions{})
}

// InitRepositoryWithOptions initialize a new git repository by creating
// the .git directory in the given path, which is where almost
// everything that Git stores and manipulates is located.
// https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain#ch10-git-internals
func InitRepositoryWithOptions(repoPath string, opts InitOptions) (*Repository, error) {
	dotGitPath := repoPath
	if !opts.IsBare {
		dotGitPath = filepath.Join(repoPath, gitpath.DotGitPath)
	}

	cfg, err := config.LoadConfig(env.NewFromOs(), config.LoadConfigOptions{
		WorkingDirectory: repoPath,
		GitDirPath:       dotGitPath,
		IsBare:           opts.IsBare,
		SkipGitDirLookUp: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not load config: %w", err)
	}

	return InitRepositoryWithParams(cfg, opts)
}

// InitRepositoryWithParams initializes a new git repository using an
// already built configuration. This is the entry point used when the
// caller needs full control over where the git directory, the object
// directory, and the working tree are located (ex. GIT_DIR /
// GIT_OBJECT_DIRECTORY support in the CLI).
func InitRepositoryWithParams(cfg *config.Config, opts InitOptions) (*Repository, error) {
	r := &Repository{
		Config: cfg,
		dotGit: opts.GitBackend,
	}
	if r.dotGit == nil {
		r.dotGit = fsbackend.New(cfg)
	}

	if !opts.IsBare {
		r.workTree = opts.WorkingTreeBackend
		if r.workTree == nil {
			r.workTree = afero.NewOsFs()
		}
	}

	if err := r.dotGit.Init(); err != nil {
		return nil, err
	}

	branchName := opts.InitialBranchName
	if branchName == "" {
		branchName = "main"
	}

	ref := ginternals.NewSymbolicReference(ginternals.Head, ginternals.LocalBranchFullName(branchName))
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, ErrRepositoryExists
		}
		return nil, err
	}

	return r, nil
}

// OpenOptions contains all the optional data used to open a
// repository
type OpenOptions struct {
	// IsBare represents whether a bare repository will be created or not
	IsBare bool
	// GitBackend represents the underlying backend to use to init the
	// repository and interact with the odb
	// By default the filesystem will be used
	GitBackend backend.Backend
	// WorkingTreeBackend represents the underlying backend to use to
	// interact with the working tree.
	// By default the filesystem will be used
	// Setting this is useless if IsBare is set to true
	WorkingTreeBackend afero.Fs
}

// OpenRepository loads an existing git repository by reading its
// config file, and returns a Repository instance
func OpenRepository(repoPath string) (*Repository, error) {
	return OpenRepositoryWithOptions(repoPath, OpenOptions{})
}

// OpenRepositoryWithOptions loads an existing git repository by reading
// its config file, and returns a Repository instance
func OpenRepositoryWithOptions(repoPath string, opts OpenOptions) (*Repository, error) {
	dotGitPath := repoPath
	if !opts.IsBare {
		dotGitPath = filepath.Join(repoPath, gitpath.DotGitPath)
	}

	cfg, err := config.LoadConfig(env.NewFromOs(), config.LoadConfigOptions{
		WorkingDirectory: repoPath,
		GitDirPath:       dotGitPath,
		IsBare:           opts.IsBare,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not load config: %w", err)
	}

	return OpenRepositoryWithParams(cfg, opts)
}

// OpenRepositoryWithParams loads an existing git repository using an
// already built configuration, and returns a Repository instance
func OpenRepositoryWithParams(cfg *config.Config, opts OpenOptions) (*Repository, error) {
	r := &Repository{
		Config: cfg,
		dotGit: opts.GitBackend,
	}
	if r.dotGit == nil {
		r.dotGit = fsbackend.New(cfg)
	}

	if !opts.IsBare {
		r.workTree = opts.WorkingTreeBackend
		if r.workTree == nil {
			r.workTree = afero.NewOsFs()
		}
	}

	// since we can't check if the directory exists on disk to
	// validate if the repo exists, we're instead going to see if HEAD
	// exists (since it should always be there)
	if _, err := r.dotGit.Reference(ginternals.Head); err != nil {
		return nil, ErrRepositoryNotExist
	}

	version, ok := cfg.RepoFormatVersion()
	if ok && version > repoFormatVersion {
		return nil, ErrRepositoryUnsupportedVersion
	}

	return r, nil
}

// IsBare returns whether the repository has no working tree
func (r *Repository) IsBare() bool {
	return r.workTree == nil
}

// GetObject returns the object matching the given Oid
func (r *Repository) GetObject(oid ginternals.Oid) (*object.Object, error) {
	return r.dotGit.Object(oid)
}

// WriteObject writes an object on disk and return its Oid
func (r *Repository) WriteObject(o *object.Object) (ginternals.Oid, error) {
	return r.dotGit.WriteObject(o)
}

// NewBlob creates, stores, and returns a new Blob object
func (r *Repository) NewBlob(data []byte) (*object.Blob, error) {
	o := object.New(object.TypeBlob, data)
	if _, err := r.WriteObject(o); err != nil {
		return nil, xerrors.Errorf("could not store blob: %w", err)
	}
	return object.NewBlob(o), nil
}

// GetCommit returns the commit matching the given Oid
func (r *Repository) GetCommit(oid ginternals.Oid) (*object.Commit, error) {
	o, err := r.GetObject(oid)
	if err != nil {
		return nil, xerrors.Errorf("could not get commit object %s: %w", oid.String(), err)
	}
	return o.AsCommit()
}

// GetTree returns the tree matching the given Oid
func (r *Repository) GetTree(oid ginternals.Oid) (*object.Tree, error) {
	o, err := r.GetObject(oid)
	if err != nil {
		return nil, xerrors.Errorf("could not get tree object %s: %w", oid.String(), err)
	}
	return o.AsTree()
}

// GetTag returns the reference of the tag with the given short name
// (ex. "v1.0.0" for "refs/tags/v1.0.0")
func (r *Repository) GetTag(name string) (*ginternals.Reference, error) {
	ref, err := r.dotGit.Reference(ginternals.LocalTagFullName(name))
	if err != nil {
		if errors.Is(err, ginternals.ErrRefNotFound) {
			return nil, fmt.Errorf("tag %s: %w", name, ErrTagNotFound)
		}
		return nil, err
	}
	return ref, nil
}

// NewCommit creates a new commit, persists it, and makes the given
// reference point to it. refName is the full name of the reference
// to update (ex. refs/heads/main)
func (r *Repository) NewCommit(refName string, tree *object.Tree, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	for _, parentID := range opts.ParentsID {
		parent, err := r.GetObject(parentID)
		if err != nil {
			return nil, xerrors.Errorf("could not load parent %s: %w", parentID.String(), err)
		}
		if parent.Type() != object.TypeCommit {
			return nil, fmt.Errorf("invalid type for parent %s, expected a commit, got %s: %w", parentID.String(), parent.Type(), object.ErrObjectInvalid)
		}
	}

	c := object.NewCommit(tree.ID(), author, opts)
	if _, err := r.WriteObject(c.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist commit: %w", err)
	}

	ref := ginternals.NewReference(refName, c.ID())
	if err := r.dotGit.WriteReference(ref); err != nil {
		return nil, xerrors.Errorf("could not update reference %s: %w", refName, err)
	}

	return c, nil
}

// NewDetachedCommit creates a new commit and persists it, without
// updating any reference
func (r *Repository) NewDetachedCommit(tree *object.Tree, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	for _, parentID := range opts.ParentsID {
		parent, err := r.GetObject(parentID)
		if err != nil {
			return nil, xerrors.Errorf("could not load parent %s: %w", parentID.String(), err)
		}
		if parent.Type() != object.TypeCommit {
			return nil, fmt.Errorf("invalid type for parent %s, expected a commit, got %s: %w", parentID.String(), parent.Type(), object.ErrObjectInvalid)
		}
	}

	c := object.NewCommit(tree.ID(), author, opts)
	if _, err := r.WriteObject(c.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist commit: %w", err)
	}
	return c, nil
}

// NewTag creates a new annotated tag, persists it, and stores its
// reference under refs/tags
func (r *Repository) NewTag(params *object.TagParams) (*object.Tag, error) {
	refName := ginternals.LocalTagFullName(params.Name)
	if _, err := r.dotGit.Reference(refName); err == nil {
		return nil, fmt.Errorf("tag %s: %w", params.Name, ErrTagExists)
	} else if !errors.Is(err, ginternals.ErrRefNotFound) {
		return nil, err
	}

	if err := r.checkTaggable(params.Target.ID()); err != nil {
		return nil, err
	}

	tag, err := object.NewTag(params)
	if err != nil {
		return nil, err
	}

	o := tag.ToObject()
	if _, err := r.WriteObject(o); err != nil {
		return nil, xerrors.Errorf("could not persist tag: %w", err)
	}

	ref := ginternals.NewReference(refName, o.ID())
	if err := r.dotGit.WriteReference(ref); err != nil {
		return nil, xerrors.Errorf("could not update reference %s: %w", refName, err)
	}

	// re-parse the persisted object so the returned Tag carries its
	// real (non-zero) ID, matching how GetTag()/GetObject() would
	// return it afterward
	return o.AsTag()
}

// NewLightweightTag creates a lightweight tag, which is just a
// reference under refs/tags pointing directly at an object
func (r *Repository) NewLightweightTag(name string, target ginternals.Oid) (*ginternals.Reference, error) {
	refName := ginternals.LocalTagFullName(name)
	if _, err := r.dotGit.Reference(refName); err == nil {
		return nil, fmt.Errorf("tag %s: %w", name, ErrTagExists)
	} else if !errors.Is(err, ginternals.ErrRefNotFound) {
		return nil, err
	}

	if err := r.checkTaggable(target); err != nil {
		return nil, err
	}

	ref := ginternals.NewReference(refName, target)
	if err := r.dotGit.WriteReference(ref); err != nil {
		return nil, xerrors.Errorf("could not write reference %s: %w", refName, err)
	}
	return ref, nil
}

// checkTaggable makes sure the object behind oid has actually been
// persisted to the odb and is of a type that can be tagged
func (r *Repository) checkTaggable(oid ginternals.Oid) error {
	o, err := r.GetObject(oid)
	if err != nil {
		return fmt.Errorf("could not find target object %s: %w", oid.String(), object.ErrObjectInvalid)
	}
	switch o.Type() {
	case object.TypeCommit, object.TypeTree, object.TypeTag:
		return nil
	default:
		return fmt.Errorf("objects of type %s cannot be tagged: %w", o.Type(), object.ErrObjectInvalid)
	}
}

// GetReference returns the reference matching the given name, resolving
// symbolic references along the way
func (r *Repository) GetReference(name string) (*ginternals.Reference, error) {
	return r.dotGit.Reference(name)
}

// Reference is an alias of GetReference
func (r *Repository) Reference(name string) (*ginternals.Reference, error) {
	return r.GetReference(name)
}

// WriteReference persists a reference, overwriting an existing one with
// the same name if any
func (r *Repository) WriteReference(ref *ginternals.Reference) error {
	return r.dotGit.WriteReference(ref)
}

// Commit is an alias of GetCommit
func (r *Repository) Commit(oid ginternals.Oid) (*object.Commit, error) {
	return r.GetCommit(oid)
}

// NewReference creates (or overwrites) a direct reference pointing at
// the given oid
func (r *Repository) NewReference(name string, target ginternals.Oid) (*ginternals.Reference, error) {
	ref := ginternals.NewReference(name, target)
	if err := r.WriteReference(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// NewSymbolicReference creates (or overwrites) a symbolic reference
// pointing at another reference
func (r *Repository) NewSymbolicReference(name, target string) (*ginternals.Reference, error) {
	ref := ginternals.NewSymbolicReference(name, target)
	if err := r.WriteReference(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// Close releases the resources held by the repository's backend
func (r *Repository) Close() error {
	return r.dotGit.Close()
}
