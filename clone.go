package git

import (
	"net/http"
	"path"

	"golang.org/x/xerrors"

	"gitgo/ginternals"
	"gitgo/ginternals/packfile"
	"gitgo/transport/smarthttp"
)

// CloneOptions contains the optional parameters for Clone
type CloneOptions struct {
	// Client is the HTTP client used to talk to the remote. Defaults to
	// http.DefaultClient.
	Client *http.Client
}

// Clone creates a new repository at dirPath, fetches every object
// reachable from the remote's default branch over the smart HTTP
// protocol, writes the corresponding local branch and HEAD, and checks
// the result out into the working tree.
func Clone(url, dirPath string, opts *CloneOptions) (*Repository, error) {
	if opts == nil {
		opts = &CloneOptions{}
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	ad, err := smarthttp.DiscoverRefs(client, url)
	if err != nil {
		return nil, xerrors.Errorf("could not discover refs at %s: %w", url, err)
	}
	want := ad.Refs[ad.DefaultRef]

	pack, err := smarthttp.UploadPack(client, url, want)
	if err != nil {
		return nil, xerrors.Errorf("could not fetch pack from %s: %w", url, err)
	}

	r, err := InitRepositoryWithOptions(dirPath, InitOptions{})
	if err != nil {
		return nil, xerrors.Errorf("could not initialize %s: %w", dirPath, err)
	}

	if _, err := packfile.ParseInMemory(pack, r); err != nil {
		r.Close() //nolint:errcheck // we're already failing
		return nil, xerrors.Errorf("could not ingest packfile from %s: %w", url, err)
	}

	branch := path.Base(ad.DefaultRef)
	branchRef := ginternals.LocalBranchFullName(branch)
	if _, err := r.NewReference(branchRef, want); err != nil {
		r.Close() //nolint:errcheck // we're already failing
		return nil, xerrors.Errorf("could not write %s: %w", branchRef, err)
	}
	if _, err := r.NewSymbolicReference(ginternals.Head, branchRef); err != nil {
		r.Close() //nolint:errcheck // we're already failing
		return nil, xerrors.Errorf("could not update HEAD: %w", err)
	}

	commit, err := r.GetCommit(want)
	if err != nil {
		r.Close() //nolint:errcheck // we're already failing
		return nil, xerrors.Errorf("could not load commit %s: %w", want.String(), err)
	}
	if err := r.Checkout(commit.TreeID()); err != nil {
		r.Close() //nolint:errcheck // we're already failing
		return nil, xerrors.Errorf("could not check out %s: %w", branch, err)
	}

	return r, nil
}
