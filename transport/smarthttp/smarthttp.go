// Package smarthttp implements the client side of git's smart HTTP
// transport (protocol v0), enough to discover a remote's refs and fetch a
// single packfile via git-upload-pack.
// https://git-scm.com/docs/http-protocol
package smarthttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/xerrors"

	"gitgo/ginternals"
	"gitgo/internal/pktline"
)

// ErrNoDefaultBranch is returned when a ref advertisement contains
// neither refs/heads/main nor refs/heads/master
var ErrNoDefaultBranch = errors.New("no default branch advertised")

// ErrUnexpectedStatus is returned when the remote answers a request with
// a non-200 status code
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// ErrMissingPackMagic is returned when a git-upload-pack response never
// contains the "PACK" marker
var ErrMissingPackMagic = errors.New("response did not contain a packfile")

const uploadPackService = "git-upload-pack"

// RefAdvertisement is the result of discovering a remote's refs
type RefAdvertisement struct {
	// Refs maps every advertised ref name to the oid it points at
	Refs map[string]ginternals.Oid
	// Capabilities is the raw, space-separated capability list
	// advertised alongside the first ref
	Capabilities string
	// DefaultRef is the full name of the ref selected as the clone
	// target: refs/heads/main if present, else refs/heads/master
	DefaultRef string
}

// DiscoverRefs performs the first half of a smart-HTTP clone: a GET
// against <url>/info/refs?service=git-upload-pack, returning every
// advertised ref and the one that should be checked out.
func DiscoverRefs(client *http.Client, url string) (*RefAdvertisement, error) {
	refsURL := fmt.Sprintf("%s/info/refs?service=%s", strings.TrimSuffix(url, "/"), uploadPackService)

	resp, err := client.Get(refsURL)
	if err != nil {
		return nil, xerrors.Errorf("could not fetch %s: %w", refsURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing to do with this error

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("%s returned %d: %w", refsURL, resp.StatusCode, ErrUnexpectedStatus)
	}

	lines, err := pktline.NewScanner(resp.Body).ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("could not parse ref advertisement: %w", err)
	}

	ad := &RefAdvertisement{
		Refs: map[string]ginternals.Oid{},
	}
	first := true
	for _, line := range lines {
		if line.Flush {
			continue
		}
		if bytes.HasPrefix(line.Payload, []byte("# service=")) {
			continue
		}

		payload := line.Payload
		if first {
			first = false
			if i := bytes.IndexByte(payload, 0); i >= 0 {
				ad.Capabilities = string(payload[i+1:])
				payload = payload[:i]
			}
		}
		payload = bytes.TrimRight(payload, "\n")

		parts := bytes.SplitN(payload, []byte(" "), 2)
		if len(parts) != 2 {
			continue
		}
		oid, err := ginternals.NewOidFromStr(string(parts[0]))
		if err != nil {
			return nil, xerrors.Errorf("invalid oid in ref advertisement %q: %w", parts[0], err)
		}
		ad.Refs[string(parts[1])] = oid
	}

	switch {
	case ad.Refs[ginternals.LocalBranchFullName("main")] != ginternals.NullOid:
		ad.DefaultRef = ginternals.LocalBranchFullName("main")
	case ad.Refs[ginternals.LocalBranchFullName("master")] != ginternals.NullOid:
		ad.DefaultRef = ginternals.LocalBranchFullName("master")
	default:
		return nil, ErrNoDefaultBranch
	}

	return ad, nil
}

// UploadPack performs the negotiation half of a smart-HTTP clone: a POST
// against <url>/git-upload-pack wanting a single oid and asking for
// everything (no haves, since this is always a full clone), and returns
// the raw bytes of the packfile found in the response.
func UploadPack(client *http.Client, url string, want ginternals.Oid) ([]byte, error) {
	var body bytes.Buffer
	if err := pktline.Encode(&body, fmt.Sprintf("want %s\n", want.String())); err != nil {
		return nil, err
	}
	if err := pktline.Flush(&body); err != nil {
		return nil, err
	}
	if err := pktline.Encode(&body, "done\n"); err != nil {
		return nil, err
	}

	uploadURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(url, "/"), uploadPackService)
	req, err := http.NewRequest(http.MethodPost, uploadURL, &body)
	if err != nil {
		return nil, xerrors.Errorf("could not build request to %s: %w", uploadURL, err)
	}
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
	req.Header.Set("Accept", "application/x-git-upload-pack-result")

	resp, err := client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("could not POST %s: %w", uploadURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing to do with this error

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("%s returned %d: %w", uploadURL, resp.StatusCode, ErrUnexpectedStatus)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("could not read upload-pack response: %w", err)
	}

	// The response is a series of pkt-lines (NAK/ACK, progress bands under
	// protocol v2, ...) immediately followed by the raw PACK stream; we
	// don't negotiate capabilities that would change its shape, so the
	// simplest robust way to find it is to scan for the literal marker.
	idx := bytes.Index(raw, []byte("PACK"))
	if idx < 0 {
		return nil, ErrMissingPackMagic
	}
	return raw[idx:], nil
}
