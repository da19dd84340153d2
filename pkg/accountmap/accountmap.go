// Package accountmap translates a source-forge identity (a GitHub
// login or GitLab username) into the destination-GitLab username that
// should own the mirrored work.
package accountmap

import "context"

// Map looks up the destination username for a source identity. ok is
// false when the identity has no mapping, which callers treat as a
// benign skip, not an error.
type Map interface {
	Lookup(ctx context.Context, src string) (dest string, ok bool, err error)
}
