/*
Package revstore implements a file-based append-only revisioned
storage engine.

A repository is a directory tree of immutable revision files. Closed
groups of revisions (shards) are consolidated into pack files with
their indexes, and revision properties are packed alongside. The
engine lives in pkg/core; this package re-exports the repository
surface for callers that do not need the subpackages.
*/
package revstore

import (
	"context"

	"github.com/packline/revstore/pkg/core"
	"github.com/packline/revstore/pkg/model"
)

// Aliases for the core repository surface.
type (
	Repository = core.Repository
	Txn        = core.Txn
	Info       = core.Info
	RepoOption = core.RepoOption
	Option     = core.Option
)

// Create initializes a repository at path and returns an open handle
// on it. See core.Create.
func Create(ctx context.Context, path string, opts ...RepoOption) (*Repository, error) {
	return core.Create(ctx, path, opts...)
}

// Open returns a handle on the repository at path. See core.Open.
func Open(ctx context.Context, path string, opts ...RepoOption) (*Repository, error) {
	return core.Open(ctx, path, opts...)
}

// Pack packs every closed shard of the repository at path. See
// core.Pack.
func Pack(ctx context.Context, path string, opts ...Option) error {
	return core.Pack(ctx, path, opts...)
}

// Verify checks the repository at path over a revision range. See
// core.Verify.
func Verify(ctx context.Context, path string, start, end model.RevNum, opts ...Option) error {
	return core.Verify(ctx, path, start, end, opts...)
}

// Recover rebuilds the sidecar metadata of the repository at path.
// See core.Recover.
func Recover(ctx context.Context, path string, opts ...RepoOption) error {
	return core.Recover(ctx, path, opts...)
}

// Upgrade brings the repository at path to the current format. See
// core.Upgrade.
func Upgrade(ctx context.Context, path string, opts ...Option) error {
	return core.Upgrade(ctx, path, opts...)
}
