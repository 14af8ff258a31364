// Package status exports errors produced by the core package.
package status

import (
	"github.com/packline/revstore/pkg/errors"
)

var (
	// ErrCorrupt indicates repository data or metadata that fails its
	// integrity checks
	ErrCorrupt = errors.New("corrupt repository data")

	// ErrUnsupportedFormat indicates an operation the repository format
	// does not support
	ErrUnsupportedFormat = errors.New("repository format does not support this operation")

	// ErrNotFound indicates a revision that does not exist
	ErrNotFound = errors.New("no such revision")

	// ErrInterrupted signals that the current background processing has been interrupted
	ErrInterrupted = errors.New("background processing interrupted")

	// ErrCommitContention indicates a commit that repeatedly lost the
	// race for the next revision number
	ErrCommitContention = errors.New("could not sequence commit")

	// ErrTxnDone indicates use of a transaction that was already
	// committed or aborted
	ErrTxnDone = errors.New("transaction already committed or aborted")

	// ErrRepCacheDisabled indicates a content lookup on a repository
	// without a rep-cache
	ErrRepCacheDisabled = errors.New("rep-cache not enabled on this repository")

	// ErrNotARepository indicates a path that does not hold a repository
	ErrNotARepository = errors.New("not a repository")

	// ErrAlreadyExists indicates an attempt to create a repository over
	// an existing one
	ErrAlreadyExists = errors.New("repository already exists")

	// ErrBadConfig indicates an unusable repository configuration
	ErrBadConfig = errors.New("invalid repository configuration")
)
