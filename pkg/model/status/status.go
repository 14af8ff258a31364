// Package status exports errors produced by the model package.
package status

import (
	"github.com/packline/revstore/pkg/errors"
)

var (
	// ErrMalformedID indicates a transaction or revision identifier that
	// does not parse as such
	ErrMalformedID = errors.New("malformed identifier")

	// ErrBadFormat indicates an unparsable repository format descriptor
	ErrBadFormat = errors.New("invalid format descriptor")

	// ErrBadItemHeader indicates an unparsable revision item header
	ErrBadItemHeader = errors.New("invalid revision item header")

	// ErrBadProperties indicates an unparsable revision property blob
	ErrBadProperties = errors.New("invalid revision properties")
)
