// Copyright © 2019 Packline

// Package storage provides an interface to handle repository tree objects.
//
// This package supports the following backends:
//   - local file system, with an atomic-rename Put discipline
//   - any afero file system (tests use an in-memory one)
package storage
