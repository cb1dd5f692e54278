// Package mmap reserves and releases anonymous, private, read-write memory
// directly from the operating system. Regions are never backed by files.
package mmap

import "github.com/cockroachdb/errors"

// ErrUnsupported is returned on platforms without an anonymous mapping
// primitive.
var ErrUnsupported = errors.New("mmap: anonymous mappings not supported on this platform")
