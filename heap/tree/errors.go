package tree

import "github.com/cockroachdb/errors"

// ErrNoMemory indicates the provider could not grow the tree.
var ErrNoMemory = errors.New("tree: out of memory")
