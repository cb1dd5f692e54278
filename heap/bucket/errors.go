package bucket

import "github.com/cockroachdb/errors"

// ErrNoPage indicates the page source could not supply a page.
var ErrNoPage = errors.New("bucket: page source exhausted")
