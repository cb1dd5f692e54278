package mmap

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrUnsupported_Wrapped(t *testing.T) {
	err := errors.Wrapf(ErrUnsupported, "provider: map %d bytes", 4096)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.Contains(t, err.Error(), "anonymous mappings not supported")
}

func TestPageSize_PowerOfTwo(t *testing.T) {
	ps := PageSize()
	assert.NotZero(t, ps)
	assert.Zero(t, ps&(ps-1))
}
