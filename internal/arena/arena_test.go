package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocZeroed(t *testing.T) {
	a := New()
	defer a.Close()

	buf, err := a.Alloc(10)
	require.NoError(t, err)
	assert.Len(t, buf, 10)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestArenaReusesFreedClass(t *testing.T) {
	a := New()
	defer a.Close()

	buf, err := a.Alloc(10)
	require.NoError(t, err)
	buf[0] = 0xFF
	a.Free(buf)

	before := len(a.regions)
	buf2, err := a.Alloc(10)
	require.NoError(t, err)
	assert.Equal(t, before, len(a.regions), "reuse must not mmap a new region")
	assert.Equal(t, byte(0), buf2[0], "reused buffer must be zeroed")
}

func TestArenaDifferentSizeClassesDoNotShare(t *testing.T) {
	a := New()
	defer a.Close()

	small, err := a.Alloc(8)
	require.NoError(t, err)
	a.Free(small)

	large, err := a.Alloc(4096)
	require.NoError(t, err)
	assert.NotEqual(t, cap(small), cap(large))
}

func TestArenaCloseUnmapsAll(t *testing.T) {
	a := New()
	_, err := a.Alloc(32)
	require.NoError(t, err)

	require.NoError(t, a.Close())

	_, err = a.Alloc(32)
	assert.Error(t, err, "alloc after Close must fail")
}
