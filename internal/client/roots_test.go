package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

func TestRootStoreMissingFileIsEmpty(t *testing.T) {
	rs, err := OpenRootStore(t.TempDir())
	require.NoError(t, err)

	got, err := rs.Get("example.com:2636")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRootStoreSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rs, err := OpenRootStore(dir)
	require.NoError(t, err)

	root := merkle.Sum([]byte("some root"))
	key := ServerKey("example.com", 2636)
	require.NoError(t, rs.Set(key, root))

	got, err := rs.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, root, *got)

	reopened, err := OpenRootStore(dir)
	require.NoError(t, err)
	got2, err := reopened.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got2)
	assert.Equal(t, root, *got2)
}

func TestServerKey(t *testing.T) {
	assert.Equal(t, "example.com:2636", ServerKey("example.com", 2636))
}
