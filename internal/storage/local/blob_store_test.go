package local

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebrain/sitebrain/internal/core"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "contexts/site-1/notes.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	data, err := store.GetObject(ctx, "contexts/site-1/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.DeleteObject(ctx, "contexts/site-1/notes.txt"))
	_, err = store.GetObject(ctx, "contexts/site-1/notes.txt")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestTraversalStaysInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "../../escape.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Contains(t, uri, root)
}

func TestDeleteMissingObjectIsNotFound(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	require.ErrorIs(t, store.DeleteObject(context.Background(), "missing.txt"), core.ErrNotFound)
}
