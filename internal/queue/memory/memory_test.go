package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebrain/sitebrain/internal/core"
)

func TestQueueRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	q := New(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, core.CrawlRequest{PageID: "page-1"}))
	require.NoError(t, q.Enqueue(ctx, core.CrawlRequest{PageID: "page-2"}))
	assert.Equal(t, 2, q.Len())

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "page-1", first.PageID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "page-2", second.PageID)
}

func TestDequeueHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.CrawlRequest{PageID: "page-1"}))

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(full, core.CrawlRequest{PageID: "page-2"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
