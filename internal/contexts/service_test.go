package contexts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ctx-%d", g.n), nil
}

type stubEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []float32{0.5, 0.5}, nil
}

func newService(t *testing.T) (*Service, *memory.ContextStore, *memory.BlobStore, *stubEmbedder) {
	t.Helper()
	store := memory.NewContextStore()
	blobs := memory.NewBlobStore()
	embedder := &stubEmbedder{}
	svc := NewService(store, blobs, embedder, fixedClock{now: time.Unix(1700000000, 0).UTC()}, &seqIDs{}, zap.NewNop())
	return svc, store, blobs, embedder
}

func TestCreateTextContextEmbedsAsync(t *testing.T) {
	t.Parallel()

	svc, store, _, embedder := newService(t)
	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:  "site-1",
		Type:    core.ContextTypeText,
		Title:   "Shipping",
		Content: "We ship worldwide.",
	})
	require.NoError(t, err)
	assert.Empty(t, created.Embedding)

	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, got.Embedding)
	assert.Equal(t, []string{"We ship worldwide."}, embedder.calls)
}

func TestCreateFAQEncodesQuestionAnswer(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newService(t)
	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:   "site-1",
		Type:     core.ContextTypeFAQ,
		Title:    "Returns",
		Question: "Can I return an item?",
		Answer:   "Yes, within 30 days.",
	})
	require.NoError(t, err)
	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)
	question, answer := DecodeFAQ(got.Content)
	assert.Equal(t, "Can I return an item?", question)
	assert.Equal(t, "Yes, within 30 days.", answer)
}

func TestCreateFileContextStoresBlobAndDerivesText(t *testing.T) {
	t.Parallel()

	svc, store, blobs, _ := newService(t)
	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:          "site-1",
		Type:            core.ContextTypeFile,
		Title:           "Manual",
		FileName:        "manual.txt",
		FileData:        []byte("Press the red button.\n"),
		FileContentType: "text/plain",
	})
	require.NoError(t, err)
	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Press the red button.", got.Content)
	assert.NotEmpty(t, got.BlobPath)

	data, err := blobs.GetObject(context.Background(), got.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, "Press the red button.\n", string(data))

	raw, err := svc.FileContent(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}

func TestUpdateClearsStaleEmbeddingThenReembeds(t *testing.T) {
	t.Parallel()

	svc, store, _, embedder := newService(t)
	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:  "site-1",
		Type:    core.ContextTypeText,
		Title:   "Hours",
		Content: "Open 9 to 5.",
	})
	require.NoError(t, err)
	svc.Wait()

	// Make the re-embed fail so the cleared vector stays observable.
	embedder.mu.Lock()
	embedder.err = core.ErrEmbeddingFailed
	embedder.mu.Unlock()

	updated, err := svc.Update(context.Background(), created.ID, UpdateParams{Content: "Open 24/7."})
	require.NoError(t, err)
	assert.Equal(t, "Open 24/7.", updated.Content)
	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Embedding, "stale vector must not survive a content change")
}

// gatedEmbedder returns a per-text vector and can hold one text's embed
// open until released, to force overlapping embeds to land out of order.
type gatedEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	gate     chan struct{}
	gateText string
}

func (e *gatedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	gate := e.gate
	gated := text == e.gateText
	vec := e.vectors[text]
	e.mu.Unlock()
	if gated && gate != nil {
		<-gate
	}
	if vec == nil {
		return nil, fmt.Errorf("no vector scripted for %q", text)
	}
	return vec, nil
}

func TestStaleEmbedNeverOverwritesNewerContent(t *testing.T) {
	t.Parallel()

	store := memory.NewContextStore()
	embedder := &gatedEmbedder{
		vectors: map[string][]float32{
			"version A": {0, 1},
			"version B": {1, 0},
			"version C": {0.5, 0.5},
		},
		gate:     make(chan struct{}),
		gateText: "version B",
	}
	svc := NewService(store, memory.NewBlobStore(), embedder,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, &seqIDs{}, zap.NewNop())

	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:  "site-1",
		Type:    core.ContextTypeText,
		Title:   "Policy",
		Content: "version A",
	})
	require.NoError(t, err)
	svc.Wait()

	// Update to B; its embed is held open at the provider.
	_, err = svc.Update(context.Background(), created.ID, UpdateParams{Content: "version B"})
	require.NoError(t, err)

	// Update to C; its embed runs to completion while B's is still pending.
	_, err = svc.Update(context.Background(), created.ID, UpdateParams{Content: "version C"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := store.GetContext(context.Background(), created.ID)
		return err == nil && len(got.Embedding) == 2 && got.Embedding[0] == 0.5
	}, 2*time.Second, 5*time.Millisecond, "the current content's embed should land")

	// Release B's embed; it must notice the content moved on and drop its vector.
	close(embedder.gate)
	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "version C", got.Content)
	assert.Equal(t, []float32{0.5, 0.5}, got.Embedding, "a superseded embed must not replace the current vector")
}

func TestUpdateTitleOnlyKeepsEmbedding(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newService(t)
	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:  "site-1",
		Type:    core.ContextTypeText,
		Title:   "Hours",
		Content: "Open 9 to 5.",
	})
	require.NoError(t, err)
	svc.Wait()

	_, err = svc.Update(context.Background(), created.ID, UpdateParams{Title: "Opening hours"})
	require.NoError(t, err)
	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Opening hours", got.Title)
	assert.NotEmpty(t, got.Embedding)
}

func TestDeleteRemovesBlobAndRow(t *testing.T) {
	t.Parallel()

	svc, store, blobs, _ := newService(t)
	created, err := svc.Create(context.Background(), CreateParams{
		SiteID:          "site-1",
		Type:            core.ContextTypeFile,
		Title:           "Manual",
		FileName:        "manual.txt",
		FileData:        []byte("content"),
		FileContentType: "text/plain",
	})
	require.NoError(t, err)
	svc.Wait()

	got, err := store.GetContext(context.Background(), created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = store.GetContext(context.Background(), created.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = blobs.GetObject(context.Background(), got.BlobPath)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newService(t)
	_, err := svc.Create(context.Background(), CreateParams{
		SiteID: "site-1",
		Type:   core.ContextTypeText,
		Title:  "Empty",
	})
	require.Error(t, err)
}

func TestDecodeFAQFallsBackForFreeformContent(t *testing.T) {
	t.Parallel()

	question, answer := DecodeFAQ("just some text")
	assert.Empty(t, question)
	assert.Equal(t, "just some text", answer)
}
