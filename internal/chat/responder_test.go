package chat

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
	"github.com/sitebrain/sitebrain/internal/metrics"
	"github.com/sitebrain/sitebrain/internal/retrieval"
	"github.com/sitebrain/sitebrain/internal/storage/memory"
)

func init() {
	metrics.Init()
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("msg-%d", g.n), nil
}

type stubEmbedder struct{ err error }

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	systems []string
	prompts [][]core.PromptMessage
}

func (g *scriptedGenerator) Generate(_ context.Context, system string, history []core.PromptMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.systems = append(g.systems, system)
	g.prompts = append(g.prompts, history)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "default reply", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type chatEnv struct {
	store     *memory.ChatStore
	generator *scriptedGenerator
	embedder  *stubEmbedder
	responder *Responder
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	sites := memory.NewSiteStore()
	require.NoError(t, sites.CreateSite(context.Background(), core.Site{
		ID:          "site-1",
		Name:        "Acme Docs",
		SourceURL:   "https://example.com/sitemap.xml",
		OwnerID:     "owner-1",
		CrawlStatus: core.CrawlStatusCompleted,
	}))

	pages := memory.NewPageStore()
	_, err := pages.UpsertPage(context.Background(), core.Page{
		ID:          "page-1",
		SiteID:      "site-1",
		URL:         "https://example.com/shipping",
		Markdown:    "We ship worldwide within 5 days.",
		Embedding:   []float32{1, 0},
		CrawlStatus: core.CrawlStatusCompleted,
	})
	require.NoError(t, err)

	e := &chatEnv{
		store:     memory.NewChatStore(),
		generator: &scriptedGenerator{},
		embedder:  &stubEmbedder{},
	}
	e.responder = NewResponder(
		e.store, sites, e.embedder,
		retrieval.NewEngine(pages, memory.NewContextStore()),
		e.generator,
		&tickingClock{now: time.Unix(1700000000, 0).UTC()}, &seqIDs{},
		Config{TopK: 3}, zap.NewNop(),
	)
	return e
}

func TestRespondAppendsBothTurns(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	session, err := e.responder.CreateSession(context.Background(), "site-1")
	require.NoError(t, err)

	e.generator.replies = []string{"We ship worldwide."}
	reply, err := e.responder.Respond(context.Background(), session.ID, "Do you ship to Japan?")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAssistant, reply.Role)
	assert.Equal(t, "We ship worldwide.", reply.Content)

	msgs, err := e.responder.Messages(context.Background(), session.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)

	// The prompt carries retrieved site content and the user turn.
	require.Len(t, e.generator.systems, 1)
	assert.Contains(t, e.generator.systems[0], "Acme Docs")
	assert.Contains(t, e.generator.systems[0], "We ship worldwide within 5 days.")
	// Thin sites still get answers: the model may use general knowledge
	// when the retrieved content falls short.
	assert.Contains(t, e.generator.systems[0], "fall back on your general knowledge")
	require.Len(t, e.generator.prompts[0], 1)
	assert.Equal(t, "Do you ship to Japan?", e.generator.prompts[0][0].Content)
}

func TestEmptyCompletionIsNotPersisted(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	session, err := e.responder.CreateSession(context.Background(), "site-1")
	require.NoError(t, err)

	e.generator.err = core.ErrEmptyCompletion
	_, err = e.responder.Respond(context.Background(), session.ID, "Hello?")
	require.ErrorIs(t, err, core.ErrEmptyCompletion)

	msgs, err := e.responder.Messages(context.Background(), session.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1, "only the user turn survives a failed completion")
	assert.Equal(t, core.RoleUser, msgs[0].Role)
}

func TestEmbedFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	session, err := e.responder.CreateSession(context.Background(), "site-1")
	require.NoError(t, err)

	e.embedder.err = core.ErrEmbeddingFailed
	_, err = e.responder.Respond(context.Background(), session.ID, "Hello?")
	require.ErrorIs(t, err, core.ErrEmbeddingFailed)

	msgs, err := e.responder.Messages(context.Background(), session.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestRespondWithNoRetrievalHitsStillAnswers(t *testing.T) {
	t.Parallel()

	sites := memory.NewSiteStore()
	require.NoError(t, sites.CreateSite(context.Background(), core.Site{
		ID: "site-empty", Name: "Empty", SourceURL: "https://empty.example.com/sitemap.xml",
		OwnerID: "owner-1", CrawlStatus: core.CrawlStatusCompleted,
	}))
	responder := NewResponder(
		memory.NewChatStore(), sites, &stubEmbedder{},
		retrieval.NewEngine(memory.NewPageStore(), memory.NewContextStore()),
		&scriptedGenerator{replies: []string{"I don't have that information."}},
		&tickingClock{now: time.Unix(1700000000, 0).UTC()}, &seqIDs{},
		Config{}, zap.NewNop(),
	)

	session, err := responder.CreateSession(context.Background(), "site-empty")
	require.NoError(t, err)
	reply, err := responder.Respond(context.Background(), session.ID, "Anything?")
	require.NoError(t, err)
	assert.Equal(t, "I don't have that information.", reply.Content)
}

func TestAcceptAnswersInBackground(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	session, err := e.responder.CreateSession(context.Background(), "site-1")
	require.NoError(t, err)

	e.generator.replies = []string{"Yes we do."}
	userMsg, err := e.responder.Accept(context.Background(), session.ID, "Do you ship to Japan?")
	require.NoError(t, err)
	assert.Equal(t, core.RoleUser, userMsg.Role)

	e.responder.Wait()

	msgs, err := e.responder.Messages(context.Background(), session.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, userMsg.ID, msgs[0].ID)
	assert.Equal(t, "Yes we do.", msgs[1].Content)
}

func TestAcceptKeepsUserTurnWhenReplyFails(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	session, err := e.responder.CreateSession(context.Background(), "site-1")
	require.NoError(t, err)

	e.generator.err = core.ErrEmptyCompletion
	_, err = e.responder.Accept(context.Background(), session.ID, "Hello?")
	require.NoError(t, err)
	e.responder.Wait()

	msgs, err := e.responder.Messages(context.Background(), session.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
}

func TestCreateSessionRequiresExistingSite(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	_, err := e.responder.CreateSession(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestConcurrentMessagesSerializePerSession(t *testing.T) {
	t.Parallel()

	e := newChatEnv(t)
	session, err := e.responder.CreateSession(context.Background(), "site-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := e.responder.Respond(context.Background(), session.ID, fmt.Sprintf("question %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := e.responder.Messages(context.Background(), session.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 8)
	// Strict serialization means turns alternate user/assistant.
	for i, msg := range msgs {
		if i%2 == 0 {
			assert.Equal(t, core.RoleUser, msg.Role, "message %d", i)
		} else {
			assert.Equal(t, core.RoleAssistant, msg.Role, "message %d", i)
		}
	}
}
