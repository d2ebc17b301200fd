// Package contexts manages owner-supplied knowledge entries and their
// embeddings.
package contexts

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
)

// embedTimeout bounds the background embedding call after the originating
// request has already returned.
const embedTimeout = 30 * time.Second

// CreateParams describes a new context entry. Exactly one content source
// applies per type: Content for text, Question/Answer for faq, FileName
// and FileData for file.
type CreateParams struct {
	SiteID   string
	Type     core.ContextType
	Title    string
	Content  string
	Question string
	Answer   string

	FileName        string
	FileData        []byte
	FileContentType string
}

// UpdateParams carries the fields an owner may change. Empty fields keep
// their stored values.
type UpdateParams struct {
	Title    string
	Content  string
	Question string
	Answer   string
}

// Service owns the context lifecycle. Embeddings are computed off the
// request path: a created or updated context is visible immediately and
// becomes retrievable once its background embed lands.
type Service struct {
	store    core.ContextStore
	blobs    core.BlobStore
	embedder core.Embedder
	clock    core.Clock
	ids      core.IDGenerator
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*sync.Mutex
	wg      sync.WaitGroup
}

func NewService(
	store core.ContextStore,
	blobs core.BlobStore,
	embedder core.Embedder,
	clock core.Clock,
	ids core.IDGenerator,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:    store,
		blobs:    blobs,
		embedder: embedder,
		clock:    clock,
		ids:      ids,
		logger:   logger,
		entries:  make(map[string]*sync.Mutex),
	}
}

// entryLock returns the mutex serializing content and embedding writes for
// one context entry.
func (s *Service) entryLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.entries[id]
	if !ok {
		l = &sync.Mutex{}
		s.entries[id] = l
	}
	return l
}

// Create inserts the context with no embedding and schedules the embed.
func (s *Service) Create(ctx context.Context, params CreateParams) (core.Context, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return core.Context{}, fmt.Errorf("new context id: %w", err)
	}

	now := s.clock.Now()
	c := core.Context{
		ID:        id,
		SiteID:    params.SiteID,
		Type:      params.Type,
		Title:     params.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch params.Type {
	case core.ContextTypeText:
		c.Content = params.Content
	case core.ContextTypeFAQ:
		c.Content = EncodeFAQ(params.Question, params.Answer)
	case core.ContextTypeFile:
		blobPath := path.Join("contexts", params.SiteID, id, params.FileName)
		if _, err := s.blobs.PutObject(ctx, blobPath, params.FileContentType, bytes.NewReader(params.FileData)); err != nil {
			return core.Context{}, fmt.Errorf("store context file: %w", err)
		}
		c.BlobPath = blobPath
		c.Content = deriveText(params.FileData)
	default:
		return core.Context{}, fmt.Errorf("unknown context type %q", params.Type)
	}

	if c.Content == "" {
		return core.Context{}, fmt.Errorf("context content is empty")
	}
	if err := s.store.CreateContext(ctx, c); err != nil {
		return core.Context{}, fmt.Errorf("create context: %w", err)
	}

	s.embedAsync(c.ID, c.Content)
	return c, nil
}

// Update patches the entry, drops the stale embedding, and re-embeds.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (core.Context, error) {
	existing, err := s.store.GetContext(ctx, id)
	if err != nil {
		return core.Context{}, err
	}

	content := params.Content
	if existing.Type == core.ContextTypeFAQ && (params.Question != "" || params.Answer != "") {
		question, answer := DecodeFAQ(existing.Content)
		if params.Question != "" {
			question = params.Question
		}
		if params.Answer != "" {
			answer = params.Answer
		}
		content = EncodeFAQ(question, answer)
	}

	patch := core.ContextPatch{}
	if params.Title != "" {
		patch.Title = core.StringPtr(params.Title)
	}
	if content != "" {
		patch.Content = core.StringPtr(content)
		// The old vector no longer describes the content.
		patch.ClearEmbedding = true
	}
	lock := s.entryLock(id)
	lock.Lock()
	if err := s.store.UpdateContext(ctx, id, patch); err != nil {
		lock.Unlock()
		return core.Context{}, err
	}
	updated, err := s.store.GetContext(ctx, id)
	lock.Unlock()
	if err != nil {
		return core.Context{}, err
	}
	if patch.ClearEmbedding {
		s.embedAsync(updated.ID, updated.Content)
	}
	return updated, nil
}

// Delete removes the entry and its backing file if it has one.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.store.GetContext(ctx, id)
	if err != nil {
		return err
	}
	if existing.BlobPath != "" {
		if err := s.blobs.DeleteObject(ctx, existing.BlobPath); err != nil && err != core.ErrNotFound {
			s.logger.Warn("delete context blob failed",
				zap.String("context_id", id),
				zap.String("blob_path", existing.BlobPath),
				zap.Error(err),
			)
		}
	}
	return s.store.DeleteContext(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (core.Context, error) {
	return s.store.GetContext(ctx, id)
}

func (s *Service) ListBySite(ctx context.Context, siteID string) ([]core.Context, error) {
	return s.store.ListContextsBySite(ctx, siteID)
}

// FileContent reads back the raw uploaded file for a file context.
func (s *Service) FileContent(ctx context.Context, id string) ([]byte, error) {
	c, err := s.store.GetContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.BlobPath == "" {
		return nil, core.ErrNotFound
	}
	return s.blobs.GetObject(ctx, c.BlobPath)
}

// embedAsync computes the vector off the request path. An embed failure
// leaves the context without a vector; retrieval skips it until the next
// update re-triggers the embed.
func (s *Service) embedAsync(id, content string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
		defer cancel()

		vector, err := s.embedder.Embed(ctx, content)
		if err != nil {
			s.logger.Warn("context embedding failed", zap.String("context_id", id), zap.Error(err))
			return
		}

		lock := s.entryLock(id)
		lock.Lock()
		defer lock.Unlock()
		current, err := s.store.GetContext(ctx, id)
		if err != nil {
			s.logger.Warn("context gone before embed landed", zap.String("context_id", id), zap.Error(err))
			return
		}
		// A newer update changed the content; its own embed owns the vector.
		if current.Content != content {
			return
		}
		if err := s.store.UpdateContext(ctx, id, core.ContextPatch{Embedding: vector}); err != nil {
			s.logger.Warn("store context embedding failed", zap.String("context_id", id), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight background embeds finish. Shutdown and tests
// use it; request handlers never do.
func (s *Service) Wait() {
	s.wg.Wait()
}

// deriveText extracts embeddable text from an uploaded file. Uploads are
// plain text or Markdown; anything else embeds as-is.
func deriveText(data []byte) string {
	return strings.TrimSpace(string(data))
}
