// Package chat implements the retrieval-augmented chat responder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/metrics"
	"github.com/sitebrain/sitebrain/internal/retrieval"
)

// Config controls responder behavior.
type Config struct {
	// TopK is how many retrieved items feed the prompt.
	TopK int
}

// replyTimeout bounds background reply generation after the widget request
// has already been acknowledged.
const replyTimeout = 60 * time.Second

// Responder answers widget messages: embed the question, retrieve the
// closest site content, and generate a grounded completion. Messages
// within one session are handled strictly one at a time so the history
// each prompt sees is never mid-write.
type Responder struct {
	store     core.ChatStore
	sites     core.SiteStore
	embedder  core.Embedder
	retriever core.Retriever
	generator core.Generator
	clock     core.Clock
	ids       core.IDGenerator
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
	wg       sync.WaitGroup
}

func NewResponder(
	store core.ChatStore,
	sites core.SiteStore,
	embedder core.Embedder,
	retriever core.Retriever,
	generator core.Generator,
	clock core.Clock,
	ids core.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Responder {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Responder{
		store:     store,
		sites:     sites,
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[string]*sync.Mutex),
	}
}

// CreateSession opens a new widget session against an existing site.
func (r *Responder) CreateSession(ctx context.Context, siteID string) (core.ChatSession, error) {
	if _, err := r.sites.GetSite(ctx, siteID); err != nil {
		return core.ChatSession{}, err
	}
	id, err := r.ids.NewID()
	if err != nil {
		return core.ChatSession{}, fmt.Errorf("new session id: %w", err)
	}
	now := r.clock.Now()
	session := core.ChatSession{ID: id, SiteID: siteID, CreatedAt: now, UpdatedAt: now}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return core.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Respond appends the user's message and produces the assistant reply.
// The user message persists even when the reply fails; an empty or failed
// completion is never written to the history.
func (r *Responder) Respond(ctx context.Context, sessionID, text string) (core.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return core.ChatMessage{}, fmt.Errorf("message text is empty")
	}

	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return core.ChatMessage{}, err
	}
	site, err := r.sites.GetSite(ctx, session.SiteID)
	if err != nil {
		return core.ChatMessage{}, err
	}

	if err := r.append(ctx, sessionID, core.RoleUser, text); err != nil {
		return core.ChatMessage{}, err
	}

	reply, err := r.generateReply(ctx, site, sessionID, text)
	if err != nil {
		metrics.ObserveChatMessage("failed")
		return core.ChatMessage{}, err
	}

	msg, err := r.appendMsg(ctx, sessionID, core.RoleAssistant, reply)
	if err != nil {
		return core.ChatMessage{}, err
	}
	metrics.ObserveChatMessage("answered")
	return msg, nil
}

// Accept acknowledges a widget message immediately and produces the reply
// in the background. The returned message is the persisted user turn. Both
// the append and the reply run under the session lock, so turns within one
// session stay strictly ordered.
func (r *Responder) Accept(ctx context.Context, sessionID, text string) (core.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return core.ChatMessage{}, fmt.Errorf("message text is empty")
	}
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return core.ChatMessage{}, err
	}
	id, err := r.ids.NewID()
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("new message id: %w", err)
	}
	userMsg := core.ChatMessage{
		ID:            id,
		ChatSessionID: sessionID,
		Role:          core.RoleUser,
		Content:       text,
		CreatedAt:     r.clock.Now(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		bctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()

		lock := r.sessionLock(sessionID)
		lock.Lock()
		defer lock.Unlock()

		if err := r.store.AppendMessage(bctx, userMsg); err != nil {
			r.logger.Error("append user message failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		site, err := r.sites.GetSite(bctx, session.SiteID)
		if err != nil {
			r.logger.Error("load site failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		reply, err := r.generateReply(bctx, site, sessionID, text)
		if err != nil {
			// The user turn stays in the history; the widget just polls no reply.
			metrics.ObserveChatMessage("failed")
			r.logger.Warn("reply generation failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		if _, err := r.appendMsg(bctx, sessionID, core.RoleAssistant, reply); err != nil {
			r.logger.Error("append assistant message failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		metrics.ObserveChatMessage("answered")
	}()
	return userMsg, nil
}

// Wait blocks until in-flight background replies finish. Shutdown and tests
// use it.
func (r *Responder) Wait() {
	r.wg.Wait()
}

// Messages lists a session's history; a non-zero after returns only newer
// messages, which the widget uses for polling.
func (r *Responder) Messages(ctx context.Context, sessionID string, after time.Time) ([]core.ChatMessage, error) {
	if _, err := r.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.store.ListMessages(ctx, sessionID, after)
}

// SessionsBySite lists the sessions opened against one site.
func (r *Responder) SessionsBySite(ctx context.Context, siteID string) ([]core.ChatSession, error) {
	return r.store.ListSessionsBySite(ctx, siteID)
}

func (r *Responder) generateReply(ctx context.Context, site core.Site, sessionID, text string) (string, error) {
	query, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	items, err := r.retriever.Relevant(ctx, site.ID, query, r.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	if len(items) == 0 {
		r.logger.Debug("no retrieval hits", zap.String("session_id", sessionID), zap.String("site_id", site.ID))
	}

	history, err := r.store.ListMessages(ctx, sessionID, time.Time{})
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	prompt := make([]core.PromptMessage, 0, len(history))
	for _, msg := range history {
		prompt = append(prompt, core.PromptMessage{Role: msg.Role, Content: msg.Content})
	}

	reply, err := r.generator.Generate(ctx, systemPrompt(site, items), prompt)
	if err != nil {
		if errors.Is(err, core.ErrEmptyCompletion) {
			return "", err
		}
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

func (r *Responder) append(ctx context.Context, sessionID string, role core.Role, content string) error {
	_, err := r.appendMsg(ctx, sessionID, role, content)
	return err
}

func (r *Responder) appendMsg(ctx context.Context, sessionID string, role core.Role, content string) (core.ChatMessage, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("new message id: %w", err)
	}
	msg := core.ChatMessage{
		ID:            id,
		ChatSessionID: sessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     r.clock.Now(),
	}
	if err := r.store.AppendMessage(ctx, msg); err != nil {
		return core.ChatMessage{}, fmt.Errorf("append %s message: %w", role, err)
	}
	return msg, nil
}

func (r *Responder) sessionLock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.sessions[sessionID] = lock
	}
	return lock
}

func systemPrompt(site core.Site, items []core.RetrievedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the support assistant for %s. ", site.Name)
	b.WriteString("Answer visitor questions using the site content below. ")
	b.WriteString("If the content does not cover the question, fall back on your general knowledge.")
	if block := retrieval.PromptBlock(items); block != "" {
		b.WriteString("\n\nSite content:\n\n")
		b.WriteString(block)
	}
	return b.String()
}
