package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sitebrain/sitebrain/internal/core"
)

// RunStore is an in-memory core.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]core.CrawlRun
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]core.CrawlRun)}
}

// CreateRun stores a new run record.
func (s *RunStore) CreateRun(_ context.Context, run core.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (core.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return core.CrawlRun{}, core.ErrNotFound
	}
	return run, nil
}

// Checkpoint persists step progress for a running crawl.
func (s *RunStore) Checkpoint(_ context.Context, id string, step core.RunStep, cursor int, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return core.ErrNotFound
	}
	run.Step = step
	run.Cursor = cursor
	if urls != nil {
		run.URLs = append([]string(nil), urls...)
	}
	s.runs[id] = run
	return nil
}

// FinishRun records the terminal status and counters.
func (s *RunStore) FinishRun(_ context.Context, id string, status core.RunStatus, succeeded, failed int, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return core.ErrNotFound
	}
	run.Status = status
	run.PagesSucceeded = succeeded
	run.PagesFailed = failed
	run.ErrorText = errText
	now := time.Now().UTC()
	run.FinishedAt = &now
	s.runs[id] = run
	return nil
}

// ListUnfinished returns runs still marked running, oldest first.
func (s *RunStore) ListUnfinished(_ context.Context) ([]core.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CrawlRun
	for _, run := range s.runs {
		if run.Status == core.RunStatusRunning {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
