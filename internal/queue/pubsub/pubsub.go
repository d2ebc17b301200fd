// Package pubsub adapts Google Cloud Pub/Sub to the crawl queue interface.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
)

// Config names the Pub/Sub resources the queue binds to. The topic and
// subscription must already exist.
type Config struct {
	ProjectID    string
	Topic        string
	Subscription string
}

// Queue publishes crawl requests to a topic and surfaces received messages
// through Dequeue. Receive runs in a background goroutine feeding an
// internal channel so Dequeue keeps the same pull semantics as the
// in-process queue.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	inbox  chan core.CrawlRequest
	cancel context.CancelFunc
}

func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return newWithClient(ctx, client, cfg, logger)
}

func newWithClient(ctx context.Context, client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.Topic, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.Topic, cfg.ProjectID)
	}

	sub := client.Subscription(cfg.Subscription)
	ok, err = sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub subscription %q: %w", cfg.Subscription, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", cfg.Subscription, cfg.ProjectID)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		client: client,
		topic:  topic,
		sub:    sub,
		logger: logger,
		inbox:  make(chan core.CrawlRequest),
		cancel: cancel,
	}
	go q.receive(recvCtx)
	return q, nil
}

func (q *Queue) receive(ctx context.Context) {
	err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var req core.CrawlRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			// A malformed message would redeliver forever; ack and drop it.
			q.logger.Warn("dropping malformed crawl request", zap.Error(err))
			msg.Ack()
			return
		}
		select {
		case q.inbox <- req:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("pubsub receive stopped", zap.Error(err))
	}
}

// Enqueue publishes the request and waits for the server ack.
func (q *Queue) Enqueue(ctx context.Context, req core.CrawlRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode crawl request: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish crawl request: %w", err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (core.CrawlRequest, error) {
	select {
	case req := <-q.inbox:
		return req, nil
	case <-ctx.Done():
		return core.CrawlRequest{}, ctx.Err()
	}
}

// Close stops the receiver, flushes pending publishes, and closes the client.
func (q *Queue) Close() error {
	q.cancel()
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
