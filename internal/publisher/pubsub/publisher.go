// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Publisher sends JSON payloads to one topic. Publish does not wait for the
// server; Close waits for every outstanding result.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic

	mu      sync.Mutex
	pending []*pubsub.PublishResult
}

// Open connects to projectID and verifies that topicID exists.
func Open(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := New(ctx, client, topicID)
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	return p, nil
}

// New creates a Publisher for topicID using an existing client. The client
// is closed by Close.
func New(ctx context.Context, client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish marshals payload to JSON and queues it with attrs.
func (p *Publisher) Publish(ctx context.Context, attrs map[string]string, payload any) error {
	if p == nil || p.topic == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	p.mu.Lock()
	p.pending = append(p.pending, result)
	p.mu.Unlock()
	return nil
}

// Flush waits for all queued messages and returns the first failure.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	var firstErr error
	for _, result := range pending {
		if _, err := result.Get(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("publish message: %w", err)
		}
	}
	return firstErr
}

// Close flushes, stops the topic and closes the client.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil || p.topic == nil {
		return nil
	}
	err := p.Flush(ctx)
	p.topic.Stop()
	if closeErr := p.client.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close pubsub client: %w", closeErr)
	}
	return err
}
