// Package events publishes push delivery reports to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/ouest/trip-engine/push"
)

// EventType is set as the "type" attribute of every message.
const EventType = "push.report"

var (
	// ErrServiceNotConfigured is returned by NewPublisher when no project is set.
	ErrServiceNotConfigured = errors.New("the pubsub client was not configured with a projectID")
)

// ReportEvent is the JSON body of a delivery report message.
type ReportEvent struct {
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	Message     string    `json:"message,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

var _ push.ReportPublisher = (*Publisher)(nil)

// Publisher implements push.ReportPublisher on a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	now    func() time.Time
}

// NewPublisher connects to projectID. It returns ErrServiceNotConfigured
// when projectID is empty so callers can run without reports.
func NewPublisher(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" {
		return nil, ErrServiceNotConfigured
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating pubsub client: %w", err)
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(topicID),
		now:    time.Now,
	}, nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// PublishReport publishes r and waits for the server ack.
func (p *Publisher) PublishReport(ctx context.Context, r push.Report) error {
	data, err := json.Marshal(ReportEvent{
		Sent:        r.Sent,
		Failed:      r.Failed,
		Total:       r.Total,
		Message:     r.Message,
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": EventType},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("error publishing pubsub message: %w", err)
	}
	return nil
}
