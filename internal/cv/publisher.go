package cv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eramir/facecheck/internal/broker"
	"github.com/eramir/facecheck/internal/metrics"
)

// Publisher sends analysis requests to the worker. It holds no state beyond
// the broker handle; a publish either reaches the request queue or its
// failure surfaces to the caller, who records it against the owning task.
type Publisher struct {
	broker *broker.Broker
}

func NewPublisher(b *broker.Broker) *Publisher {
	return &Publisher{broker: b}
}

// Submit publishes an analysis request for one stored image and returns as
// soon as the broker accepted it. It never waits for the worker's response.
func (p *Publisher) Submit(ctx context.Context, filename, taskID string) error {
	body, err := json.Marshal(Request{Filename: filename, TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to encode analysis request: %w", err)
	}

	err = p.broker.WithChannel(ctx, func(ch *broker.Channel) error {
		return ch.Publish(ctx, RequestQueue, body)
	})
	if err != nil {
		metrics.RequestsFailed.Inc()
		return err
	}

	metrics.RequestsPublished.Inc()
	return nil
}
