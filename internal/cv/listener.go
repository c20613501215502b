package cv

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/eramir/facecheck/internal/broker"
	"github.com/eramir/facecheck/internal/metrics"
)

// Callback receives every decoded response batch. It must isolate its own
// per-record failures; the batch is acknowledged only after it returns.
type Callback func(ctx context.Context, batch []Response)

// Listener is the single long-lived consumer of the shared response queue.
// One instance is created at process startup and runs until the process
// shuts down; every task's results flow through it in delivery order.
type Listener struct {
	broker       *broker.Broker
	callback     Callback
	fetchTimeout time.Duration
	retryDelay   time.Duration
}

func NewListener(b *broker.Broker, cb Callback) *Listener {
	return &Listener{
		broker:       b,
		callback:     cb,
		fetchTimeout: 5 * time.Second,
		retryDelay:   time.Second,
	}
}

// Run consumes the response queue until ctx is cancelled. Batches left on
// the processing list by a previous crash are requeued first, so an
// unacknowledged batch is delivered again rather than lost. Malformed and
// empty batches are acknowledged and dropped.
func (l *Listener) Run(ctx context.Context) error {
	err := l.broker.WithChannel(ctx, func(ch *broker.Channel) error {
		moved, err := ch.Requeue(ctx, ResponseQueue)
		if moved > 0 {
			log.Printf("listener: redelivering %d unacknowledged batches", moved)
		}

		return err
	})
	if err != nil {
		return err
	}

	log.Printf("listener: consuming %s", ResponseQueue)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.broker.WithChannel(ctx, func(ch *broker.Channel) error {
			body, err := ch.Fetch(ctx, ResponseQueue, l.fetchTimeout)
			if err != nil || body == nil {
				return err
			}

			l.handle(ctx, ch, body)
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Printf("listener: %v", err)
			select {
			case <-time.After(l.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (l *Listener) handle(ctx context.Context, ch *broker.Channel, body []byte) {
	metrics.BatchesReceived.Inc()

	var batch []Response
	if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
		// Lossy on malformed input: the batch is dropped rather than
		// redelivered forever.
		if err != nil {
			log.Printf("listener: dropping undecodable batch: %v", err)
		}
		metrics.BatchesDiscarded.Inc()
		l.ack(ctx, ch, body)
		return
	}

	l.callback(ctx, batch)
	l.ack(ctx, ch, body)
}

func (l *Listener) ack(ctx context.Context, ch *broker.Channel, body []byte) {
	if err := ch.Ack(ctx, ResponseQueue, body); err != nil {
		log.Printf("listener: failed to ack batch: %v", err)
	}
}
