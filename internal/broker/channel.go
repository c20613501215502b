package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eramir/facecheck/internal/pool"
)

// Channel is a lightweight publish/consume handle bound to a pooled
// connection. It is owned exclusively by one caller for the duration of a
// scoped use.
type Channel struct {
	client *redis.Client
}

// Publish appends body to the named queue. The queue is a plain Redis list,
// so messages survive a broker restart (subject to server persistence) and
// stay until consumed.
func (c *Channel) Publish(ctx context.Context, queue string, body []byte) error {
	if err := c.client.LPush(ctx, queue, body).Err(); err != nil {
		return classify(fmt.Errorf("failed to publish to %s: %w", queue, err))
	}

	return nil
}

// Fetch pops the next message from the named queue, moving it to the
// queue's processing list until acknowledged. It blocks up to timeout and
// returns (nil, nil) when no message arrived.
func (c *Channel) Fetch(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	body, err := c.client.BRPopLPush(ctx, queue, processingList(queue), timeout).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to fetch from %s: %w", queue, err))
	}

	return body, nil
}

// Ack removes a fetched message from the queue's processing list. A message
// that is never acked stays there and is redelivered by Requeue.
func (c *Channel) Ack(ctx context.Context, queue string, body []byte) error {
	if err := c.client.LRem(ctx, processingList(queue), 1, body).Err(); err != nil {
		return classify(fmt.Errorf("failed to ack on %s: %w", queue, err))
	}

	return nil
}

// Requeue moves every message from the queue's processing list back onto
// the queue. Called at listener startup so batches that were in flight when
// the previous process died are delivered again.
func (c *Channel) Requeue(ctx context.Context, queue string) (int, error) {
	moved := 0
	for {
		err := c.client.RPopLPush(ctx, processingList(queue), queue).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, classify(fmt.Errorf("failed to requeue %s: %w", queue, err))
		}

		moved++
	}
}

// Len reports the number of messages waiting on the named queue.
func (c *Channel) Len(ctx context.Context, queue string) (int64, error) {
	n, err := c.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, classify(fmt.Errorf("failed to read length of %s: %w", queue, err))
	}

	return n, nil
}

func processingList(queue string) string {
	return queue + ":processing"
}

// classify tags transport failures as bad-resource errors so the channel
// pool discards the channel instead of reusing a dead connection. Errors
// the server replied with leave the connection healthy.
func classify(err error) error {
	var replyErr redis.Error
	if errors.As(err, &replyErr) && !errors.Is(err, redis.Nil) {
		return err
	}

	return fmt.Errorf("%w: %w", pool.ErrBadResource, err)
}
