// Package broker provides the Redis-backed message transport used to hand
// images to the analysis worker and to receive its results. Connections and
// channels are drawn from bounded pools; queues are durable named lists
// consumed with the reliable-queue pattern so an unacknowledged batch is
// redelivered after a crash.
package broker

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/eramir/facecheck/internal/pool"
)

const (
	DefaultConnectionMax = 2
	DefaultChannelMax    = 10
)

// Broker owns the two resource pools: a small pool of Redis connections and
// a larger pool of channels drawn from them. Both are process-wide; the
// channel bound caps application-level broker concurrency.
type Broker struct {
	conns    *pool.Pool[*Connection]
	channels *pool.Pool[*Channel]
}

func New(addr string, connectionMax, channelMax int) *Broker {
	b := &Broker{}

	b.conns = pool.New(connectionMax, func(ctx context.Context) (*Connection, error) {
		return dial(ctx, addr)
	}, func(c *Connection) {
		if err := c.client.Close(); err != nil {
			log.Printf("broker: failed to close connection: %v", err)
		}
	})

	b.channels = pool.New(channelMax, func(ctx context.Context) (*Channel, error) {
		conn, err := b.conns.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		// The channel keeps using the client after the connection goes
		// back to the pool; go-redis clients are safe for concurrent use.
		b.conns.Release(conn)

		return &Channel{client: conn.client}, nil
	}, nil)

	return b
}

// WithChannel runs fn with a pooled channel, returning it to the pool on
// every path. A channel whose underlying connection failed is discarded and
// replaced transparently on the next acquisition.
func (b *Broker) WithChannel(ctx context.Context, fn func(*Channel) error) error {
	return b.channels.With(ctx, fn)
}

// Close shuts both pools down. Blocked acquisitions are released with an
// error rather than leaked.
func (b *Broker) Close() {
	b.channels.Close()
	b.conns.Close()
}

// Connection wraps a dialed Redis client.
type Connection struct {
	client *redis.Client
}

func dial(ctx context.Context, addr string) (*Connection, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Connection{client: client}, nil
}
