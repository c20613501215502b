package cv

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eramir/facecheck/internal/broker"
)

func TestPublisherSubmit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := broker.New(mr.Addr(), broker.DefaultConnectionMax, broker.DefaultChannelMax)
	t.Cleanup(b.Close)

	p := NewPublisher(b)
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, "t1:0", "t1"))
	require.NoError(t, p.Submit(ctx, "t1:1", "t1"))

	var fetched []Request
	err = b.WithChannel(ctx, func(ch *broker.Channel) error {
		for _i := 0; _i < 2; _i++ {
			body, err := ch.Fetch(ctx, RequestQueue, 100*time.Millisecond)
			if err != nil {
				return err
			}

			var req Request
			if err := json.Unmarshal(body, &req); err != nil {
				return err
			}
			fetched = append(fetched, req)
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []Request{
		{Filename: "t1:0", TaskID: "t1"},
		{Filename: "t1:1", TaskID: "t1"},
	}, fetched)
}

func TestPublisherSubmitBrokerDown(t *testing.T) {
	b := broker.New("localhost:1", 1, 1)
	t.Cleanup(b.Close)

	p := NewPublisher(b)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, p.Submit(ctx, "t1:0", "t1"))
}
