package cv

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eramir/facecheck/internal/broker"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]Response
}

func (r *batchRecorder) record(_ context.Context, batch []Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *batchRecorder) snapshot() [][]Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]Response(nil), r.batches...)
}

func setupListener(t *testing.T) (*Listener, *batchRecorder, *broker.Broker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := broker.New(mr.Addr(), broker.DefaultConnectionMax, broker.DefaultChannelMax)
	t.Cleanup(b.Close)

	rec := &batchRecorder{}
	l := NewListener(b, rec.record)
	l.fetchTimeout = 50 * time.Millisecond
	l.retryDelay = 10 * time.Millisecond

	return l, rec, b, mr
}

func publishResponse(t *testing.T, ctx context.Context, b *broker.Broker, body string) {
	t.Helper()

	err := b.WithChannel(ctx, func(ch *broker.Channel) error {
		return ch.Publish(ctx, ResponseQueue, []byte(body))
	})
	require.NoError(t, err)
}

func waitForBatches(t *testing.T, rec *batchRecorder, want int) [][]Response {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.snapshot(); len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %d batches, got %d", want, len(rec.snapshot()))
	return nil
}

func TestListenerDeliversDecodedBatch(t *testing.T) {
	l, rec, b, _ := setupListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	publishResponse(t, ctx, b,
		`[{"filename":"t1:0","task_id":"t1","left_eye_close":0.1,"right_eye_close":0.1,`+
			`"face_location":[10,200,210,5],"image_size":[400,400]}]`)

	batches := waitForBatches(t, rec, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "t1:0", batches[0][0].Filename)
	assert.Equal(t, "t1", batches[0][0].TaskID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancellation")
	}
}

func TestListenerDropsMalformedAndKeepsGoing(t *testing.T) {
	l, rec, b, mr := setupListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	publishResponse(t, ctx, b, `not json`)
	publishResponse(t, ctx, b, `[]`)
	publishResponse(t, ctx, b,
		`[{"filename":"t1:0","task_id":"t1","left_eye_close":0.1,"right_eye_close":0.1,`+
			`"face_location":[10,200,210,5],"image_size":[400,400]}]`)

	batches := waitForBatches(t, rec, 1)
	require.Len(t, batches, 1)
	assert.Equal(t, "t1:0", batches[0][0].Filename)

	// Malformed messages were acknowledged, not parked for redelivery.
	assert.False(t, mr.Exists(ResponseQueue+":processing"))
}

func TestListenerAcksAfterCallback(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := broker.New(mr.Addr(), broker.DefaultConnectionMax, broker.DefaultChannelMax)
	t.Cleanup(b.Close)

	entered := make(chan struct{})
	release := make(chan struct{})
	l := NewListener(b, func(context.Context, []Response) {
		close(entered)
		<-release
	})
	l.fetchTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	publishResponse(t, ctx, b, `[{"filename":"t1:0","task_id":"t1","error":"Face not found"}]`)

	<-entered
	// Mid-callback the batch is still unacknowledged, so a crash here
	// would redeliver it.
	assert.True(t, mr.Exists(ResponseQueue+":processing"))

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for mr.Exists(ResponseQueue+":processing") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, mr.Exists(ResponseQueue+":processing"))
}

func TestListenerRedeliversOrphanedBatches(t *testing.T) {
	l, rec, b, _ := setupListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Simulate a previous process that fetched but never acked.
	err := b.WithChannel(ctx, func(ch *broker.Channel) error {
		body, _ := json.Marshal([]Response{{Filename: "t9:0", TaskID: "t9", Error: strPtr("Face not found")}})
		if err := ch.Publish(ctx, ResponseQueue, body); err != nil {
			return err
		}

		_, err := ch.Fetch(ctx, ResponseQueue, 100*time.Millisecond)
		return err
	})
	require.NoError(t, err)

	go func() { _ = l.Run(ctx) }()

	batches := waitForBatches(t, rec, 1)
	assert.Equal(t, "t9:0", batches[0][0].Filename)
}

func strPtr(s string) *string { return &s }
