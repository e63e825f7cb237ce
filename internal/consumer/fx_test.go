package consumer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type lifecycleReader struct {
	fetching chan struct{}
	once     atomic.Bool
	returned atomic.Bool
	closed   atomic.Bool
}

func (r *lifecycleReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.once.CompareAndSwap(false, true) {
		close(r.fetching)
	}
	<-ctx.Done()
	r.returned.Store(true)
	return kafka.Message{}, ctx.Err()
}

func (r *lifecycleReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (r *lifecycleReader) Close() error {
	r.closed.Store(true)
	return nil
}

func TestAttachReaderStopsLoopAndClosesReader(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	reader := &lifecycleReader{fetching: make(chan struct{})}
	attachReader(lc, newTestConsumer(&fakeService{}), reader, zap.NewNop())

	lc.RequireStart()
	select {
	case <-reader.fetching:
	case <-time.After(time.Second):
		t.Fatal("consumer loop did not start")
	}
	require.False(t, reader.closed.Load())

	lc.RequireStop()
	assert.True(t, reader.returned.Load(), "fetch should observe cancellation before stop returns")
	assert.True(t, reader.closed.Load())
}
