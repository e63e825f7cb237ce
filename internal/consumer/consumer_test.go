package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	obscontext "github.com/smallbiznis/chargeback/internal/observability/context"
	"github.com/smallbiznis/chargeback/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

type processCall struct {
	event         domain.Event
	correlationID string
	source        string
}

type fakeService struct {
	calls []processCall
	errs  []error
}

func (f *fakeService) Create(ctx context.Context, ev domain.CreateEvent) (snowflake.ID, error) {
	_, err := f.Process(ctx, ev)
	return 0, err
}

func (f *fakeService) ApplyStatusChange(ctx context.Context, ev domain.StatusChangeEvent) (domain.Result, error) {
	return f.Process(ctx, ev)
}

func (f *fakeService) ApplyReopen(ctx context.Context, ev domain.ReopenEvent) (domain.Result, error) {
	return f.Process(ctx, ev)
}

func (f *fakeService) ApplyHoldChange(ctx context.Context, ev domain.HoldStatusChangeEvent) (domain.Result, error) {
	return f.Process(ctx, ev)
}

func (f *fakeService) Process(ctx context.Context, ev domain.Event) (domain.Result, error) {
	f.calls = append(f.calls, processCall{
		event:         ev,
		correlationID: correlation.ExtractCorrelationID(ctx),
		source:        obscontext.SourceFromContext(ctx),
	})
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	return domain.Result{ChargebackID: 1}, err
}

const holdMessage = `{"hold_status_change":{"invoice_id":"inv-1","payment_id":"pay-1","created_at":"2024-03-01T00:00:00Z","hold_from_us":true}}`

func newTestConsumer(svc *fakeService) *Consumer {
	return NewConsumer(Params{
		Log:     zap.NewNop(),
		Service: svc,
		Config: Config{
			ProcessTimeout: time.Second,
			RetryBackoff:   time.Millisecond,
			MaxAttempts:    3,
		},
	})
}

func message(offset int64, value string, headers ...kafka.Header) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value), Headers: headers}
}

func TestRunProcessesAndCommitsEachMessage(t *testing.T) {
	svc := &fakeService{}
	reader := &fakeReader{messages: []kafka.Message{
		message(1, holdMessage),
		message(2, `{"reopen":{"invoice_id":"inv-1","payment_id":"pay-1","created_at":"2024-03-02T00:00:00Z","body_amount":10}}`),
	}}

	require.NoError(t, newTestConsumer(svc).Run(context.Background(), reader))

	require.Len(t, svc.calls, 2)
	hold, ok := svc.calls[0].event.(domain.HoldStatusChangeEvent)
	require.True(t, ok)
	assert.True(t, hold.HoldStatus.HoldFromUs)
	_, ok = svc.calls[1].event.(domain.ReopenEvent)
	assert.True(t, ok)

	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(1), reader.committed[0].Offset)
	assert.Equal(t, int64(2), reader.committed[1].Offset)
}

func TestRunCommitsMalformedMessagesWithoutProcessing(t *testing.T) {
	svc := &fakeService{}
	reader := &fakeReader{messages: []kafka.Message{
		message(1, `not json`),
		message(2, `{}`),
		message(3, `{"create":{"invoice_id":"a","payment_id":"b","reason":{"category":{"fraud":{},"dispute":{}}}}}`),
	}}

	require.NoError(t, newTestConsumer(svc).Run(context.Background(), reader))

	assert.Empty(t, svc.calls)
	assert.Len(t, reader.committed, 3)
}

func TestHandlePropagatesCorrelationHeaders(t *testing.T) {
	svc := &fakeService{}

	newTestConsumer(svc).Handle(context.Background(), message(1, holdMessage,
		kafka.Header{Key: correlation.HeaderCorrelationID, Value: []byte("corr-123")},
	))

	require.Len(t, svc.calls, 1)
	assert.Equal(t, "corr-123", svc.calls[0].correlationID)
	assert.Equal(t, "kafka", svc.calls[0].source)
}

func TestHandleGeneratesCorrelationID(t *testing.T) {
	svc := &fakeService{}

	newTestConsumer(svc).Handle(context.Background(), message(1, holdMessage))

	require.Len(t, svc.calls, 1)
	assert.NotEmpty(t, svc.calls[0].correlationID)
}

func TestHandleDoesNotRetryRejectedEvents(t *testing.T) {
	cases := []error{
		domain.ErrNotFound,
		domain.ErrInvalidEvent,
		domain.ErrUnsupportedStatus,
		fmt.Errorf("%w: cancel: connection refused", domain.ErrRemoteFailure),
	}

	for _, tc := range cases {
		t.Run(tc.Error(), func(t *testing.T) {
			svc := &fakeService{errs: []error{tc}}

			newTestConsumer(svc).Handle(context.Background(), message(1, holdMessage))

			assert.Len(t, svc.calls, 1)
		})
	}
}

func TestHandleRetriesTransientErrors(t *testing.T) {
	svc := &fakeService{errs: []error{errors.New("database is locked")}}

	newTestConsumer(svc).Handle(context.Background(), message(1, holdMessage))

	assert.Len(t, svc.calls, 2)
}

func TestHandleGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("database is locked")
	svc := &fakeService{errs: []error{transient, transient, transient, transient}}
	reader := &fakeReader{messages: []kafka.Message{message(1, holdMessage)}}

	require.NoError(t, newTestConsumer(svc).Run(context.Background(), reader))

	assert.Len(t, svc.calls, 3)
	assert.Len(t, reader.committed, 1)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &blockingReader{}
	require.NoError(t, newTestConsumer(&fakeService{}).Run(ctx, reader))
}

type blockingReader struct{}

func (blockingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (blockingReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return nil
}
