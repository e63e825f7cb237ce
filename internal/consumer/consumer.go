package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	obscontext "github.com/smallbiznis/chargeback/internal/observability/context"
	"github.com/smallbiznis/chargeback/internal/observability/tracing"
	"github.com/smallbiznis/chargeback/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Service domain.Service
	Config  Config `optional:"true"`
}

// Consumer feeds envelopes read from the event topic into domain.Service.Process, one
// message at a time, committing each offset once the message is settled.
type Consumer struct {
	log     *zap.Logger
	service domain.Service
	cfg     Config
}

func NewConsumer(p Params) *Consumer {
	return &Consumer{
		log:     p.Log.Named("consumer"),
		service: p.Service,
		cfg:     p.Config.withDefaults(),
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context, reader Reader) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Warn("fetch message failed", zap.Error(err))
			if !sleep(ctx, c.cfg.RetryBackoff) {
				return nil
			}
			continue
		}

		c.Handle(ctx, msg)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("commit message failed",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

// Handle settles one message. Malformed and rejected events are logged and dropped; only
// errors that left nothing written are retried.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) {
	ctx = messageContext(ctx, msg)
	log := c.log.With(
		zap.String("correlation_id", correlation.ExtractCorrelationID(ctx)),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var envelope domain.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		log.Warn("dropping malformed event", zap.Error(err))
		return
	}
	ev, err := envelope.Decode()
	if err != nil {
		log.Warn("dropping unsupported event", zap.Error(err))
		return
	}

	for attempt := 1; ; attempt++ {
		result, err := c.process(ctx, ev)
		if err == nil {
			log.Debug("event processed",
				zap.String("event_type", string(ev.Type())),
				zap.String("chargeback_id", result.ChargebackID.String()),
			)
			return
		}

		if !retryable(err) {
			log.Warn("event rejected",
				zap.String("event_type", string(ev.Type())),
				zap.Error(err),
			)
			return
		}
		if attempt >= c.cfg.MaxAttempts {
			log.Error("event dropped after retries",
				zap.String("event_type", string(ev.Type())),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}
		log.Warn("event processing failed, retrying",
			zap.String("event_type", string(ev.Type())),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if !sleep(ctx, c.cfg.RetryBackoff) {
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, ev domain.Event) (domain.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProcessTimeout)
	defer cancel()
	return c.service.Process(ctx, ev)
}

// retryable reports whether err happened before anything was committed. A remote failure
// follows a committed write, so replaying it would duplicate history.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrRemoteFailure),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidEvent),
		domain.IsUnsupported(err):
		return false
	default:
		return true
	}
}

func messageContext(ctx context.Context, msg kafka.Message) context.Context {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	ctx = tracing.ExtractContext(ctx, propagation.MapCarrier(headers))
	ctx = correlation.ContextFromHeaders(ctx, headers)
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	return obscontext.WithSource(ctx, "kafka")
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
