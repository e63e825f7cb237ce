package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/internal/config"
	"github.com/smallbiznis/chargeback/internal/observability/logger"
	"github.com/smallbiznis/chargeback/internal/observability/metrics"
	"github.com/smallbiznis/chargeback/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	OperationCreate = "create"
	OperationAccept = "accept"
	OperationReject = "reject"
	OperationCancel = "cancel"
	OperationReopen = "reopen"
)

type Params struct {
	fx.In

	Authority     Authority
	Config        *config.SyncConfigHolder
	Log           *zap.Logger
	RemoteMetrics *metrics.RemoteMetrics `optional:"true"`
	Metrics       *metrics.Metrics       `optional:"true"`
}

// Synchronizer translates committed history into authority calls. Each method makes
// exactly one call and never retries.
type Synchronizer struct {
	authority     Authority
	config        *config.SyncConfigHolder
	log           *zap.Logger
	tracer        trace.Tracer
	remoteMetrics *metrics.RemoteMetrics
	metrics       *metrics.Metrics
}

var _ domain.Synchronizer = (*Synchronizer)(nil)

func NewSynchronizer(p Params) *Synchronizer {
	return &Synchronizer{
		authority:     p.Authority,
		config:        p.Config,
		log:           p.Log.Named("chargeback.remote"),
		tracer:        otel.Tracer("chargeback/remote"),
		remoteMetrics: p.RemoteMetrics,
		metrics:       p.Metrics,
	}
}

func (s *Synchronizer) SyncCreate(ctx context.Context, cb domain.Chargeback) error {
	params := CreateParamsFor(cb)
	return s.call(ctx, OperationCreate, cb, func(ctx context.Context, user UserInfo, id string) error {
		return s.authority.CreateChargeback(ctx, user, cb.InvoiceID, cb.PaymentID, id, params)
	})
}

func (s *Synchronizer) SyncStatus(ctx context.Context, cb domain.Chargeback, entry domain.StatusEntry, status domain.Status) error {
	switch st := status.(type) {
	case domain.StatusAccepted:
		params := AcceptParamsFor(cb, entry, st)
		return s.call(ctx, OperationAccept, cb, func(ctx context.Context, user UserInfo, id string) error {
			return s.authority.AcceptChargeback(ctx, user, cb.InvoiceID, cb.PaymentID, id, params)
		})
	case domain.StatusRejected:
		params := RejectParamsFor(cb, entry, st)
		return s.call(ctx, OperationReject, cb, func(ctx context.Context, user UserInfo, id string) error {
			return s.authority.RejectChargeback(ctx, user, cb.InvoiceID, cb.PaymentID, id, params)
		})
	case domain.StatusCancelled:
		params := CancelParamsFor(entry)
		return s.call(ctx, OperationCancel, cb, func(ctx context.Context, user UserInfo, id string) error {
			return s.authority.CancelChargeback(ctx, user, cb.InvoiceID, cb.PaymentID, id, params)
		})
	default:
		return domain.ErrUnsupportedOperation
	}
}

func (s *Synchronizer) SyncReopen(ctx context.Context, cb domain.Chargeback, ev domain.ReopenEvent) error {
	params := ReopenParamsFor(cb, ev)
	return s.call(ctx, OperationReopen, cb, func(ctx context.Context, user UserInfo, id string) error {
		return s.authority.ReopenChargeback(ctx, user, cb.InvoiceID, cb.PaymentID, id, params)
	})
}

func (s *Synchronizer) call(ctx context.Context, operation string, cb domain.Chargeback, fn func(context.Context, UserInfo, string) error) error {
	cfg := s.config.Get()
	user := UserInfo{ID: cfg.UserID, Type: cfg.UserType}
	chargebackID := cb.ID.String()

	ctx, span := s.tracer.Start(ctx, "remote."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.String("chargeback.id", chargebackID),
			attribute.String("chargeback.operation", operation),
		)...),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx, user, chargebackID)
	s.remoteMetrics.ObserveCall(operation, time.Since(start), err)

	if err == nil {
		s.metrics.RecordRemoteCall(ctx, operation, metrics.RemoteOutcomeSuccess)
		return nil
	}

	s.metrics.RecordRemoteCall(ctx, operation, metrics.RemoteOutcomeFailure)
	s.remoteMetrics.IncFailure(operation, err)
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "remote call failed")

	logger.WithChargebackKey(logger.WithContext(ctx, s.log), cb.InvoiceID, cb.PaymentID).Error(
		"remote authority call failed, local history is ahead of the authority",
		zap.String("operation", operation),
		zap.String("chargeback_id", chargebackID),
		zap.String("reason", metrics.ClassifyRemoteReason(err)),
		zap.Bool("remote_desync", true),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", domain.ErrRemoteFailure, operation, err)
}
