package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/internal/clock"
	"github.com/smallbiznis/chargeback/internal/keylock"
	"github.com/smallbiznis/chargeback/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/chargeback/internal/observability/metrics"
	"github.com/smallbiznis/chargeback/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeSuccess       = "success"
	outcomeRejected      = "rejected"
	outcomeNotFound      = "not_found"
	outcomeRemoteFailure = "remote_failure"
	outcomeError         = "error"

	entryKindStatus = "status"
	entryKindHold   = "hold"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Sync       domain.Synchronizer
	Locker     keylock.Locker
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service applies chargeback events. Every operation holds the (invoice, payment) lock,
// commits local history in one transaction and only then calls the authority, so a
// remote failure leaves the committed history in place.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	sync       domain.Synchronizer
	locker     keylock.Locker
	tracer     trace.Tracer
	obsMetrics *obsmetrics.Metrics
}

var _ domain.Service = (*Service)(nil)

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("chargeback.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		sync:       p.Sync,
		locker:     p.Locker,
		tracer:     otel.Tracer("chargeback/service"),
		obsMetrics: p.ObsMetrics,
	}
}

// Process dispatches ev to the operation handling its kind.
func (s *Service) Process(ctx context.Context, ev domain.Event) (domain.Result, error) {
	switch e := ev.(type) {
	case domain.CreateEvent:
		return s.create(ctx, e)
	case domain.StatusChangeEvent:
		return s.ApplyStatusChange(ctx, e)
	case domain.ReopenEvent:
		return s.ApplyReopen(ctx, e)
	case domain.HoldStatusChangeEvent:
		return s.ApplyHoldChange(ctx, e)
	default:
		return domain.Result{}, domain.ErrUnsupportedOperation
	}
}

func (s *Service) Create(ctx context.Context, ev domain.CreateEvent) (snowflake.ID, error) {
	result, err := s.create(ctx, ev)
	return result.ChargebackID, err
}

func (s *Service) create(ctx context.Context, ev domain.CreateEvent) (result domain.Result, err error) {
	ctx, done := s.begin(ctx, ev)
	defer func() { done(result, err) }()

	if err := ev.Validate(); err != nil {
		return domain.Result{}, err
	}

	unlock, err := s.lock(ctx, ev.Key())
	if err != nil {
		return domain.Result{}, err
	}
	defer unlock()

	var (
		cb    domain.Chargeback
		state domain.StatusEntry
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		built, err := domain.NewChargeback(s.genID.Generate(), ev, s.clock.Now())
		if err != nil {
			return err
		}
		id, err := s.repo.UpsertChargeback(ctx, tx, &built)
		if err != nil {
			return err
		}
		built.ID = id

		state = domain.InitialStatusEntry(s.genID.Generate(), built)
		if err := s.repo.InsertState(ctx, tx, &state); err != nil {
			return err
		}
		hold := domain.InitialHoldEntry(s.genID.Generate(), built)
		if err := s.repo.InsertHoldState(ctx, tx, &hold); err != nil {
			return err
		}
		cb = built
		return nil
	})
	if err != nil {
		return domain.Result{}, err
	}
	s.obsMetrics.RecordHistoryEntry(ctx, entryKindStatus)
	s.obsMetrics.RecordHistoryEntry(ctx, entryKindHold)

	result = domain.Result{
		ChargebackID: cb.ID,
		EntryID:      state.ID,
		RemoteAction: domain.CreateAction(cb),
	}
	log := s.logFor(ctx, ev.Key())
	log.Info("chargeback saved",
		zap.String("chargeback_id", cb.ID.String()),
		zap.Bool("is_retrieval", cb.IsRetrieval),
		zap.String("category", string(cb.Category)),
	)

	if result.RemoteAction == domain.RemoteActionNone {
		return result, nil
	}
	if err := s.sync.SyncCreate(ctx, cb); err != nil {
		return result, err
	}
	log.Info("chargeback created at authority", zap.String("chargeback_id", cb.ID.String()))
	return result, nil
}

func (s *Service) ApplyStatusChange(ctx context.Context, ev domain.StatusChangeEvent) (result domain.Result, err error) {
	ctx, done := s.begin(ctx, ev)
	defer func() { done(result, err) }()

	if err := ev.Validate(); err != nil {
		return domain.Result{}, err
	}
	unlock, err := s.lock(ctx, ev.Key())
	if err != nil {
		return domain.Result{}, err
	}
	defer unlock()

	var (
		cb         *domain.Chargeback
		transition domain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev *domain.StatusEntry
		cb, prev, err = s.loadCurrent(ctx, tx, ev.Key())
		if err != nil {
			return err
		}
		transition, err = domain.NextStatus(s.genID.Generate(), *prev, ev)
		if err != nil {
			return err
		}
		return s.repo.InsertState(ctx, tx, &transition.Entry)
	})
	if err != nil {
		return domain.Result{}, err
	}
	s.obsMetrics.RecordHistoryEntry(ctx, entryKindStatus)

	result = domain.Result{
		ChargebackID: cb.ID,
		EntryID:      transition.Entry.ID,
		RemoteAction: transition.Action,
	}
	log := s.logFor(ctx, ev.Key())
	log.Info("chargeback status saved",
		zap.String("chargeback_id", cb.ID.String()),
		zap.String("stage", string(transition.Entry.Stage)),
		zap.String("status", string(transition.Entry.Status)),
	)

	// The entry stays in history; the authority has no pending operation to receive it.
	if transition.Action == domain.RemoteActionNone {
		log.Warn("pending status change has no authority operation",
			zap.String("chargeback_id", cb.ID.String()),
			zap.String("entry_id", transition.Entry.ID.String()),
		)
		return result, fmt.Errorf("%w: %s", domain.ErrUnsupportedOperation, transition.Entry.Status)
	}
	if err := s.sync.SyncStatus(ctx, *cb, transition.Entry, ev.Status); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) ApplyReopen(ctx context.Context, ev domain.ReopenEvent) (result domain.Result, err error) {
	ctx, done := s.begin(ctx, ev)
	defer func() { done(result, err) }()

	if err := ev.Validate(); err != nil {
		return domain.Result{}, err
	}

	unlock, err := s.lock(ctx, ev.Key())
	if err != nil {
		return domain.Result{}, err
	}
	defer unlock()

	var (
		cb         *domain.Chargeback
		transition domain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev *domain.StatusEntry
		cb, prev, err = s.loadCurrent(ctx, tx, ev.Key())
		if err != nil {
			return err
		}
		transition, err = domain.Reopen(s.genID.Generate(), *prev, ev)
		if err != nil {
			return err
		}
		return s.repo.InsertState(ctx, tx, &transition.Entry)
	})
	if err != nil {
		return domain.Result{}, err
	}
	s.obsMetrics.RecordHistoryEntry(ctx, entryKindStatus)

	result = domain.Result{
		ChargebackID: cb.ID,
		EntryID:      transition.Entry.ID,
		RemoteAction: transition.Action,
	}
	s.logFor(ctx, ev.Key()).Info("chargeback reopened",
		zap.String("chargeback_id", cb.ID.String()),
		zap.String("stage", string(transition.Entry.Stage)),
	)

	if err := s.sync.SyncReopen(ctx, *cb, ev); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) ApplyHoldChange(ctx context.Context, ev domain.HoldStatusChangeEvent) (result domain.Result, err error) {
	ctx, done := s.begin(ctx, ev)
	defer func() { done(result, err) }()

	if err := ev.Validate(); err != nil {
		return domain.Result{}, err
	}

	unlock, err := s.lock(ctx, ev.Key())
	if err != nil {
		return domain.Result{}, err
	}
	defer unlock()

	var hold domain.HoldEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cb, err := s.repo.FindChargebackByKeys(ctx, tx, strings.TrimSpace(ev.InvoiceID), strings.TrimSpace(ev.PaymentID), false)
		if err != nil {
			return err
		}
		if cb == nil {
			return domain.ErrNotFound
		}
		hold = domain.NewHoldEntry(s.genID.Generate(), *cb, ev)
		return s.repo.InsertHoldState(ctx, tx, &hold)
	})
	if err != nil {
		return domain.Result{}, err
	}
	s.obsMetrics.RecordHistoryEntry(ctx, entryKindHold)

	s.logFor(ctx, ev.Key()).Info("chargeback hold status saved",
		zap.String("chargeback_id", hold.ChargebackID.String()),
		zap.Bool("will_hold_from_merchant", hold.WillHoldFromMerchant),
		zap.Bool("was_hold_from_merchant", hold.WasHoldFromMerchant),
		zap.Bool("hold_from_us", hold.HoldFromUs),
	)
	return domain.Result{
		ChargebackID: hold.ChargebackID,
		EntryID:      hold.ID,
		RemoteAction: domain.RemoteActionNone,
	}, nil
}

// loadCurrent resolves the non-retrieval root for key and its current status entry.
func (s *Service) loadCurrent(ctx context.Context, tx *gorm.DB, key domain.Key) (*domain.Chargeback, *domain.StatusEntry, error) {
	cb, err := s.repo.FindChargebackByKeys(ctx, tx, strings.TrimSpace(key.InvoiceID), strings.TrimSpace(key.PaymentID), false)
	if err != nil {
		return nil, nil, err
	}
	if cb == nil {
		return nil, nil, domain.ErrNotFound
	}
	prev, err := s.repo.LatestState(ctx, tx, cb.ID)
	if err != nil {
		return nil, nil, err
	}
	if prev == nil {
		return nil, nil, domain.ErrNotFound
	}
	return cb, prev, nil
}

func (s *Service) lock(ctx context.Context, key domain.Key) (keylock.Unlock, error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, keylock.Key(key.InvoiceID, key.PaymentID))
	s.obsMetrics.RecordLockWait(ctx, time.Since(start))
	return unlock, err
}

// begin opens the span for ev and returns a func that records its outcome.
func (s *Service) begin(ctx context.Context, ev domain.Event) (context.Context, func(domain.Result, error)) {
	eventType := string(ev.Type())
	ctx, span := s.tracer.Start(ctx, "chargeback."+eventType,
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.String("chargeback.event_type", eventType),
		)...),
	)

	return ctx, func(result domain.Result, err error) {
		outcome := outcomeFor(err)
		s.obsMetrics.RecordEvent(ctx, eventType, outcome)
		if result.ChargebackID != 0 {
			span.SetAttributes(attribute.String("chargeback.id", result.ChargebackID.String()))
		}
		span.SetAttributes(attribute.String("chargeback.remote_action", string(result.RemoteAction)))
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, outcome)
			if outcome != outcomeRemoteFailure {
				s.logFor(ctx, ev.Key()).Warn("chargeback event rejected",
					zap.String("event_type", eventType),
					zap.String("outcome", outcome),
					zap.Error(err),
				)
			}
		}
		span.End()
	}
}

func (s *Service) logFor(ctx context.Context, key domain.Key) *zap.Logger {
	return logger.WithChargebackKey(logger.WithContext(ctx, s.log), key.InvoiceID, key.PaymentID)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, domain.ErrRemoteFailure):
		return outcomeRemoteFailure
	case errors.Is(err, domain.ErrNotFound):
		return outcomeNotFound
	case domain.IsUnsupported(err), errors.Is(err, domain.ErrInvalidEvent):
		return outcomeRejected
	default:
		return outcomeError
	}
}
