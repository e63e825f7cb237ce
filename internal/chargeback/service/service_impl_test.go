package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/internal/chargeback/chargebacktest"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/internal/chargeback/repository"
	"github.com/smallbiznis/chargeback/internal/chargeback/service"
	"github.com/smallbiznis/chargeback/internal/clock"
	"github.com/smallbiznis/chargeback/internal/config"
	"github.com/smallbiznis/chargeback/internal/keylock"
	"github.com/smallbiznis/chargeback/internal/remote"
	"github.com/smallbiznis/chargeback/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var opDate = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	db        *gorm.DB
	svc       *service.Service
	authority *remotetest.Authority
}

func newHarness(t *testing.T) harness {
	t.Helper()

	db := chargebacktest.SetupDB(t)
	node, err := snowflake.NewNode(10)
	require.NoError(t, err)

	authority := remotetest.NewAuthority()
	synchronizer := remote.NewSynchronizer(remote.Params{
		Authority: authority,
		Config:    config.NewStaticSyncConfigHolder(config.DefaultSyncConfig()),
		Log:       zap.NewNop(),
	})

	svc := service.NewService(service.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(opDate.Add(time.Hour)),
		Repo:   repository.Provide(),
		Sync:   synchronizer,
		Locker: keylock.NewLocalLocker(),
	})
	return harness{db: db, svc: svc, authority: authority}
}

func createEvent(invoiceID, paymentID string, retrieval bool) domain.CreateEvent {
	return domain.CreateEvent{
		InvoiceID:      invoiceID,
		PaymentID:      paymentID,
		IsRetrieval:    retrieval,
		PretensionDate: opDate.Add(-24 * time.Hour),
		OperationDate:  opDate,
		LevyAmount:     1000,
		BodyAmount:     25000,
		Currency:       "rub",
		ShopID:         "shop-1",
		Reason:         domain.Reason{Code: "4837", Category: domain.CategoryFraud{}},
		ProviderID:     "prov-1",
		ExternalID:     "ext-" + invoiceID,
	}
}

func statusEvent(invoiceID, paymentID string, status domain.Status, at time.Time) domain.StatusChangeEvent {
	return domain.StatusChangeEvent{
		InvoiceID: invoiceID,
		PaymentID: paymentID,
		Stage:     domain.StageChargeback{},
		Status:    status,
		CreatedAt: at,
	}
}

func TestCreateForwardsOnlyFullChargebacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	retrievalID, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", true))
	require.NoError(t, err)
	assert.Empty(t, h.authority.Calls())

	fullID, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)
	assert.NotEqual(t, retrievalID, fullID)

	calls := h.authority.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, remote.OperationCreate, calls[0].Operation)
	assert.Equal(t, fullID.String(), calls[0].ChargebackID)

	params := calls[0].Params.(remote.CreateParams)
	require.NotNil(t, params.Body)
	assert.Equal(t, "RUB", params.Body.Currency)
	assert.Equal(t, "ext-inv_1", params.ExternalID)

	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargebacks", 2)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states", 2)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_hold_states", 2)
}

func TestCreateSynthesizesInitialEntries(t *testing.T) {
	h := newHarness(t)

	id, err := h.svc.Create(context.Background(), createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	var state domain.StatusEntry
	require.NoError(t, h.db.Raw(`SELECT id, chargeback_id, stage, status, levy_amount, body_amount, created_at
		FROM chargeback_states WHERE chargeback_id = ?`, id).Scan(&state).Error)
	assert.Equal(t, domain.StageCodeChargeback, state.Stage)
	assert.Equal(t, domain.StatusCodePending, state.Status)
	assert.Nil(t, state.BodyAmount)
	assert.True(t, state.CreatedAt.Equal(opDate))

	var hold domain.HoldEntry
	require.NoError(t, h.db.Raw(`SELECT id, chargeback_id, created_at, will_hold_from_merchant,
		was_hold_from_merchant, hold_from_us FROM chargeback_hold_states WHERE chargeback_id = ?`, id).Scan(&hold).Error)
	assert.True(t, hold.CreatedAt.Equal(opDate))
	assert.False(t, hold.WillHoldFromMerchant)
	assert.False(t, hold.WasHoldFromMerchant)
	assert.False(t, hold.HoldFromUs)
}

func TestCreateUpsertKeepsID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	again := createEvent("inv_1", "pay_1", false)
	again.BodyAmount = 30000
	second, err := h.svc.Create(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargebacks", 1)
	chargebacktest.AssertCount(t, h.db, "SELECT body_amount FROM chargebacks", 30000)
	assert.Len(t, h.authority.Calls(), 2)
}

func TestCreateRejectsMissingCategory(t *testing.T) {
	h := newHarness(t)

	ev := createEvent("inv_1", "pay_1", false)
	ev.Reason.Category = nil
	_, err := h.svc.Create(context.Background(), ev)

	assert.ErrorIs(t, err, domain.ErrUnsupportedCategory)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargebacks", 0)
	assert.Empty(t, h.authority.Calls())
}

func TestAcceptThenRejectForwardsEachTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	accepted, err := h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1",
		domain.StatusAccepted{LevyAmount: 1000}, opDate.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, id, accepted.ChargebackID)
	assert.Equal(t, domain.RemoteActionAccept, accepted.RemoteAction)

	rejected, err := h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1",
		domain.StatusRejected{LevyAmount: 900}, opDate.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionReject, rejected.RemoteAction)

	assert.Equal(t, []string{remote.OperationCreate, remote.OperationAccept, remote.OperationReject}, h.authority.Operations())

	calls := h.authority.Calls()
	acceptParams := calls[1].Params.(remote.AcceptParams)
	require.NotNil(t, acceptParams.Body)
	assert.Equal(t, int64(0), acceptParams.Body.Amount)
	assert.Equal(t, int64(1000), acceptParams.Levy.Amount)
	rejectParams := calls[2].Params.(remote.RejectParams)
	assert.Equal(t, int64(900), rejectParams.Levy.Amount)
	assert.True(t, rejectParams.OccurredAt.Equal(opDate.Add(2*time.Hour)))

	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states WHERE chargeback_id = ?", 3, id)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states WHERE status = 'rejected' AND body_amount IS NULL AND levy_amount = 900", 1)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states WHERE status = 'accepted' AND body_amount = 0 AND levy_amount = 1000", 1)
}

func TestCancelCarriesNoAmounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	res, err := h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1", domain.StatusCancelled{}, opDate.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionCancel, res.RemoteAction)
	assert.Equal(t, []string{remote.OperationCreate, remote.OperationCancel}, h.authority.Operations())
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states WHERE status = 'cancelled' AND body_amount IS NULL AND levy_amount IS NULL", 1)
}

func TestPendingStatusChangeIsRecordedWithoutAuthorityCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	ev := statusEvent("inv_1", "pay_1", domain.StatusPending{}, opDate.Add(time.Hour))
	ev.Stage = domain.StagePreArbitration{}
	res, err := h.svc.ApplyStatusChange(ctx, ev)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	assert.Equal(t, id, res.ChargebackID)
	assert.NotZero(t, res.EntryID)
	assert.Equal(t, domain.RemoteActionNone, res.RemoteAction)

	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states", 2)
	chargebacktest.AssertCount(t, h.db,
		"SELECT COUNT(*) FROM chargeback_states WHERE stage = 'pre_arbitration' AND status = 'pending'", 1)
	assert.Equal(t, []string{remote.OperationCreate}, h.authority.Operations())
}

func TestStatusChangeValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	noStage := statusEvent("inv_1", "pay_1", domain.StatusCancelled{}, opDate)
	noStage.Stage = nil
	_, err = h.svc.ApplyStatusChange(ctx, noStage)
	assert.ErrorIs(t, err, domain.ErrUnsupportedStage)

	noStatus := statusEvent("inv_1", "pay_1", nil, opDate)
	_, err = h.svc.ApplyStatusChange(ctx, noStatus)
	assert.ErrorIs(t, err, domain.ErrUnsupportedStatus)

	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states", 1)
	assert.Len(t, h.authority.Calls(), 1)
}

func TestStatusChangeUnknownKeyIsNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ApplyStatusChange(context.Background(), statusEvent("missing", "pay", domain.StatusCancelled{}, opDate))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.authority.Calls())
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states", 0)
}

func TestStatusChangeIgnoresRetrievalRoot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", true))
	require.NoError(t, err)

	_, err = h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1", domain.StatusCancelled{}, opDate.Add(time.Hour)))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.authority.Calls())
}

func TestStatusChangeWithoutHistoryIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)
	require.NoError(t, h.db.Exec("DELETE FROM chargeback_states WHERE chargeback_id = ?", id).Error)

	_, err = h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1", domain.StatusCancelled{}, opDate.Add(time.Hour)))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, h.authority.Calls(), 1)
}

func TestRemoteFailureKeepsLocalHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	boom := errors.New("authority unavailable")
	h.authority.FailOn(remote.OperationAccept, boom)

	res, err := h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1",
		domain.StatusAccepted{BodyAmount: 25000, LevyAmount: 1000}, opDate.Add(time.Hour)))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.ErrorIs(t, err, boom)
	assert.NotZero(t, res.EntryID)

	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states WHERE status = 'accepted'", 1)
	assert.Len(t, h.authority.Calls(), 2)
}

func TestRemoteCreateFailureKeepsRoot(t *testing.T) {
	h := newHarness(t)
	h.authority.FailOn(remote.OperationCreate, errors.New("timeout"))

	id, err := h.svc.Create(context.Background(), createEvent("inv_1", "pay_1", false))
	assert.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.NotZero(t, id)
	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargebacks", 1)
}

func TestReopenToArbitrationOmitsZeroBody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)
	_, err = h.svc.ApplyStatusChange(ctx, statusEvent("inv_1", "pay_1", domain.StatusRejected{LevyAmount: 100}, opDate.Add(time.Hour)))
	require.NoError(t, err)

	res, err := h.svc.ApplyReopen(ctx, domain.ReopenEvent{
		InvoiceID:   "inv_1",
		PaymentID:   "pay_1",
		CreatedAt:   opDate.Add(2 * time.Hour),
		LevyAmount:  500,
		ReopenStage: domain.StageArbitration{},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionReopen, res.RemoteAction)

	chargebacktest.AssertCount(t, h.db, `SELECT COUNT(*) FROM chargeback_states
		WHERE id = ? AND stage = 'arbitration' AND status = 'pending' AND body_amount IS NULL AND levy_amount = 500`, 1, res.EntryID)

	calls := h.authority.Calls()
	require.Len(t, calls, 3)
	params := calls[2].Params.(remote.ReopenParams)
	assert.Equal(t, remote.OperationReopen, calls[2].Operation)
	assert.Nil(t, params.Body)
	require.NotNil(t, params.Levy)
	assert.Equal(t, int64(500), params.Levy.Amount)
	assert.Equal(t, domain.StageCodeArbitration, params.MoveToStage)
}

func TestReopenKeepsPriorStageWithoutOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)
	_, err = h.svc.ApplyStatusChange(ctx, domain.StatusChangeEvent{
		InvoiceID: "inv_1",
		PaymentID: "pay_1",
		Stage:     domain.StagePreArbitration{},
		Status:    domain.StatusRejected{LevyAmount: 100},
		CreatedAt: opDate.Add(time.Hour),
	})
	require.NoError(t, err)

	res, err := h.svc.ApplyReopen(ctx, domain.ReopenEvent{InvoiceID: "inv_1", PaymentID: "pay_1", CreatedAt: opDate.Add(2 * time.Hour)})
	require.NoError(t, err)

	chargebacktest.AssertCount(t, h.db, `SELECT COUNT(*) FROM chargeback_states
		WHERE id = ? AND stage = 'pre_arbitration' AND status = 'pending' AND body_amount IS NULL AND levy_amount IS NULL`, 1, res.EntryID)
	params := h.authority.Calls()[2].Params.(remote.ReopenParams)
	assert.Empty(t, params.MoveToStage)
}

func TestReopenRejectsChargebackStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	_, err = h.svc.ApplyReopen(ctx, domain.ReopenEvent{
		InvoiceID:   "inv_1",
		PaymentID:   "pay_1",
		CreatedAt:   opDate.Add(time.Hour),
		ReopenStage: domain.StageChargeback{},
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedStage)
	assert.Len(t, h.authority.Calls(), 1)
}

func TestHoldChangeIsLocalOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	res, err := h.svc.ApplyHoldChange(ctx, domain.HoldStatusChangeEvent{
		InvoiceID:  "inv_1",
		PaymentID:  "pay_1",
		CreatedAt:  opDate.Add(time.Hour),
		HoldStatus: domain.HoldStatus{WillHoldFromMerchant: true, HoldFromUs: true},
	})
	require.NoError(t, err)
	assert.Equal(t, id, res.ChargebackID)
	assert.Equal(t, domain.RemoteActionNone, res.RemoteAction)

	assert.Equal(t, []string{remote.OperationCreate}, h.authority.Operations())
	chargebacktest.AssertCount(t, h.db, `SELECT COUNT(*) FROM chargeback_hold_states
		WHERE chargeback_id = ? AND will_hold_from_merchant = 1 AND was_hold_from_merchant = 0 AND hold_from_us = 1`, 1, id)

	_, err = h.svc.ApplyHoldChange(ctx, domain.HoldStatusChangeEvent{InvoiceID: "nope", PaymentID: "nope", CreatedAt: opDate})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type unknownEvent struct {
	domain.CreateEvent
}

func TestProcessDispatchesByKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.Process(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionCreate, created.RemoteAction)
	assert.NotZero(t, created.EntryID)

	hold, err := h.svc.Process(ctx, domain.HoldStatusChangeEvent{InvoiceID: "inv_1", PaymentID: "pay_1", CreatedAt: opDate.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionNone, hold.RemoteAction)

	status, err := h.svc.Process(ctx, statusEvent("inv_1", "pay_1", domain.StatusCancelled{}, opDate.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionCancel, status.RemoteAction)

	reopened, err := h.svc.Process(ctx, domain.ReopenEvent{InvoiceID: "inv_1", PaymentID: "pay_1", CreatedAt: opDate.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteActionReopen, reopened.RemoteAction)

	_, err = h.svc.Process(ctx, unknownEvent{createEvent("inv_2", "pay_2", false)})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)

	_, err = h.svc.Process(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}

func TestConcurrentStatusChangesAreNotLost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Create(ctx, createEvent("inv_1", "pay_1", false))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := statusEvent("inv_1", "pay_1", domain.StatusRejected{LevyAmount: int64(i)}, opDate.Add(time.Duration(i+1)*time.Minute))
			if _, err := h.svc.ApplyStatusChange(ctx, ev); err != nil {
				errs <- fmt.Errorf("worker %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	chargebacktest.AssertCount(t, h.db, "SELECT COUNT(*) FROM chargeback_states WHERE chargeback_id = ?", workers+1, id)
	assert.Len(t, h.authority.Calls(), workers+1)
}
