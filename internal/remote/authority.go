package remote

import (
	"context"
	"time"

	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
)

// Authority is the external payment-processing system of record for chargebacks.
// Every call is synchronous and either succeeds or returns a transport-level error.
type Authority interface {
	CreateChargeback(ctx context.Context, user UserInfo, invoiceID, paymentID, chargebackID string, params CreateParams) error
	AcceptChargeback(ctx context.Context, user UserInfo, invoiceID, paymentID, chargebackID string, params AcceptParams) error
	RejectChargeback(ctx context.Context, user UserInfo, invoiceID, paymentID, chargebackID string, params RejectParams) error
	CancelChargeback(ctx context.Context, user UserInfo, invoiceID, paymentID, chargebackID string, params CancelParams) error
	ReopenChargeback(ctx context.Context, user UserInfo, invoiceID, paymentID, chargebackID string, params ReopenParams) error
}

// UserInfo is the actor the service acts as.
type UserInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Cash is an amount in minor units of Currency.
type Cash struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Content struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

type CreateParams struct {
	OccurredAt time.Time `json:"occurred_at"`
	ExternalID string    `json:"external_id,omitempty"`
	Body       *Cash     `json:"body,omitempty"`
	Levy       *Cash     `json:"levy,omitempty"`
	Context    *Content  `json:"context,omitempty"`
}

type AcceptParams struct {
	OccurredAt time.Time `json:"occurred_at"`
	Body       *Cash     `json:"body,omitempty"`
	Levy       *Cash     `json:"levy,omitempty"`
}

type RejectParams struct {
	OccurredAt time.Time `json:"occurred_at"`
	Levy       *Cash     `json:"levy,omitempty"`
}

type CancelParams struct {
	OccurredAt time.Time `json:"occurred_at"`
}

type ReopenParams struct {
	OccurredAt  time.Time        `json:"occurred_at"`
	Body        *Cash            `json:"body,omitempty"`
	Levy        *Cash            `json:"levy,omitempty"`
	MoveToStage domain.StageCode `json:"move_to_stage,omitempty"`
}

func cash(amount int64, currency string) *Cash {
	return &Cash{Amount: amount, Currency: currency}
}

// nonZeroCash omits zero amounts.
func nonZeroCash(amount int64, currency string) *Cash {
	if amount == 0 {
		return nil
	}
	return cash(amount, currency)
}

// CreateParamsFor builds the create bundle for a root. Zero amounts are omitted.
func CreateParamsFor(cb domain.Chargeback) CreateParams {
	params := CreateParams{
		OccurredAt: cb.OperationDate.UTC(),
		ExternalID: cb.ExternalID,
		Body:       nonZeroCash(cb.BodyAmount, cb.Currency),
		Levy:       nonZeroCash(cb.LevyAmount, cb.Currency),
	}
	if cb.ContextType != "" || len(cb.Context) > 0 {
		params.Context = &Content{Type: cb.ContextType, Data: cb.Context}
	}
	return params
}

func AcceptParamsFor(cb domain.Chargeback, entry domain.StatusEntry, status domain.StatusAccepted) AcceptParams {
	return AcceptParams{
		OccurredAt: entry.CreatedAt.UTC(),
		Body:       cash(status.BodyAmount, cb.Currency),
		Levy:       cash(status.LevyAmount, cb.Currency),
	}
}

func RejectParamsFor(cb domain.Chargeback, entry domain.StatusEntry, status domain.StatusRejected) RejectParams {
	return RejectParams{
		OccurredAt: entry.CreatedAt.UTC(),
		Levy:       cash(status.LevyAmount, cb.Currency),
	}
}

func CancelParamsFor(entry domain.StatusEntry) CancelParams {
	return CancelParams{OccurredAt: entry.CreatedAt.UTC()}
}

// ReopenParamsFor carries only non-zero amounts and the optional target stage.
func ReopenParamsFor(cb domain.Chargeback, ev domain.ReopenEvent) ReopenParams {
	params := ReopenParams{
		OccurredAt: ev.CreatedAt.UTC(),
		Body:       nonZeroCash(ev.BodyAmount, cb.Currency),
		Levy:       nonZeroCash(ev.LevyAmount, cb.Currency),
	}
	if ev.ReopenStage != nil {
		params.MoveToStage = ev.ReopenStage.Code()
	}
	return params
}
