package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RemoteAction is the authority operation an applied event requires.
type RemoteAction string

const (
	RemoteActionNone   RemoteAction = "none"
	RemoteActionCreate RemoteAction = "create"
	RemoteActionAccept RemoteAction = "accept"
	RemoteActionReject RemoteAction = "reject"
	RemoteActionCancel RemoteAction = "cancel"
	RemoteActionReopen RemoteAction = "reopen"
)

// Transition is the next status entry and the remote operation that must follow it.
type Transition struct {
	Entry  StatusEntry
	Action RemoteAction
}

// NewChargeback builds the root record for a creation event.
func NewChargeback(id snowflake.ID, ev CreateEvent, now time.Time) (Chargeback, error) {
	if err := ev.Validate(); err != nil {
		return Chargeback{}, err
	}
	cb := Chargeback{
		ID:             id,
		InvoiceID:      strings.TrimSpace(ev.InvoiceID),
		PaymentID:      strings.TrimSpace(ev.PaymentID),
		IsRetrieval:    ev.IsRetrieval,
		PretensionDate: ev.PretensionDate.UTC(),
		OperationDate:  ev.OperationDate.UTC(),
		LevyAmount:     ev.LevyAmount,
		BodyAmount:     ev.BodyAmount,
		Currency:       strings.ToUpper(strings.TrimSpace(ev.Currency)),
		ShopID:         strings.TrimSpace(ev.ShopID),
		Category:       ev.Reason.Category.Code(),
		ReasonCode:     strings.TrimSpace(ev.Reason.Code),
		ProviderID:     strings.TrimSpace(ev.ProviderID),
		MaskedPan:      strings.TrimSpace(ev.MaskedPan),
		Rrn:            strings.TrimSpace(ev.Rrn),
		ShopURL:        strings.TrimSpace(ev.ShopURL),
		PartyEmail:     strings.TrimSpace(ev.PartyEmail),
		ContactEmail:   strings.TrimSpace(ev.ContactEmail),
		ExternalID:     strings.TrimSpace(ev.ExternalID),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	if ev.Content != nil {
		cb.ContextType = ev.Content.Type
		cb.Context = ev.Content.Data
	}
	return cb, nil
}

// CreateAction is RemoteActionNone for retrieval requests; they stay local.
func CreateAction(cb Chargeback) RemoteAction {
	if cb.IsRetrieval {
		return RemoteActionNone
	}
	return RemoteActionCreate
}

// InitialStatusEntry is the (chargeback, pending) entry every new root starts with.
func InitialStatusEntry(id snowflake.ID, cb Chargeback) StatusEntry {
	return StatusEntry{
		ID:           id,
		ChargebackID: cb.ID,
		InvoiceID:    cb.InvoiceID,
		PaymentID:    cb.PaymentID,
		Stage:        StageCodeChargeback,
		Status:       StatusCodePending,
		CreatedAt:    cb.OperationDate,
	}
}

// InitialHoldEntry is the all-false hold entry every new root starts with.
func InitialHoldEntry(id snowflake.ID, cb Chargeback) HoldEntry {
	return HoldEntry{
		ID:           id,
		ChargebackID: cb.ID,
		InvoiceID:    cb.InvoiceID,
		PaymentID:    cb.PaymentID,
		CreatedAt:    cb.OperationDate,
	}
}

// StatusAction maps a status to its authority operation. Pending maps to RemoteActionNone:
// the entry is still recorded but there is nothing to forward.
func StatusAction(status Status) (RemoteAction, error) {
	switch status.(type) {
	case StatusAccepted:
		return RemoteActionAccept, nil
	case StatusRejected:
		return RemoteActionReject, nil
	case StatusCancelled:
		return RemoteActionCancel, nil
	case StatusPending:
		return RemoteActionNone, nil
	default:
		return "", ErrUnsupportedStatus
	}
}

// NextStatus computes the entry appended for a status change on top of prev.
func NextStatus(id snowflake.ID, prev StatusEntry, ev StatusChangeEvent) (Transition, error) {
	if err := ev.Validate(); err != nil {
		return Transition{}, err
	}
	action, err := StatusAction(ev.Status)
	if err != nil {
		return Transition{}, err
	}

	entry := StatusEntry{
		ID:           id,
		ChargebackID: prev.ChargebackID,
		InvoiceID:    prev.InvoiceID,
		PaymentID:    prev.PaymentID,
		Stage:        ev.Stage.Code(),
		Status:       ev.Status.Code(),
		CreatedAt:    ev.CreatedAt.UTC(),
	}
	if ev.DateOfDecision != nil {
		decided := ev.DateOfDecision.UTC()
		entry.DateOfDecision = &decided
	}

	switch s := ev.Status.(type) {
	case StatusAccepted:
		entry.BodyAmount = int64Ptr(s.BodyAmount)
		entry.LevyAmount = int64Ptr(s.LevyAmount)
	case StatusRejected:
		entry.LevyAmount = int64Ptr(s.LevyAmount)
	}

	return Transition{Entry: entry, Action: action}, nil
}

// Reopen computes the pending entry appended when a decided chargeback is reopened.
// The stage is the event's override or else the stage of prev.
func Reopen(id snowflake.ID, prev StatusEntry, ev ReopenEvent) (Transition, error) {
	if err := ev.Validate(); err != nil {
		return Transition{}, err
	}

	stage := prev.Stage
	if ev.ReopenStage != nil {
		stage = ev.ReopenStage.Code()
	}

	entry := StatusEntry{
		ID:           id,
		ChargebackID: prev.ChargebackID,
		InvoiceID:    prev.InvoiceID,
		PaymentID:    prev.PaymentID,
		Stage:        stage,
		Status:       StatusCodePending,
		CreatedAt:    ev.CreatedAt.UTC(),
		LevyAmount:   nonZero(ev.LevyAmount),
		BodyAmount:   nonZero(ev.BodyAmount),
	}
	return Transition{Entry: entry, Action: RemoteActionReopen}, nil
}

// NewHoldEntry records the hold flags carried by ev against cb.
func NewHoldEntry(id snowflake.ID, cb Chargeback, ev HoldStatusChangeEvent) HoldEntry {
	return HoldEntry{
		ID:                   id,
		ChargebackID:         cb.ID,
		InvoiceID:            cb.InvoiceID,
		PaymentID:            cb.PaymentID,
		CreatedAt:            ev.CreatedAt.UTC(),
		WillHoldFromMerchant: ev.HoldStatus.WillHoldFromMerchant,
		WasHoldFromMerchant:  ev.HoldStatus.WasHoldFromMerchant,
		HoldFromUs:           ev.HoldStatus.HoldFromUs,
	}
}

// LatestEntry returns the current status entry: greatest CreatedAt, then greatest ID.
func LatestEntry(entries []StatusEntry) (StatusEntry, bool) {
	if len(entries) == 0 {
		return StatusEntry{}, false
	}
	latest := entries[0]
	for _, e := range entries[1:] {
		if e.CreatedAt.After(latest.CreatedAt) || (e.CreatedAt.Equal(latest.CreatedAt) && e.ID > latest.ID) {
			latest = e
		}
	}
	return latest, true
}

func int64Ptr(v int64) *int64 { return &v }

func nonZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
