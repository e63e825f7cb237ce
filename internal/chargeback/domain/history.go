package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// ChargebackData is the reassembled history of one root: the creation event, then every
// status entry, then every hold entry, each group in CreatedAt order.
type ChargebackData struct {
	ID     snowflake.ID
	Events []Event
}

func CreateEventFromChargeback(cb Chargeback) (CreateEvent, error) {
	category, err := CategoryFromCode(cb.Category)
	if err != nil {
		return CreateEvent{}, err
	}
	ev := CreateEvent{
		InvoiceID:      cb.InvoiceID,
		PaymentID:      cb.PaymentID,
		IsRetrieval:    cb.IsRetrieval,
		PretensionDate: cb.PretensionDate,
		OperationDate:  cb.OperationDate,
		LevyAmount:     cb.LevyAmount,
		BodyAmount:     cb.BodyAmount,
		Currency:       cb.Currency,
		ShopID:         cb.ShopID,
		Reason:         Reason{Code: cb.ReasonCode, Category: category},
		ProviderID:     cb.ProviderID,
		MaskedPan:      cb.MaskedPan,
		Rrn:            cb.Rrn,
		ShopURL:        cb.ShopURL,
		PartyEmail:     cb.PartyEmail,
		ContactEmail:   cb.ContactEmail,
		ExternalID:     cb.ExternalID,
	}
	if cb.ContextType != "" || len(cb.Context) > 0 {
		ev.Content = &Content{Type: cb.ContextType, Data: cb.Context}
	}
	return ev, nil
}

func StatusChangeEventFromEntry(entry StatusEntry) (StatusChangeEvent, error) {
	stage, err := StageFromCode(entry.Stage)
	if err != nil {
		return StatusChangeEvent{}, err
	}
	status, err := StatusFromEntry(entry)
	if err != nil {
		return StatusChangeEvent{}, err
	}
	return StatusChangeEvent{
		InvoiceID:      entry.InvoiceID,
		PaymentID:      entry.PaymentID,
		Stage:          stage,
		Status:         status,
		CreatedAt:      entry.CreatedAt,
		DateOfDecision: entry.DateOfDecision,
	}, nil
}

func HoldEventFromEntry(entry HoldEntry) HoldStatusChangeEvent {
	return HoldStatusChangeEvent{
		InvoiceID: entry.InvoiceID,
		PaymentID: entry.PaymentID,
		CreatedAt: entry.CreatedAt,
		HoldStatus: HoldStatus{
			WillHoldFromMerchant: entry.WillHoldFromMerchant,
			WasHoldFromMerchant:  entry.WasHoldFromMerchant,
			HoldFromUs:           entry.HoldFromUs,
		},
	}
}

// BuildHistory assembles ChargebackData from stored records. Inputs need not be sorted.
func BuildHistory(cb Chargeback, states []StatusEntry, holds []HoldEntry) (ChargebackData, error) {
	created, err := CreateEventFromChargeback(cb)
	if err != nil {
		return ChargebackData{}, err
	}

	states = append([]StatusEntry(nil), states...)
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].ID < states[j].ID
		}
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	holds = append([]HoldEntry(nil), holds...)
	sort.SliceStable(holds, func(i, j int) bool {
		if holds[i].CreatedAt.Equal(holds[j].CreatedAt) {
			return holds[i].ID < holds[j].ID
		}
		return holds[i].CreatedAt.Before(holds[j].CreatedAt)
	})

	events := make([]Event, 0, 1+len(states)+len(holds))
	events = append(events, created)
	for _, state := range states {
		ev, err := StatusChangeEventFromEntry(state)
		if err != nil {
			return ChargebackData{}, err
		}
		events = append(events, ev)
	}
	for _, hold := range holds {
		events = append(events, HoldEventFromEntry(hold))
	}

	return ChargebackData{ID: cb.ID, Events: events}, nil
}
