package domain

import (
	"strings"
	"time"
)

type EventType string

const (
	EventTypeCreate           EventType = "create"
	EventTypeStatusChange     EventType = "status_change"
	EventTypeHoldStatusChange EventType = "hold_status_change"
	EventTypeReopen           EventType = "reopen"
)

// Event is one inbound business event. The variants are CreateEvent, StatusChangeEvent,
// HoldStatusChangeEvent and ReopenEvent.
type Event interface {
	Type() EventType
	Key() Key
	Validate() error
	isEvent()
}

type Reason struct {
	Code     string
	Category Category
}

// Content is opaque merchant-supplied context forwarded to the authority on creation.
type Content struct {
	Type string
	Data []byte
}

type CreateEvent struct {
	InvoiceID      string
	PaymentID      string
	IsRetrieval    bool
	PretensionDate time.Time
	OperationDate  time.Time
	LevyAmount     int64
	BodyAmount     int64
	Currency       string
	ShopID         string
	Reason         Reason
	ProviderID     string
	MaskedPan      string
	Rrn            string
	ShopURL        string
	PartyEmail     string
	ContactEmail   string
	Content        *Content
	ExternalID     string
}

type StatusChangeEvent struct {
	InvoiceID      string
	PaymentID      string
	Stage          Stage
	Status         Status
	CreatedAt      time.Time
	DateOfDecision *time.Time
}

type HoldStatus struct {
	WillHoldFromMerchant bool
	WasHoldFromMerchant  bool
	HoldFromUs           bool
}

type HoldStatusChangeEvent struct {
	InvoiceID  string
	PaymentID  string
	CreatedAt  time.Time
	HoldStatus HoldStatus
}

// ReopenEvent returns a decided chargeback to Pending. ReopenStage is optional; when set
// it must be PreArbitration or Arbitration.
type ReopenEvent struct {
	InvoiceID   string
	PaymentID   string
	CreatedAt   time.Time
	LevyAmount  int64
	BodyAmount  int64
	ReopenStage Stage
}

func (CreateEvent) Type() EventType           { return EventTypeCreate }
func (StatusChangeEvent) Type() EventType     { return EventTypeStatusChange }
func (HoldStatusChangeEvent) Type() EventType { return EventTypeHoldStatusChange }
func (ReopenEvent) Type() EventType           { return EventTypeReopen }

func (e CreateEvent) Key() Key           { return Key{InvoiceID: e.InvoiceID, PaymentID: e.PaymentID} }
func (e StatusChangeEvent) Key() Key     { return Key{InvoiceID: e.InvoiceID, PaymentID: e.PaymentID} }
func (e HoldStatusChangeEvent) Key() Key { return Key{InvoiceID: e.InvoiceID, PaymentID: e.PaymentID} }
func (e ReopenEvent) Key() Key           { return Key{InvoiceID: e.InvoiceID, PaymentID: e.PaymentID} }

func (CreateEvent) isEvent()           {}
func (StatusChangeEvent) isEvent()     {}
func (HoldStatusChangeEvent) isEvent() {}
func (ReopenEvent) isEvent()           {}

func (e CreateEvent) Validate() error {
	if err := validateKey(e.Key()); err != nil {
		return err
	}
	if e.Reason.Category == nil {
		return ErrUnsupportedCategory
	}
	if strings.TrimSpace(e.Currency) == "" {
		return ErrInvalidEvent
	}
	if e.PretensionDate.IsZero() || e.OperationDate.IsZero() {
		return ErrInvalidEvent
	}
	if e.LevyAmount < 0 || e.BodyAmount < 0 {
		return ErrInvalidEvent
	}
	return nil
}

func (e StatusChangeEvent) Validate() error {
	if err := validateKey(e.Key()); err != nil {
		return err
	}
	if e.Stage == nil {
		return ErrUnsupportedStage
	}
	if e.Status == nil {
		return ErrUnsupportedStatus
	}
	if e.CreatedAt.IsZero() {
		return ErrInvalidEvent
	}
	switch s := e.Status.(type) {
	case StatusAccepted:
		if s.BodyAmount < 0 || s.LevyAmount < 0 {
			return ErrInvalidEvent
		}
	case StatusRejected:
		if s.LevyAmount < 0 {
			return ErrInvalidEvent
		}
	}
	return nil
}

func (e HoldStatusChangeEvent) Validate() error {
	if err := validateKey(e.Key()); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}

func (e ReopenEvent) Validate() error {
	if err := validateKey(e.Key()); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		return ErrInvalidEvent
	}
	if e.LevyAmount < 0 || e.BodyAmount < 0 {
		return ErrInvalidEvent
	}
	if e.ReopenStage != nil && !IsReopenStage(e.ReopenStage) {
		return ErrUnsupportedStage
	}
	return nil
}

func validateKey(key Key) error {
	if strings.TrimSpace(key.InvoiceID) == "" || strings.TrimSpace(key.PaymentID) == "" {
		return ErrInvalidEvent
	}
	return nil
}
