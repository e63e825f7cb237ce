package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Chargeback is the root record of a chargeback or retrieval request.
// (InvoiceID, PaymentID, IsRetrieval) is unique.
type Chargeback struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID      string       `json:"invoice_id" gorm:"type:text;not null"`
	PaymentID      string       `json:"payment_id" gorm:"type:text;not null"`
	IsRetrieval    bool         `json:"is_retrieval" gorm:"not null"`
	PretensionDate time.Time    `json:"pretension_date" gorm:"not null"`
	OperationDate  time.Time    `json:"operation_date" gorm:"not null"`
	LevyAmount     int64        `json:"levy_amount"`
	BodyAmount     int64        `json:"body_amount"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	ShopID         string       `json:"shop_id"`
	Category       CategoryCode `json:"category" gorm:"type:text;not null"`
	ReasonCode     string       `json:"reason_code"`
	ProviderID     string       `json:"provider_id"`
	MaskedPan      string       `json:"masked_pan"`
	Rrn            string       `json:"rrn"`
	ShopURL        string       `json:"shop_url" gorm:"column:shop_url"`
	PartyEmail     string       `json:"party_email"`
	ContactEmail   string       `json:"contact_email"`
	ContextType    string       `json:"context_type"`
	Context        []byte       `json:"context,omitempty" gorm:"column:context_data"`
	ExternalID     string       `json:"external_id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Chargeback) TableName() string { return "chargebacks" }

func (c Chargeback) Key() Key {
	return Key{InvoiceID: c.InvoiceID, PaymentID: c.PaymentID}
}

// StatusEntry is one append-only (stage, status) record. The entry with the greatest
// CreatedAt, ties broken by ID, is the current status.
type StatusEntry struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ChargebackID   snowflake.ID `json:"chargeback_id" gorm:"not null;index"`
	InvoiceID      string       `json:"invoice_id" gorm:"type:text;not null"`
	PaymentID      string       `json:"payment_id" gorm:"type:text;not null"`
	Stage          StageCode    `json:"stage" gorm:"type:text;not null"`
	Status         StatusCode   `json:"status" gorm:"type:text;not null"`
	LevyAmount     *int64       `json:"levy_amount,omitempty"`
	BodyAmount     *int64       `json:"body_amount,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	DateOfDecision *time.Time   `json:"date_of_decision,omitempty"`
}

func (StatusEntry) TableName() string { return "chargeback_states" }

// HoldEntry is one append-only record of fund-hold flags.
type HoldEntry struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	ChargebackID         snowflake.ID `json:"chargeback_id" gorm:"not null;index"`
	InvoiceID            string       `json:"invoice_id" gorm:"type:text;not null"`
	PaymentID            string       `json:"payment_id" gorm:"type:text;not null"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	WillHoldFromMerchant bool         `json:"will_hold_from_merchant"`
	WasHoldFromMerchant  bool         `json:"was_hold_from_merchant"`
	HoldFromUs           bool         `json:"hold_from_us"`
}

func (HoldEntry) TableName() string { return "chargeback_hold_states" }

// Key identifies a chargeback by the payment it disputes.
type Key struct {
	InvoiceID string
	PaymentID string
}

func (k Key) String() string {
	return k.InvoiceID + "/" + k.PaymentID
}
