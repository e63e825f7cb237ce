package domain

import "time"

// Marker is an empty tag in a one-of payload, encoded as {}.
type Marker struct{}

// EventEnvelope is the wire shape of an inbound event: exactly one field is set.
type EventEnvelope struct {
	Create           *CreatePayload           `json:"create,omitempty"`
	StatusChange     *StatusChangePayload     `json:"status_change,omitempty"`
	HoldStatusChange *HoldStatusChangePayload `json:"hold_status_change,omitempty"`
	Reopen           *ReopenPayload           `json:"reopen,omitempty"`
}

type CategoryPayload struct {
	Authorisation   *Marker `json:"authorisation,omitempty"`
	Dispute         *Marker `json:"dispute,omitempty"`
	Fraud           *Marker `json:"fraud,omitempty"`
	ProcessingError *Marker `json:"processing_error,omitempty"`
}

type StagePayload struct {
	Chargeback     *Marker `json:"chargeback,omitempty"`
	PreArbitration *Marker `json:"pre_arbitration,omitempty"`
	Arbitration    *Marker `json:"arbitration,omitempty"`
}

type AcceptedPayload struct {
	BodyAmount int64 `json:"body_amount"`
	LevyAmount int64 `json:"levy_amount"`
}

type RejectedPayload struct {
	LevyAmount int64 `json:"levy_amount"`
}

type StatusPayload struct {
	Pending   *Marker          `json:"pending,omitempty"`
	Accepted  *AcceptedPayload `json:"accepted,omitempty"`
	Rejected  *RejectedPayload `json:"rejected,omitempty"`
	Cancelled *Marker          `json:"cancelled,omitempty"`
}

type ReasonPayload struct {
	Code     string          `json:"code"`
	Category CategoryPayload `json:"category"`
}

type ContentPayload struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

type CreatePayload struct {
	InvoiceID      string          `json:"invoice_id"`
	PaymentID      string          `json:"payment_id"`
	IsRetrieval    bool            `json:"is_retrieval"`
	PretensionDate time.Time       `json:"pretension_date"`
	OperationDate  time.Time       `json:"operation_date"`
	LevyAmount     int64           `json:"levy_amount"`
	BodyAmount     int64           `json:"body_amount"`
	Currency       string          `json:"currency"`
	ShopID         string          `json:"shop_id,omitempty"`
	Reason         ReasonPayload   `json:"reason"`
	ProviderID     string          `json:"provider_id,omitempty"`
	MaskedPan      string          `json:"masked_pan,omitempty"`
	Rrn            string          `json:"rrn,omitempty"`
	ShopURL        string          `json:"shop_url,omitempty"`
	PartyEmail     string          `json:"party_email,omitempty"`
	ContactEmail   string          `json:"contact_email,omitempty"`
	Content        *ContentPayload `json:"content,omitempty"`
	ExternalID     string          `json:"external_id,omitempty"`
}

type StatusChangePayload struct {
	InvoiceID      string        `json:"invoice_id"`
	PaymentID      string        `json:"payment_id"`
	Stage          StagePayload  `json:"stage"`
	Status         StatusPayload `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	DateOfDecision *time.Time    `json:"date_of_decision,omitempty"`
}

type HoldStatusChangePayload struct {
	InvoiceID            string    `json:"invoice_id"`
	PaymentID            string    `json:"payment_id"`
	CreatedAt            time.Time `json:"created_at"`
	WillHoldFromMerchant bool      `json:"will_hold_from_merchant"`
	WasHoldFromMerchant  bool      `json:"was_hold_from_merchant"`
	HoldFromUs           bool      `json:"hold_from_us"`
}

type ReopenPayload struct {
	InvoiceID   string        `json:"invoice_id"`
	PaymentID   string        `json:"payment_id"`
	CreatedAt   time.Time     `json:"created_at"`
	LevyAmount  int64         `json:"levy_amount"`
	BodyAmount  int64         `json:"body_amount"`
	ReopenStage *StagePayload `json:"reopen_stage,omitempty"`
}

// Decode converts the wire envelope into a typed Event. An envelope with zero or several
// variants set fails with ErrUnsupportedOperation.
func (e EventEnvelope) Decode() (Event, error) {
	set := 0
	for _, present := range []bool{e.Create != nil, e.StatusChange != nil, e.HoldStatusChange != nil, e.Reopen != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, ErrUnsupportedOperation
	}

	switch {
	case e.Create != nil:
		return e.Create.decode()
	case e.StatusChange != nil:
		return e.StatusChange.decode()
	case e.HoldStatusChange != nil:
		return e.HoldStatusChange.decode(), nil
	default:
		return e.Reopen.decode()
	}
}

func (p CategoryPayload) decode() (Category, error) {
	var out []Category
	if p.Authorisation != nil {
		out = append(out, CategoryAuthorisation{})
	}
	if p.Dispute != nil {
		out = append(out, CategoryDispute{})
	}
	if p.Fraud != nil {
		out = append(out, CategoryFraud{})
	}
	if p.ProcessingError != nil {
		out = append(out, CategoryProcessingError{})
	}
	if len(out) != 1 {
		return nil, ErrUnsupportedCategory
	}
	return out[0], nil
}

func (p StagePayload) decode() (Stage, error) {
	var out []Stage
	if p.Chargeback != nil {
		out = append(out, StageChargeback{})
	}
	if p.PreArbitration != nil {
		out = append(out, StagePreArbitration{})
	}
	if p.Arbitration != nil {
		out = append(out, StageArbitration{})
	}
	if len(out) != 1 {
		return nil, ErrUnsupportedStage
	}
	return out[0], nil
}

func (p StatusPayload) decode() (Status, error) {
	var out []Status
	if p.Pending != nil {
		out = append(out, StatusPending{})
	}
	if p.Accepted != nil {
		out = append(out, StatusAccepted{BodyAmount: p.Accepted.BodyAmount, LevyAmount: p.Accepted.LevyAmount})
	}
	if p.Rejected != nil {
		out = append(out, StatusRejected{LevyAmount: p.Rejected.LevyAmount})
	}
	if p.Cancelled != nil {
		out = append(out, StatusCancelled{})
	}
	if len(out) != 1 {
		return nil, ErrUnsupportedStatus
	}
	return out[0], nil
}

func (p CreatePayload) decode() (Event, error) {
	category, err := p.Reason.Category.decode()
	if err != nil {
		return nil, err
	}
	ev := CreateEvent{
		InvoiceID:      p.InvoiceID,
		PaymentID:      p.PaymentID,
		IsRetrieval:    p.IsRetrieval,
		PretensionDate: p.PretensionDate,
		OperationDate:  p.OperationDate,
		LevyAmount:     p.LevyAmount,
		BodyAmount:     p.BodyAmount,
		Currency:       p.Currency,
		ShopID:         p.ShopID,
		Reason:         Reason{Code: p.Reason.Code, Category: category},
		ProviderID:     p.ProviderID,
		MaskedPan:      p.MaskedPan,
		Rrn:            p.Rrn,
		ShopURL:        p.ShopURL,
		PartyEmail:     p.PartyEmail,
		ContactEmail:   p.ContactEmail,
		ExternalID:     p.ExternalID,
	}
	if p.Content != nil {
		ev.Content = &Content{Type: p.Content.Type, Data: p.Content.Data}
	}
	return ev, nil
}

func (p StatusChangePayload) decode() (Event, error) {
	stage, err := p.Stage.decode()
	if err != nil {
		return nil, err
	}
	status, err := p.Status.decode()
	if err != nil {
		return nil, err
	}
	return StatusChangeEvent{
		InvoiceID:      p.InvoiceID,
		PaymentID:      p.PaymentID,
		Stage:          stage,
		Status:         status,
		CreatedAt:      p.CreatedAt,
		DateOfDecision: p.DateOfDecision,
	}, nil
}

func (p HoldStatusChangePayload) decode() Event {
	return HoldStatusChangeEvent{
		InvoiceID: p.InvoiceID,
		PaymentID: p.PaymentID,
		CreatedAt: p.CreatedAt,
		HoldStatus: HoldStatus{
			WillHoldFromMerchant: p.WillHoldFromMerchant,
			WasHoldFromMerchant:  p.WasHoldFromMerchant,
			HoldFromUs:           p.HoldFromUs,
		},
	}
}

func (p ReopenPayload) decode() (Event, error) {
	ev := ReopenEvent{
		InvoiceID:  p.InvoiceID,
		PaymentID:  p.PaymentID,
		CreatedAt:  p.CreatedAt,
		LevyAmount: p.LevyAmount,
		BodyAmount: p.BodyAmount,
	}
	if p.ReopenStage != nil {
		stage, err := p.ReopenStage.decode()
		if err != nil {
			return nil, err
		}
		ev.ReopenStage = stage
	}
	return ev, nil
}

// EncodeEvent converts a typed Event back into its wire envelope.
func EncodeEvent(ev Event) (EventEnvelope, error) {
	switch e := ev.(type) {
	case CreateEvent:
		p := &CreatePayload{
			InvoiceID:      e.InvoiceID,
			PaymentID:      e.PaymentID,
			IsRetrieval:    e.IsRetrieval,
			PretensionDate: e.PretensionDate,
			OperationDate:  e.OperationDate,
			LevyAmount:     e.LevyAmount,
			BodyAmount:     e.BodyAmount,
			Currency:       e.Currency,
			ShopID:         e.ShopID,
			Reason:         ReasonPayload{Code: e.Reason.Code, Category: encodeCategory(e.Reason.Category)},
			ProviderID:     e.ProviderID,
			MaskedPan:      e.MaskedPan,
			Rrn:            e.Rrn,
			ShopURL:        e.ShopURL,
			PartyEmail:     e.PartyEmail,
			ContactEmail:   e.ContactEmail,
			ExternalID:     e.ExternalID,
		}
		if e.Content != nil {
			p.Content = &ContentPayload{Type: e.Content.Type, Data: e.Content.Data}
		}
		return EventEnvelope{Create: p}, nil
	case StatusChangeEvent:
		return EventEnvelope{StatusChange: &StatusChangePayload{
			InvoiceID:      e.InvoiceID,
			PaymentID:      e.PaymentID,
			Stage:          encodeStage(e.Stage),
			Status:         encodeStatus(e.Status),
			CreatedAt:      e.CreatedAt,
			DateOfDecision: e.DateOfDecision,
		}}, nil
	case HoldStatusChangeEvent:
		return EventEnvelope{HoldStatusChange: &HoldStatusChangePayload{
			InvoiceID:            e.InvoiceID,
			PaymentID:            e.PaymentID,
			CreatedAt:            e.CreatedAt,
			WillHoldFromMerchant: e.HoldStatus.WillHoldFromMerchant,
			WasHoldFromMerchant:  e.HoldStatus.WasHoldFromMerchant,
			HoldFromUs:           e.HoldStatus.HoldFromUs,
		}}, nil
	case ReopenEvent:
		p := &ReopenPayload{
			InvoiceID:  e.InvoiceID,
			PaymentID:  e.PaymentID,
			CreatedAt:  e.CreatedAt,
			LevyAmount: e.LevyAmount,
			BodyAmount: e.BodyAmount,
		}
		if e.ReopenStage != nil {
			stage := encodeStage(e.ReopenStage)
			p.ReopenStage = &stage
		}
		return EventEnvelope{Reopen: p}, nil
	default:
		return EventEnvelope{}, ErrUnsupportedOperation
	}
}

func encodeCategory(c Category) CategoryPayload {
	switch c.(type) {
	case CategoryAuthorisation:
		return CategoryPayload{Authorisation: &Marker{}}
	case CategoryDispute:
		return CategoryPayload{Dispute: &Marker{}}
	case CategoryFraud:
		return CategoryPayload{Fraud: &Marker{}}
	case CategoryProcessingError:
		return CategoryPayload{ProcessingError: &Marker{}}
	default:
		return CategoryPayload{}
	}
}

func encodeStage(s Stage) StagePayload {
	switch s.(type) {
	case StageChargeback:
		return StagePayload{Chargeback: &Marker{}}
	case StagePreArbitration:
		return StagePayload{PreArbitration: &Marker{}}
	case StageArbitration:
		return StagePayload{Arbitration: &Marker{}}
	default:
		return StagePayload{}
	}
}

func encodeStatus(s Status) StatusPayload {
	switch v := s.(type) {
	case StatusPending:
		return StatusPayload{Pending: &Marker{}}
	case StatusAccepted:
		return StatusPayload{Accepted: &AcceptedPayload{BodyAmount: v.BodyAmount, LevyAmount: v.LevyAmount}}
	case StatusRejected:
		return StatusPayload{Rejected: &RejectedPayload{LevyAmount: v.LevyAmount}}
	case StatusCancelled:
		return StatusPayload{Cancelled: &Marker{}}
	default:
		return StatusPayload{}
	}
}
