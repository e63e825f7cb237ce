package domain

type CategoryCode string

const (
	CategoryCodeAuthorisation   CategoryCode = "authorisation"
	CategoryCodeDispute         CategoryCode = "dispute"
	CategoryCodeFraud           CategoryCode = "fraud"
	CategoryCodeProcessingError CategoryCode = "processing_error"
)

// Category is a closed set; only the types in this file implement it.
type Category interface {
	Code() CategoryCode
	isCategory()
}

type (
	CategoryAuthorisation   struct{}
	CategoryDispute         struct{}
	CategoryFraud           struct{}
	CategoryProcessingError struct{}
)

func (CategoryAuthorisation) Code() CategoryCode   { return CategoryCodeAuthorisation }
func (CategoryDispute) Code() CategoryCode         { return CategoryCodeDispute }
func (CategoryFraud) Code() CategoryCode           { return CategoryCodeFraud }
func (CategoryProcessingError) Code() CategoryCode { return CategoryCodeProcessingError }

func (CategoryAuthorisation) isCategory()   {}
func (CategoryDispute) isCategory()         {}
func (CategoryFraud) isCategory()           {}
func (CategoryProcessingError) isCategory() {}

func CategoryFromCode(code CategoryCode) (Category, error) {
	switch code {
	case CategoryCodeAuthorisation:
		return CategoryAuthorisation{}, nil
	case CategoryCodeDispute:
		return CategoryDispute{}, nil
	case CategoryCodeFraud:
		return CategoryFraud{}, nil
	case CategoryCodeProcessingError:
		return CategoryProcessingError{}, nil
	default:
		return nil, ErrUnsupportedCategory
	}
}

type StageCode string

const (
	StageCodeChargeback     StageCode = "chargeback"
	StageCodePreArbitration StageCode = "pre_arbitration"
	StageCodeArbitration    StageCode = "arbitration"
)

type Stage interface {
	Code() StageCode
	isStage()
}

type (
	StageChargeback     struct{}
	StagePreArbitration struct{}
	StageArbitration    struct{}
)

func (StageChargeback) Code() StageCode     { return StageCodeChargeback }
func (StagePreArbitration) Code() StageCode { return StageCodePreArbitration }
func (StageArbitration) Code() StageCode    { return StageCodeArbitration }

func (StageChargeback) isStage()     {}
func (StagePreArbitration) isStage() {}
func (StageArbitration) isStage()    {}

func StageFromCode(code StageCode) (Stage, error) {
	switch code {
	case StageCodeChargeback:
		return StageChargeback{}, nil
	case StageCodePreArbitration:
		return StagePreArbitration{}, nil
	case StageCodeArbitration:
		return StageArbitration{}, nil
	default:
		return nil, ErrUnsupportedStage
	}
}

// IsReopenStage reports whether a reopen may move a chargeback to stage.
func IsReopenStage(stage Stage) bool {
	switch stage.(type) {
	case StagePreArbitration, StageArbitration:
		return true
	default:
		return false
	}
}

type StatusCode string

const (
	StatusCodePending   StatusCode = "pending"
	StatusCodeAccepted  StatusCode = "accepted"
	StatusCodeRejected  StatusCode = "rejected"
	StatusCodeCancelled StatusCode = "cancelled"
)

// Status is a closed set. Accepted and Rejected carry the amounts decided by the issuer.
type Status interface {
	Code() StatusCode
	isStatus()
}

type StatusPending struct{}

type StatusAccepted struct {
	BodyAmount int64
	LevyAmount int64
}

type StatusRejected struct {
	LevyAmount int64
}

type StatusCancelled struct{}

func (StatusPending) Code() StatusCode   { return StatusCodePending }
func (StatusAccepted) Code() StatusCode  { return StatusCodeAccepted }
func (StatusRejected) Code() StatusCode  { return StatusCodeRejected }
func (StatusCancelled) Code() StatusCode { return StatusCodeCancelled }

func (StatusPending) isStatus()   {}
func (StatusAccepted) isStatus()  {}
func (StatusRejected) isStatus()  {}
func (StatusCancelled) isStatus() {}

// StatusFromEntry rebuilds the status variant stored in a history entry.
func StatusFromEntry(entry StatusEntry) (Status, error) {
	switch entry.Status {
	case StatusCodePending:
		return StatusPending{}, nil
	case StatusCodeAccepted:
		return StatusAccepted{BodyAmount: deref(entry.BodyAmount), LevyAmount: deref(entry.LevyAmount)}, nil
	case StatusCodeRejected:
		return StatusRejected{LevyAmount: deref(entry.LevyAmount)}, nil
	case StatusCodeCancelled:
		return StatusCancelled{}, nil
	default:
		return nil, ErrUnsupportedStatus
	}
}

func ValidStatusCode(code StatusCode) bool {
	switch code {
	case StatusCodePending, StatusCodeAccepted, StatusCodeRejected, StatusCodeCancelled:
		return true
	default:
		return false
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
