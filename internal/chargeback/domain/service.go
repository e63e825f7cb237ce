package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/pkg/db/pagination"
)

// Result describes what an applied event changed.
type Result struct {
	ChargebackID snowflake.ID `json:"chargeback_id"`
	EntryID      snowflake.ID `json:"entry_id,omitempty"`
	RemoteAction RemoteAction `json:"remote_action"`
}

// Service applies inbound events to chargeback history and the payment authority.
type Service interface {
	Create(ctx context.Context, ev CreateEvent) (snowflake.ID, error)
	ApplyStatusChange(ctx context.Context, ev StatusChangeEvent) (Result, error)
	ApplyReopen(ctx context.Context, ev ReopenEvent) (Result, error)
	ApplyHoldChange(ctx context.Context, ev HoldStatusChangeEvent) (Result, error)
	Process(ctx context.Context, ev Event) (Result, error)
}

// Synchronizer forwards committed history to the payment authority. One call per method,
// no retries; failures wrap ErrRemoteFailure.
type Synchronizer interface {
	SyncCreate(ctx context.Context, cb Chargeback) error
	SyncStatus(ctx context.Context, cb Chargeback, entry StatusEntry, status Status) error
	SyncReopen(ctx context.Context, cb Chargeback, ev ReopenEvent) error
}

type SearchRequest struct {
	ListFilter
	pagination.Pagination
}

type SearchResponse struct {
	pagination.PageInfo
	Chargebacks []ChargebackData
}

// QueryService reassembles chargeback history. It never writes.
type QueryService interface {
	GetByKeys(ctx context.Context, invoiceID, paymentID string) (ChargebackData, error)
	GetByID(ctx context.Context, id snowflake.ID) (ChargebackData, error)
	GetByDateRange(ctx context.Context, from, to time.Time) ([]ChargebackData, error)
	GetByProvider(ctx context.Context, providerID string, from, to *time.Time, statuses []StatusCode) ([]ChargebackData, error)
	GetByCategory(ctx context.Context, categories []CategoryCode, from, to *time.Time) ([]ChargebackData, error)
	GetByStageStatus(ctx context.Context, stage StageCode, status StatusCode, from, to *time.Time) ([]ChargebackData, error)
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
}
