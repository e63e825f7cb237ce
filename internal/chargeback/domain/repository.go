package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/pkg/db/pagination"
	"gorm.io/gorm"
)

// ListFilter selects roots for the query façade. Empty fields do not filter. Date bounds
// apply to PretensionDate and are inclusive. Stage and Statuses match the current entry.
type ListFilter struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	ProviderID string
	Categories []CategoryCode
	Stage      StageCode
	Statuses   []StatusCode
}

type Repository interface {
	// UpsertChargeback inserts cb or, when (invoice, payment, retrieval) already exists,
	// overwrites its attributes. It returns the id of the stored row.
	UpsertChargeback(ctx context.Context, db *gorm.DB, cb *Chargeback) (snowflake.ID, error)
	FindChargebackByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Chargeback, error)
	FindChargebackByKeys(ctx context.Context, db *gorm.DB, invoiceID, paymentID string, isRetrieval bool) (*Chargeback, error)

	InsertState(ctx context.Context, db *gorm.DB, entry *StatusEntry) error
	ListStatesByChargebackID(ctx context.Context, db *gorm.DB, chargebackID snowflake.ID) ([]StatusEntry, error)
	ListStatesByKeys(ctx context.Context, db *gorm.DB, invoiceID, paymentID string, isRetrieval bool) ([]StatusEntry, error)
	LatestState(ctx context.Context, db *gorm.DB, chargebackID snowflake.ID) (*StatusEntry, error)

	InsertHoldState(ctx context.Context, db *gorm.DB, entry *HoldEntry) error
	ListHoldStatesByChargebackID(ctx context.Context, db *gorm.DB, chargebackID snowflake.ID) ([]HoldEntry, error)
	ListHoldStatesByKeys(ctx context.Context, db *gorm.DB, invoiceID, paymentID string, isRetrieval bool) ([]HoldEntry, error)

	ListByDateRange(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Chargeback, error)
	ListByProvider(ctx context.Context, db *gorm.DB, providerID string, from, to *time.Time, statuses []StatusCode) ([]Chargeback, error)
	ListByCategories(ctx context.Context, db *gorm.DB, categories []CategoryCode, from, to *time.Time) ([]Chargeback, error)
	ListByStageStatus(ctx context.Context, db *gorm.DB, stage StageCode, status StatusCode, from, to *time.Time) ([]Chargeback, error)
	Search(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Chargeback, error)
}
