// Package query reassembles chargeback history for callers. It never writes.
package query

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

var _ domain.QueryService = (*Service)(nil)

func NewService(p Params) *Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("chargeback.query"),
		repo: p.Repo,
	}
}

// GetByKeys returns the full chargeback for a payment. Retrieval requests are only
// reachable through GetByID or the list queries.
func (s *Service) GetByKeys(ctx context.Context, invoiceID, paymentID string) (domain.ChargebackData, error) {
	cb, err := s.repo.FindChargebackByKeys(ctx, s.db, invoiceID, paymentID, false)
	if err != nil {
		return domain.ChargebackData{}, err
	}
	if cb == nil {
		return domain.ChargebackData{}, domain.ErrNotFound
	}
	return s.history(ctx, *cb)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.ChargebackData, error) {
	if id == 0 {
		return domain.ChargebackData{}, domain.ErrInvalidID
	}
	cb, err := s.repo.FindChargebackByID(ctx, s.db, id)
	if err != nil {
		return domain.ChargebackData{}, err
	}
	if cb == nil {
		return domain.ChargebackData{}, domain.ErrNotFound
	}
	return s.history(ctx, *cb)
}

func (s *Service) GetByDateRange(ctx context.Context, from, to time.Time) ([]domain.ChargebackData, error) {
	if err := validateRange(&from, &to); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByDateRange(ctx, s.db, from, to)
	if err != nil {
		return nil, err
	}
	return s.histories(ctx, items)
}

// GetByProvider lists a provider's chargebacks. A non-empty statuses keeps only roots
// whose current status is listed.
func (s *Service) GetByProvider(ctx context.Context, providerID string, from, to *time.Time, statuses []domain.StatusCode) ([]domain.ChargebackData, error) {
	if providerID == "" {
		return nil, domain.ErrInvalidFilter
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if err := validateStatuses(statuses); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByProvider(ctx, s.db, providerID, from, to, statuses)
	if err != nil {
		return nil, err
	}
	return s.histories(ctx, items)
}

func (s *Service) GetByCategory(ctx context.Context, categories []domain.CategoryCode, from, to *time.Time) ([]domain.ChargebackData, error) {
	if len(categories) == 0 {
		return nil, domain.ErrInvalidFilter
	}
	if err := validateCategories(categories); err != nil {
		return nil, err
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByCategories(ctx, s.db, categories, from, to)
	if err != nil {
		return nil, err
	}
	return s.histories(ctx, items)
}

func (s *Service) GetByStageStatus(ctx context.Context, stage domain.StageCode, status domain.StatusCode, from, to *time.Time) ([]domain.ChargebackData, error) {
	if _, err := domain.StageFromCode(stage); err != nil {
		return nil, err
	}
	if err := validateStatuses([]domain.StatusCode{status}); err != nil {
		return nil, err
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStageStatus(ctx, s.db, stage, status, from, to)
	if err != nil {
		return nil, err
	}
	return s.histories(ctx, items)
}

// Search combines every filter and pages through results in id order.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	if err := validateFilter(req.ListFilter); err != nil {
		return domain.SearchResponse{}, err
	}

	items, err := s.repo.Search(ctx, s.db, req.ListFilter, req.Pagination)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	limit := req.Pagination.Limit()
	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(cb *domain.Chargeback) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: cb.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	roots := make([]domain.Chargeback, 0, len(items))
	for _, cb := range items {
		roots = append(roots, *cb)
	}
	data, err := s.histories(ctx, roots)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	return domain.SearchResponse{PageInfo: *pageInfo, Chargebacks: data}, nil
}

func (s *Service) histories(ctx context.Context, roots []domain.Chargeback) ([]domain.ChargebackData, error) {
	out := make([]domain.ChargebackData, 0, len(roots))
	for _, cb := range roots {
		data, err := s.history(ctx, cb)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (s *Service) history(ctx context.Context, cb domain.Chargeback) (domain.ChargebackData, error) {
	states, err := s.repo.ListStatesByChargebackID(ctx, s.db, cb.ID)
	if err != nil {
		return domain.ChargebackData{}, err
	}
	holds, err := s.repo.ListHoldStatesByChargebackID(ctx, s.db, cb.ID)
	if err != nil {
		return domain.ChargebackData{}, err
	}
	data, err := domain.BuildHistory(cb, states, holds)
	if err != nil {
		s.log.Error("stored chargeback cannot be reassembled",
			zap.String("chargeback_id", cb.ID.String()),
			zap.Error(err),
		)
		return domain.ChargebackData{}, err
	}
	return data, nil
}

func validateFilter(f domain.ListFilter) error {
	if err := validateRange(f.DateFrom, f.DateTo); err != nil {
		return err
	}
	if err := validateCategories(f.Categories); err != nil {
		return err
	}
	if f.Stage != "" {
		if _, err := domain.StageFromCode(f.Stage); err != nil {
			return err
		}
	}
	return validateStatuses(f.Statuses)
}

func validateRange(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return domain.ErrInvalidFilter
	}
	return nil
}

func validateCategories(categories []domain.CategoryCode) error {
	for _, c := range categories {
		if _, err := domain.CategoryFromCode(c); err != nil {
			return err
		}
	}
	return nil
}

func validateStatuses(statuses []domain.StatusCode) error {
	for _, st := range statuses {
		if !domain.ValidStatusCode(st) {
			return domain.ErrUnsupportedStatus
		}
	}
	return nil
}
