package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/pkg/db/pagination"
	"gorm.io/gorm"
)

const chargebackColumns = `id, invoice_id, payment_id, is_retrieval, pretension_date, operation_date,
	levy_amount, body_amount, currency, shop_id, category, reason_code, provider_id, masked_pan,
	rrn, shop_url, party_email, contact_email, context_type, context_data, external_id,
	created_at, updated_at`

const stateColumns = `id, chargeback_id, invoice_id, payment_id, stage, status, levy_amount,
	body_amount, created_at, date_of_decision`

const holdColumns = `id, chargeback_id, invoice_id, payment_id, created_at,
	will_hold_from_merchant, was_hold_from_merchant, hold_from_us`

// currentStateSQL selects the id of a root's current status entry.
const currentStateSQL = `SELECT s2.id FROM chargeback_states s2
	WHERE s2.chargeback_id = chargebacks.id
	ORDER BY s2.created_at DESC, s2.id DESC LIMIT 1`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertChargeback(ctx context.Context, db *gorm.DB, cb *domain.Chargeback) (snowflake.ID, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO chargebacks (`+chargebackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id, payment_id, is_retrieval) DO UPDATE SET
			pretension_date = excluded.pretension_date,
			operation_date = excluded.operation_date,
			levy_amount = excluded.levy_amount,
			body_amount = excluded.body_amount,
			currency = excluded.currency,
			shop_id = excluded.shop_id,
			category = excluded.category,
			reason_code = excluded.reason_code,
			provider_id = excluded.provider_id,
			masked_pan = excluded.masked_pan,
			rrn = excluded.rrn,
			shop_url = excluded.shop_url,
			party_email = excluded.party_email,
			contact_email = excluded.contact_email,
			context_type = excluded.context_type,
			context_data = excluded.context_data,
			external_id = excluded.external_id,
			updated_at = excluded.updated_at`,
		cb.ID,
		cb.InvoiceID,
		cb.PaymentID,
		cb.IsRetrieval,
		cb.PretensionDate,
		cb.OperationDate,
		cb.LevyAmount,
		cb.BodyAmount,
		cb.Currency,
		cb.ShopID,
		cb.Category,
		cb.ReasonCode,
		cb.ProviderID,
		cb.MaskedPan,
		cb.Rrn,
		cb.ShopURL,
		cb.PartyEmail,
		cb.ContactEmail,
		cb.ContextType,
		cb.Context,
		cb.ExternalID,
		cb.CreatedAt,
		cb.UpdatedAt,
	).Error
	if err != nil {
		return 0, err
	}

	var id snowflake.ID
	err = db.WithContext(ctx).Raw(
		`SELECT id FROM chargebacks
		 WHERE invoice_id = ? AND payment_id = ? AND is_retrieval = ?`,
		cb.InvoiceID,
		cb.PaymentID,
		cb.IsRetrieval,
	).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func (r *repo) FindChargebackByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Chargeback, error) {
	var cb domain.Chargeback
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargebackColumns+` FROM chargebacks WHERE id = ?`,
		id,
	).Scan(&cb).Error
	if err != nil {
		return nil, err
	}
	if cb.ID == 0 {
		return nil, nil
	}
	return &cb, nil
}

func (r *repo) FindChargebackByKeys(ctx context.Context, db *gorm.DB, invoiceID, paymentID string, isRetrieval bool) (*domain.Chargeback, error) {
	var cb domain.Chargeback
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargebackColumns+` FROM chargebacks
		 WHERE invoice_id = ? AND payment_id = ? AND is_retrieval = ?
		 LIMIT 1`,
		invoiceID,
		paymentID,
		isRetrieval,
	).Scan(&cb).Error
	if err != nil {
		return nil, err
	}
	if cb.ID == 0 {
		return nil, nil
	}
	return &cb, nil
}

func (r *repo) InsertState(ctx context.Context, db *gorm.DB, entry *domain.StatusEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO chargeback_states (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ChargebackID,
		entry.InvoiceID,
		entry.PaymentID,
		entry.Stage,
		entry.Status,
		entry.LevyAmount,
		entry.BodyAmount,
		entry.CreatedAt,
		entry.DateOfDecision,
	).Error
}

func (r *repo) ListStatesByChargebackID(ctx context.Context, db *gorm.DB, chargebackID snowflake.ID) ([]domain.StatusEntry, error) {
	var entries []domain.StatusEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+stateColumns+` FROM chargeback_states
		 WHERE chargeback_id = ?
		 ORDER BY created_at ASC, id ASC`,
		chargebackID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListStatesByKeys(ctx context.Context, db *gorm.DB, invoiceID, paymentID string, isRetrieval bool) ([]domain.StatusEntry, error) {
	var entries []domain.StatusEntry
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.chargeback_id, s.invoice_id, s.payment_id, s.stage, s.status, s.levy_amount,
			s.body_amount, s.created_at, s.date_of_decision
		 FROM chargeback_states s
		 JOIN chargebacks c ON c.id = s.chargeback_id
		 WHERE c.invoice_id = ? AND c.payment_id = ? AND c.is_retrieval = ?
		 ORDER BY s.created_at ASC, s.id ASC`,
		invoiceID,
		paymentID,
		isRetrieval,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) LatestState(ctx context.Context, db *gorm.DB, chargebackID snowflake.ID) (*domain.StatusEntry, error) {
	var entry domain.StatusEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+stateColumns+` FROM chargeback_states
		 WHERE chargeback_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		chargebackID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) InsertHoldState(ctx context.Context, db *gorm.DB, entry *domain.HoldEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO chargeback_hold_states (`+holdColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ChargebackID,
		entry.InvoiceID,
		entry.PaymentID,
		entry.CreatedAt,
		entry.WillHoldFromMerchant,
		entry.WasHoldFromMerchant,
		entry.HoldFromUs,
	).Error
}

func (r *repo) ListHoldStatesByChargebackID(ctx context.Context, db *gorm.DB, chargebackID snowflake.ID) ([]domain.HoldEntry, error) {
	var entries []domain.HoldEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+holdColumns+` FROM chargeback_hold_states
		 WHERE chargeback_id = ?
		 ORDER BY created_at ASC, id ASC`,
		chargebackID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListHoldStatesByKeys(ctx context.Context, db *gorm.DB, invoiceID, paymentID string, isRetrieval bool) ([]domain.HoldEntry, error) {
	var entries []domain.HoldEntry
	err := db.WithContext(ctx).Raw(
		`SELECT h.id, h.chargeback_id, h.invoice_id, h.payment_id, h.created_at,
			h.will_hold_from_merchant, h.was_hold_from_merchant, h.hold_from_us
		 FROM chargeback_hold_states h
		 JOIN chargebacks c ON c.id = h.chargeback_id
		 WHERE c.invoice_id = ? AND c.payment_id = ? AND c.is_retrieval = ?
		 ORDER BY h.created_at ASC, h.id ASC`,
		invoiceID,
		paymentID,
		isRetrieval,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListByDateRange(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Chargeback, error) {
	return r.list(ctx, db, domain.ListFilter{DateFrom: &from, DateTo: &to})
}

func (r *repo) ListByProvider(ctx context.Context, db *gorm.DB, providerID string, from, to *time.Time, statuses []domain.StatusCode) ([]domain.Chargeback, error) {
	return r.list(ctx, db, domain.ListFilter{
		DateFrom:   from,
		DateTo:     to,
		ProviderID: providerID,
		Statuses:   statuses,
	})
}

func (r *repo) ListByCategories(ctx context.Context, db *gorm.DB, categories []domain.CategoryCode, from, to *time.Time) ([]domain.Chargeback, error) {
	return r.list(ctx, db, domain.ListFilter{
		DateFrom:   from,
		DateTo:     to,
		Categories: categories,
	})
}

func (r *repo) ListByStageStatus(ctx context.Context, db *gorm.DB, stage domain.StageCode, status domain.StatusCode, from, to *time.Time) ([]domain.Chargeback, error) {
	return r.list(ctx, db, domain.ListFilter{
		DateFrom: from,
		DateTo:   to,
		Stage:    stage,
		Statuses: []domain.StatusCode{status},
	})
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Chargeback, error) {
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Chargeback{}), filter)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidFilter
		}
		after, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil {
			return nil, domain.ErrInvalidFilter
		}
		stmt = stmt.Where("id > ?", after)
	}

	var items []*domain.Chargeback
	err := stmt.
		Select(chargebackColumns).
		Order("id asc").
		Limit(page.Limit() + 1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) list(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Chargeback, error) {
	var items []domain.Chargeback
	err := applyFilter(db.WithContext(ctx).Model(&domain.Chargeback{}), filter).
		Select(chargebackColumns).
		Order("pretension_date asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if filter.DateFrom != nil {
		stmt = stmt.Where("pretension_date >= ?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		stmt = stmt.Where("pretension_date <= ?", filter.DateTo.UTC())
	}
	if filter.ProviderID != "" {
		stmt = stmt.Where("provider_id = ?", filter.ProviderID)
	}
	if len(filter.Categories) > 0 {
		stmt = stmt.Where("category IN ?", filter.Categories)
	}
	if filter.Stage != "" || len(filter.Statuses) > 0 {
		cond := "EXISTS (SELECT 1 FROM chargeback_states s WHERE s.chargeback_id = chargebacks.id AND s.id = (" + currentStateSQL + ")"
		var args []interface{}
		if filter.Stage != "" {
			cond += " AND s.stage = ?"
			args = append(args, filter.Stage)
		}
		if len(filter.Statuses) > 0 {
			cond += " AND s.status IN ?"
			args = append(args, filter.Statuses)
		}
		cond += ")"
		stmt = stmt.Where(cond, args...)
	}
	return stmt
}
