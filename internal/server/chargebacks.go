package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/pkg/db/pagination"
	"go.uber.org/zap"
)

type chargebackResponse struct {
	ID     string                 `json:"id"`
	Events []domain.EventEnvelope `json:"events"`
}

type listChargebacksQuery struct {
	InvoiceID  string   `form:"invoice_id"`
	PaymentID  string   `form:"payment_id"`
	ProviderID string   `form:"provider_id"`
	Category   []string `form:"category"`
	Stage      string   `form:"stage"`
	Status     []string `form:"status"`
	DateFrom   string   `form:"date_from"`
	DateTo     string   `form:"date_to"`
}

type searchChargebacksQuery struct {
	listChargebacksQuery
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

func (s *Server) ProcessEvent(c *gin.Context) {
	var envelope domain.EventEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ev, err := envelope.Decode()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.service.Process(c.Request.Context(), ev)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetChargebackByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := s.querySvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.toChargebackResponse(item)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListChargebacks answers exactly one lookup, chosen by the most specific parameters
// present: keys, then provider, then category, then stage, then date range.
func (s *Server) ListChargebacks(c *gin.Context) {
	var query listChargebacksQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, to, err := parseDateRange(query.DateFrom, query.DateTo)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	invoiceID := strings.TrimSpace(query.InvoiceID)
	paymentID := strings.TrimSpace(query.PaymentID)
	providerID := strings.TrimSpace(query.ProviderID)
	categories := parseList(query.Category)
	statuses := parseList(query.Status)
	stage := strings.TrimSpace(query.Stage)

	var items []domain.ChargebackData
	switch {
	case invoiceID != "" || paymentID != "":
		if invoiceID == "" || paymentID == "" {
			AbortWithError(c, newValidationError("payment_id", "invalid_filter", "invoice_id and payment_id are required together"))
			return
		}
		item, err := s.querySvc.GetByKeys(ctx, invoiceID, paymentID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		resp, err := s.toChargebackResponse(item)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
		return
	case providerID != "":
		items, err = s.querySvc.GetByProvider(ctx, providerID, from, to, statusCodes(statuses))
	case len(categories) > 0:
		items, err = s.querySvc.GetByCategory(ctx, categoryCodes(categories), from, to)
	case stage != "":
		if len(statuses) != 1 {
			AbortWithError(c, newValidationError("status", "invalid_filter", "exactly one status is required with stage"))
			return
		}
		items, err = s.querySvc.GetByStageStatus(ctx, domain.StageCode(stage), domain.StatusCode(statuses[0]), from, to)
	case from != nil && to != nil:
		items, err = s.querySvc.GetByDateRange(ctx, *from, *to)
	default:
		AbortWithError(c, newValidationError("query", "invalid_filter", "no lookup parameters"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.toChargebackResponses(items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SearchChargebacks(c *gin.Context) {
	var query searchChargebacksQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, to, err := parseDateRange(query.DateFrom, query.DateTo)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.querySvc.Search(c.Request.Context(), domain.SearchRequest{
		ListFilter: domain.ListFilter{
			DateFrom:   from,
			DateTo:     to,
			ProviderID: strings.TrimSpace(query.ProviderID),
			Categories: categoryCodes(parseList(query.Category)),
			Stage:      domain.StageCode(strings.TrimSpace(query.Stage)),
			Statuses:   statusCodes(parseList(query.Status)),
		},
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.toChargebackResponses(resp.Chargebacks)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": resp.PageInfo})
}

func (s *Server) toChargebackResponses(items []domain.ChargebackData) ([]chargebackResponse, error) {
	out := make([]chargebackResponse, 0, len(items))
	for _, item := range items {
		resp, err := s.toChargebackResponse(item)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func (s *Server) toChargebackResponse(item domain.ChargebackData) (chargebackResponse, error) {
	resp := chargebackResponse{
		ID:     item.ID.String(),
		Events: make([]domain.EventEnvelope, 0, len(item.Events)),
	}
	for _, ev := range item.Events {
		envelope, err := domain.EncodeEvent(ev)
		if err != nil {
			s.log.Error("failed to encode chargeback event",
				zap.String("chargeback_id", resp.ID),
				zap.Error(err),
			)
			return chargebackResponse{}, err
		}
		resp.Events = append(resp.Events, envelope)
	}
	return resp, nil
}

func parseDateRange(fromValue, toValue string) (*time.Time, *time.Time, error) {
	from, err := parseOptionalTime(fromValue, false)
	if err != nil {
		return nil, nil, newValidationError("date_from", "invalid_date_from", "invalid date_from")
	}
	to, err := parseOptionalTime(toValue, true)
	if err != nil {
		return nil, nil, newValidationError("date_to", "invalid_date_to", "invalid date_to")
	}
	return from, to, nil
}

func categoryCodes(values []string) []domain.CategoryCode {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.CategoryCode, 0, len(values))
	for _, value := range values {
		out = append(out, domain.CategoryCode(value))
	}
	return out
}

func statusCodes(values []string) []domain.StatusCode {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.StatusCode, 0, len(values))
	for _, value := range values {
		out = append(out, domain.StatusCode(value))
	}
	return out
}
