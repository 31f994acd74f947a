package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/services/policy/internal/domain"
	"example.com/travel-insurance/services/policy/internal/service"
)

// defaultRetryAfter совпадает с RetryTimeout circuit breaker по умолчанию.
const defaultRetryAfter = 60 * time.Second

// PolicyHandler — обработчик полисов.
type PolicyHandler struct {
	service    service.PolicyService
	retryAfter time.Duration
}

// NewPolicyHandler создаёт новый обработчик полисов.
func NewPolicyHandler(svc service.PolicyService, retryAfter time.Duration) *PolicyHandler {
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	return &PolicyHandler{service: svc, retryAfter: retryAfter}
}

// === Request/Response DTOs ===

// CreatePolicyRequest — тело POST /api/v1/policies.
// Премия не принимается от клиента: она всегда рассчитывается сервисом.
type CreatePolicyRequest struct {
	CustomerName  string  `json:"customer_name" binding:"required"`
	CustomerEmail string  `json:"customer_email" binding:"required"`
	CustomerPhone *string `json:"customer_phone"`
	Destination   string  `json:"destination" binding:"required"`
	TripStartDate string  `json:"trip_start_date" binding:"required"`
	TripEndDate   string  `json:"trip_end_date" binding:"required"`
	CoverageType  string  `json:"coverage_type" binding:"required"`
	PaymentID     string  `json:"payment_id" binding:"required"`
}

// UpdateStatusRequest — тело PUT /api/v1/policies/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// QuoteRequest — тело POST /api/v1/policies/quote.
type QuoteRequest struct {
	Destination   string `json:"destination" binding:"required"`
	TripStartDate string `json:"trip_start_date" binding:"required"`
	TripEndDate   string `json:"trip_end_date" binding:"required"`
	CoverageType  string `json:"coverage_type" binding:"required"`
}

// PolicyResponse — полис в ответе.
type PolicyResponse struct {
	ID               string    `json:"id"`
	CustomerName     string    `json:"customer_name"`
	CustomerEmail    string    `json:"customer_email"`
	CustomerPhone    *string   `json:"customer_phone,omitempty"`
	Destination      string    `json:"destination"`
	TripStartDate    string    `json:"trip_start_date"`
	TripEndDate      string    `json:"trip_end_date"`
	TripDurationDays int       `json:"trip_duration_days"`
	CoverageType     string    `json:"coverage_type"`
	Status           string    `json:"status"`
	PremiumAmount    string    `json:"premium_amount"`
	Currency         string    `json:"currency"`
	PaymentID        string    `json:"payment_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// QuoteResponse — результат предварительного расчёта.
type QuoteResponse struct {
	Premium          string            `json:"premium"`
	Currency         string            `json:"currency"`
	ValidUntil       time.Time         `json:"valid_until"`
	Destination      string            `json:"destination"`
	CoverageType     string            `json:"coverage_type"`
	TripDurationDays int               `json:"trip_duration_days"`
	Breakdown        BreakdownResponse `json:"breakdown"`
}

// BreakdownResponse — составляющие премии.
type BreakdownResponse struct {
	DailyRate  string `json:"daily_rate"`
	Days       int    `json:"days"`
	Region     string `json:"region,omitempty"`
	Multiplier string `json:"multiplier"`
}

func toPolicyResponse(p *domain.Policy) PolicyResponse {
	return PolicyResponse{
		ID:               p.ID,
		CustomerName:     p.Customer.Name,
		CustomerEmail:    p.Customer.Email,
		CustomerPhone:    p.Customer.Phone,
		Destination:      p.Trip.Destination,
		TripStartDate:    p.Trip.StartDate.Format(domain.DateLayout),
		TripEndDate:      p.Trip.EndDate.Format(domain.DateLayout),
		TripDurationDays: p.Trip.DurationDays(),
		CoverageType:     string(p.Coverage),
		Status:           string(p.Status),
		PremiumAmount:    p.PremiumAmount.StringFixed(2),
		Currency:         service.QuoteCurrency,
		PaymentID:        p.PaymentID,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toQuoteResponse(q *service.Quote) QuoteResponse {
	return QuoteResponse{
		Premium:          q.Premium.StringFixed(2),
		Currency:         q.Currency,
		ValidUntil:       q.ValidUntil,
		Destination:      q.Destination,
		CoverageType:     string(q.Coverage),
		TripDurationDays: q.TripDurationDays,
		Breakdown: BreakdownResponse{
			DailyRate:  q.Breakdown.DailyRate.StringFixed(2),
			Days:       q.Breakdown.Days,
			Region:     q.Breakdown.Region,
			Multiplier: q.Breakdown.Multiplier.String(),
		},
	}
}

// === Handlers ===

// CreatePolicy оформляет полис.
// POST /api/v1/policies
//
// 201 — новый полис, 200 — полис для этого платежа уже существовал.
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	var req CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Некорректный запрос: "+err.Error())
		return
	}

	start, end, ok := parseTripDates(c, req.TripStartDate, req.TripEndDate)
	if !ok {
		return
	}

	policy, created, err := h.service.CreatePolicy(c.Request.Context(), service.CreatePolicyRequest{
		Customer: domain.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		Trip: domain.Trip{
			Destination: req.Destination,
			StartDate:   start,
			EndDate:     end,
		},
		Coverage:  parseCoverage(req.CoverageType),
		PaymentID: req.PaymentID,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, toPolicyResponse(policy))
}

// GetPolicy возвращает полис.
// GET /api/v1/policies/:id
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	policy, err := h.service.GetPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPolicyResponse(policy))
}

// GetPolicyByPayment возвращает полис по ID платежа.
// GET /api/v1/policies/by-payment/:paymentId
func (h *PolicyHandler) GetPolicyByPayment(c *gin.Context) {
	policy, err := h.service.GetPolicyByPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPolicyResponse(policy))
}

// UpdateStatus меняет статус полиса.
// PUT /api/v1/policies/:id/status
func (h *PolicyHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Некорректный запрос: "+err.Error())
		return
	}

	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Неизвестный статус полиса: "+req.Status)
		return
	}

	policy, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPolicyResponse(policy))
}

// Quote рассчитывает премию без оформления полиса.
// POST /api/v1/policies/quote
func (h *PolicyHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Некорректный запрос: "+err.Error())
		return
	}

	start, end, ok := parseTripDates(c, req.TripStartDate, req.TripEndDate)
	if !ok {
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), service.QuoteRequest{
		Destination: req.Destination,
		StartDate:   start,
		EndDate:     end,
		Coverage:    parseCoverage(req.CoverageType),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuoteResponse(quote))
}

// === Helpers ===

// parseTripDates разбирает даты поездки и сам отвечает 400 при ошибке.
func parseTripDates(c *gin.Context, startRaw, endRaw string) (time.Time, time.Time, bool) {
	start, err := domain.ParseDate(startRaw)
	if err != nil {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Некорректная дата начала поездки, ожидается YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	end, err := domain.ParseDate(endRaw)
	if err != nil {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Некорректная дата окончания поездки, ожидается YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// parseCoverage нормализует тип покрытия. Нераспознанное значение
// передаётся как есть, чтобы валидатор вернул понятную ошибку.
func parseCoverage(raw string) domain.CoverageType {
	if coverage, ok := domain.ParseCoverage(raw); ok {
		return coverage
	}
	return domain.CoverageType(raw)
}
