package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/services/payment/internal/domain"
	"example.com/travel-insurance/services/payment/internal/service"
)

// HeaderReplayed выставляется, когда ответ — ранее сохранённый платёж.
const HeaderReplayed = "Idempotent-Replayed"

// PaymentHandler — обработчик платежей.
type PaymentHandler struct {
	service service.PaymentService
}

// NewPaymentHandler создаёт новый обработчик платежей.
func NewPaymentHandler(svc service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// === Request/Response DTOs ===

// ProcessPaymentRequest — тело POST /api/v1/payments.
type ProcessPaymentRequest struct {
	Amount         *decimal.Decimal `json:"amount" binding:"required"`
	Currency       string           `json:"currency" binding:"required,len=3"`
	PaymentMethod  string           `json:"payment_method" binding:"required"`
	IdempotencyKey string           `json:"idempotency_key" binding:"max=255"`
	CardNumber     string           `json:"card_number"`
	CardHolderName string           `json:"card_holder_name"`
	PayPalEmail    string           `json:"paypal_email"`
}

// PaymentResponse — платёж в ответе.
type PaymentResponse struct {
	ID             string     `json:"id"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	PaymentMethod  string     `json:"payment_method"`
	Status         string     `json:"status"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
	TransactionID  *string    `json:"transaction_id,omitempty"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// MethodsResponse — список поддерживаемых способов оплаты.
type MethodsResponse struct {
	Methods []string `json:"methods"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		PaymentMethod:  string(p.Method),
		Status:         string(p.Status),
		IdempotencyKey: p.IdempotencyKey,
		TransactionID:  p.TransactionID,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		ProcessedAt:    p.ProcessedAt,
	}
}

// === Handlers ===

// ProcessPayment проводит платёж.
// POST /api/v1/payments
//
// Неуспешное списание — тоже 200: статус FAILED и причина в теле.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, "Некорректный запрос: "+err.Error())
		return
	}

	result, err := h.service.ProcessPayment(c.Request.Context(), service.ProcessPaymentRequest{
		Amount:         *req.Amount,
		Currency:       req.Currency,
		Method:         req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
		CardNumber:     req.CardNumber,
		CardHolderName: req.CardHolderName,
		PayPalEmail:    req.PayPalEmail,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	if result.AlreadyExists {
		c.Header(HeaderReplayed, "true")
	}
	c.JSON(http.StatusOK, toPaymentResponse(result.Payment))
}

// GetPayment возвращает платёж.
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment))
}

// ListMethods возвращает поддерживаемые способы оплаты.
// GET /api/v1/payments/methods
func (h *PaymentHandler) ListMethods(c *gin.Context) {
	methods := h.service.SupportedMethods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	c.JSON(http.StatusOK, MethodsResponse{Methods: names})
}
