package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wanderlog/service-payment/internal/application"
	"github.com/wanderlog/service-payment/internal/common/auth"
	"github.com/wanderlog/service-payment/internal/common/middleware"
	"github.com/wanderlog/service-payment/internal/common/response"
)

// PaymentHandler handles HTTP requests for payment operations.
type PaymentHandler struct {
	service *application.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes registers all payment routes on the given router group.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	payments := r.Group("/payments")
	payments.Use(authMW)
	{
		payments.POST("/:bookingId", h.InitiatePayment)
		payments.GET("/:reference", h.GetPayment)
		payments.GET("/:reference/status", h.GetPaymentStatus)
		payments.GET("/:reference/receipt", h.GetReceipt)
	}

	r.GET("/bookings/:bookingId/payments", authMW, h.ListBookingPayments)
	r.GET("/receipts/:number/qr", authMW, h.GetReceiptQR)
}

// InitiatePayment handles POST /api/v1/payments/:bookingId
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	bookingID, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	var req application.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.InitiatePayment(c.Request.Context(), actor, bookingID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// GetPayment handles GET /api/v1/payments/:reference
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	dto, err := h.service.GetPayment(c.Request.Context(), actor, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// GetPaymentStatus handles GET /api/v1/payments/:reference/status.
// A pending payment is checked with the gateway before responding.
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	dto, err := h.service.GetPaymentStatus(c.Request.Context(), actor, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// GetReceipt handles GET /api/v1/payments/:reference/receipt
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	dto, err := h.service.GetReceipt(c.Request.Context(), actor, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListBookingPayments handles GET /api/v1/bookings/:bookingId/payments
func (h *PaymentHandler) ListBookingPayments(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	bookingID, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	dto, err := h.service.ListBookingPayments(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// GetReceiptQR handles GET /api/v1/receipts/:number/qr
func (h *PaymentHandler) GetReceiptQR(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	png, err := h.service.ReceiptQR(c.Request.Context(), actor, c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
