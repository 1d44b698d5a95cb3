package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wanderlog/service-payment/internal/application"
	"github.com/wanderlog/service-payment/internal/common/auth"
	"github.com/wanderlog/service-payment/internal/common/middleware"
	"github.com/wanderlog/service-payment/internal/common/response"
)

// AdminPaymentHandler handles admin HTTP requests for payment management.
type AdminPaymentHandler struct {
	paymentService *application.PaymentService
	reconciler     *application.Reconciler
}

// NewAdminPaymentHandler creates a new AdminPaymentHandler.
func NewAdminPaymentHandler(paymentService *application.PaymentService, reconciler *application.Reconciler) *AdminPaymentHandler {
	return &AdminPaymentHandler{
		paymentService: paymentService,
		reconciler:     reconciler,
	}
}

// RegisterRoutes registers admin payment routes.
func (h *AdminPaymentHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireAdmin())
	{
		admin.GET("/payments", h.ListPayments)
		admin.GET("/stats/payments", h.PaymentStats)
		admin.POST("/payments/:reference/refund", h.RefundPayment)
		admin.POST("/payments/reconcile", h.Reconcile)
	}
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *AdminPaymentHandler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	payments, total, err := h.paymentService.ListAllPayments(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, payments, total, page, limit)
}

// PaymentStats handles GET /api/v1/admin/stats/payments.
func (h *AdminPaymentHandler) PaymentStats(c *gin.Context) {
	stats, err := h.paymentService.GetPaymentStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// RefundPayment handles POST /api/v1/admin/payments/:reference/refund.
func (h *AdminPaymentHandler) RefundPayment(c *gin.Context) {
	actor, _ := middleware.GetActor(c)

	var req application.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.paymentService.RefundPayment(c.Request.Context(), actor, c.Param("reference"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// Reconcile handles POST /api/v1/admin/payments/reconcile.
func (h *AdminPaymentHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, report)
}
