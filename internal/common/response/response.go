package response

import (
	"errors"
	"math"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/wanderlog/service-payment/internal/common/domain"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Pagination accompanies list responses.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedData wraps a page of items.
type PaginatedData struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// retryable is implemented by errors that tell the caller whether trying again may help.
type retryable interface {
	Retryable() bool
}

var exposeInternal atomic.Bool

// ExposeInternalErrors controls whether 5xx responses include the underlying
// error text. It must stay off in production.
func ExposeInternalErrors(enabled bool) {
	exposeInternal.Store(enabled)
}

// Success writes a 200 response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "OK", Data: data})
}

// Created writes a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Message: "Created", Data: data})
}

// Paginated writes a 200 response carrying a page of items.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}
	Success(c, PaginatedData{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: pages,
		},
	})
}

// BadRequest writes a 400 response for malformed input.
func BadRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Message: "Bad request",
		Error:   &ErrorBody{Code: "BAD_REQUEST", Detail: detail},
	})
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{
		Success: false,
		Message: "Unauthorized",
		Error:   &ErrorBody{Code: "UNAUTHORIZED", Detail: detail},
	})
}

// Forbidden writes a 403 response.
func Forbidden(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Envelope{
		Success: false,
		Message: "Forbidden",
		Error:   &ErrorBody{Code: "FORBIDDEN", Detail: detail},
	})
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(c *gin.Context, detail string) {
	c.JSON(http.StatusMethodNotAllowed, Envelope{
		Success: false,
		Message: "Method not allowed",
		Error:   &ErrorBody{Code: "METHOD_NOT_ALLOWED", Detail: detail},
	})
}

// Error maps err to a status code and writes the failure envelope.
func Error(c *gin.Context, err error) {
	status, code, message := classify(err)
	body := &ErrorBody{Code: code, Detail: err.Error()}

	var r retryable
	if errors.As(err, &r) {
		body.Retryable = r.Retryable()
		if body.Retryable && status == http.StatusBadGateway {
			status = http.StatusServiceUnavailable
		}
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		body.Code = de.Code
		body.Detail = de.Message
	}

	if status >= http.StatusInternalServerError && !exposeInternal.Load() {
		body.Detail = ""
	}

	_ = c.Error(err)
	c.JSON(status, Envelope{Success: false, Message: message, Error: body})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Resource not found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Conflict"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE", "Invalid state"
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusPreconditionFailed, "PRECONDITION_FAILED", "Precondition failed"
	case errors.Is(err, domain.ErrAuth):
		return http.StatusBadGateway, "GATEWAY_AUTH_FAILED", "Payment provider rejected our credentials"
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway, "GATEWAY_ERROR", "Payment provider unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}
