package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/common/response"
)

// RegisterFallbacks answers unknown routes and methods with the standard
// error envelope.
func RegisterFallbacks(r *gin.Engine) {
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		response.Error(c, domain.NewNotFoundError("Route", c.Request.URL.Path))
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c, c.Request.Method+" is not supported on "+c.Request.URL.Path)
	})
}
