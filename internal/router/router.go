package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/clubops/treasury/internal/config"
	"github.com/clubops/treasury/internal/handler"
	"github.com/clubops/treasury/internal/middleware"
)

// Handlers groups everything the router needs to wire the API surface.
type Handlers struct {
	Enrollment *handler.EnrollmentHandler
	Event      *handler.EventHandler
	Treasury   *handler.TreasuryHandler
	Webhook    *handler.WebhookHandler
}

// Register wires all routes on the provided Echo instance.
//
// Three surfaces exist: unauthenticated member-facing enrollment and
// payment confirmation (rate limited), the gateway webhook, and the
// JWT-protected treasury administration endpoints.
func Register(e *echo.Echo, h Handlers, jwtSecret string, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Member-facing enrollment and payment confirmation.  These carry no
	// session; the subscription id acts as the correlation handle.
	v1 := e.Group("/v1", limiter)
	v1.POST("/events/:id/subscriptions", h.Enrollment.Create)
	v1.GET("/events/:id", h.Event.Get)
	v1.GET("/subscriptions/:id", h.Enrollment.Get)
	v1.POST("/subscriptions/:id/confirm", h.Enrollment.Confirm)

	// Gateway notifications.  No auth; the handler validates by resolving
	// the checkout reference and always acks.
	e.POST("/v1/webhooks/payment", h.Webhook.Receive)

	// Treasury administration, restricted to board-level roles.
	admin := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole("treasurer", "board"))
	admin.POST("/events", h.Event.Create)
	admin.POST("/events/:id/items", h.Event.CreateItem)
	admin.POST("/events/:id/lists", h.Event.CreateList)

	admin.PUT("/subscriptions/:id/list", h.Enrollment.Move)
	admin.PUT("/subscriptions/:id/payment", h.Enrollment.UpdatePayment)
	admin.DELETE("/subscriptions/:id", h.Enrollment.Delete)

	admin.GET("/accounts", h.Treasury.ListAccounts)
	admin.POST("/accounts", h.Treasury.CreateAccount)
	admin.PUT("/accounts/:id/status", h.Treasury.SetAccountStatus)
	admin.GET("/accounts/:id/transactions", h.Treasury.AccountTransactions)
	admin.POST("/transactions", h.Treasury.Book)
	admin.PUT("/transactions/:id", h.Treasury.UpdateTransaction)
	admin.DELETE("/transactions/:id", h.Treasury.DeleteTransaction)
}
