package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/clubops/treasury/internal/orchestrator"
)

// WebhookHandler receives gateway notifications.  The gateway retries on
// non-2xx responses, so the handler always acks with 200 and leaves the
// actual convergence to the reconciliation engine; an unprocessable
// notification is only logged.
type WebhookHandler struct {
    Orch *orchestrator.Orchestrator
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(o *orchestrator.Orchestrator) *WebhookHandler {
    if o == nil {
        panic("nil orchestrator passed to NewWebhookHandler")
    }
    return &WebhookHandler{Orch: o}
}

// webhookPayload accepts the checkout reference under any of the key
// names the gateway has been observed to use.
type webhookPayload struct {
    CheckoutID string `json:"checkout_id"`
    ID         string `json:"id"`
    Checkout   string `json:"checkout"`
}

func (p webhookPayload) reference() string {
    if p.CheckoutID != "" {
        return p.CheckoutID
    }
    if p.ID != "" {
        return p.ID
    }
    return p.Checkout
}

// Receive handles POST /v1/webhooks/payment.
func (h *WebhookHandler) Receive(c echo.Context) error {
    var p webhookPayload
    if err := c.Bind(&p); err != nil || p.reference() == "" {
        zap.L().Warn("webhook with unusable payload")
        return c.NoContent(http.StatusOK)
    }
    if err := h.Orch.HandleWebhook(c.Request().Context(), p.reference()); err != nil {
        zap.L().Warn("webhook reconciliation failed",
            zap.String("checkout_id", p.reference()), zap.Error(err))
    }
    return c.NoContent(http.StatusOK)
}
