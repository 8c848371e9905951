package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/clubops/treasury/internal/capacity"
    "github.com/clubops/treasury/internal/middleware"
    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/orchestrator"
    "github.com/clubops/treasury/internal/store"
)

// EnrollmentHandler exposes the subscription lifecycle: enroll, confirm
// payment, inspect, move between lists and delete.
type EnrollmentHandler struct {
    Orch     *orchestrator.Orchestrator
    Capacity *capacity.Manager
    Store    store.Store
}

// NewEnrollmentHandler constructs an EnrollmentHandler and panics if any
// dependency is nil.
func NewEnrollmentHandler(o *orchestrator.Orchestrator, cm *capacity.Manager, s store.Store) *EnrollmentHandler {
    if o == nil || cm == nil || s == nil {
        panic("nil dependency passed to NewEnrollmentHandler")
    }
    return &EnrollmentHandler{Orch: o, Capacity: cm, Store: s}
}

type enrollRequest struct {
    MemberID     *uint64           `json:"member_id"`
    ExternalName *string           `json:"external_name"`
    ListID       *uint64           `json:"list_id"`
    ItemIDs      []uint64          `json:"item_ids"`
    Answers      map[string]string `json:"answers"`
}

// Create handles POST /v1/events/:id/subscriptions.
func (h *EnrollmentHandler) Create(c echo.Context) error {
    eventID, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req enrollRequest
    if err := c.Bind(&req); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    res, err := h.Orch.CreateSubscription(c.Request().Context(), orchestrator.EnrollParams{
        EventID:      eventID,
        MemberID:     req.MemberID,
        ExternalName: req.ExternalName,
        ListID:       req.ListID,
        ItemIDs:      req.ItemIDs,
        Answers:      req.Answers,
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}

type confirmRequest struct {
    // Token is the card token for the rare manual-confirm flow; normally
    // empty and the handler just polls the gateway.
    Token string `json:"token"`
}

// Confirm handles POST /v1/subscriptions/:id/confirm.
func (h *EnrollmentHandler) Confirm(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req confirmRequest
    if err := c.Bind(&req); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    res, err := h.Orch.ConfirmPayment(c.Request().Context(), id, req.Token)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// subscriptionDetail is the read model returned by Get: the raw record
// plus the derived payment status of each component.
type subscriptionDetail struct {
    Subscription *model.Subscription   `json:"subscription"`
    List         *model.EnrollmentList `json:"list"`
    Items        []model.ServiceItem   `json:"items"`
    Payment      model.PaymentStatus   `json:"payment"`
}

// Get handles GET /v1/subscriptions/:id.
func (h *EnrollmentHandler) Get(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    ctx := c.Request().Context()
    var det subscriptionDetail
    err = h.Store.InTx(ctx, func(tx store.Tx) error {
        sub, err := tx.Subscription(ctx, id)
        if err != nil {
            return err
        }
        event, err := tx.Event(ctx, sub.EventID)
        if err != nil {
            return err
        }
        list, err := tx.List(ctx, sub.ListID)
        if err != nil {
            return err
        }
        items, err := tx.PurchasedItems(ctx, id)
        if err != nil {
            return err
        }
        txs, err := tx.TransactionsBySubscription(ctx, id)
        if err != nil {
            return err
        }
        det = subscriptionDetail{
            Subscription: sub,
            List:         list,
            Items:        items,
            Payment:      model.ComputePaymentStatus(event, items, txs),
        }
        return nil
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, det)
}

type moveRequest struct {
    ListID uint64 `json:"list_id"`
    // ExemptCapacity lets an administrator place a subscription on a
    // full list.
    ExemptCapacity bool `json:"exempt_capacity"`
}

// Move handles PUT /v1/subscriptions/:id/list.
func (h *EnrollmentHandler) Move(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req moveRequest
    if err := c.Bind(&req); err != nil || req.ListID == 0 {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    if err := h.Capacity.Assign(c.Request().Context(), id, req.ListID,
        capacity.AssignOptions{ExemptCapacity: req.ExemptCapacity}); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

type paymentStatusRequest struct {
    Component  string  `json:"component"` // fee | deposit | service
    LineItemID *uint64 `json:"line_item_id"`
    Paid       bool    `json:"paid"`
}

// UpdatePayment handles PUT /v1/subscriptions/:id/payment, the
// administrative mark-paid / un-pay path.
func (h *EnrollmentHandler) UpdatePayment(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req paymentStatusRequest
    if err := c.Bind(&req); err != nil || req.Component == "" {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    promo, err := h.Orch.UpdatePaymentStatus(c.Request().Context(), id,
        req.Component, req.LineItemID, req.Paid, middleware.Executor(c))
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"promotion": promo})
}

// Delete handles DELETE /v1/subscriptions/:id.
func (h *EnrollmentHandler) Delete(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    if err := h.Orch.DeleteSubscription(c.Request().Context(), id); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
