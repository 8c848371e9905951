package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

// EventHandler manages events, their service items and their enrollment
// lists.
type EventHandler struct {
    Store store.Store
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(s store.Store) *EventHandler {
    if s == nil {
        panic("nil store passed to NewEventHandler")
    }
    return &EventHandler{Store: s}
}

type createEventRequest struct {
    Name    string           `json:"name"`
    Fee     decimal.Decimal  `json:"fee"`
    Deposit decimal.Decimal  `json:"deposit"`
    Fields  []model.FieldDef `json:"fields"`
}

// Create handles POST /v1/events.  Every event starts with an intake
// list so enrollments always have a landing place.
func (h *EventHandler) Create(c echo.Context) error {
    var req createEventRequest
    if err := c.Bind(&req); err != nil || req.Name == "" {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    if req.Fee.IsNegative() || req.Deposit.IsNegative() {
        return echo.NewHTTPError(http.StatusBadRequest, "fee and deposit must not be negative")
    }
    for _, f := range req.Fields {
        if f.Name == "" {
            return echo.NewHTTPError(http.StatusBadRequest, "field definitions need a name")
        }
    }
    ctx := c.Request().Context()
    event := &model.Event{Name: req.Name, Fee: req.Fee, Deposit: req.Deposit, Fields: req.Fields}
    err := h.Store.InTx(ctx, func(tx store.Tx) error {
        if err := tx.CreateEvent(ctx, event); err != nil {
            return err
        }
        return tx.CreateList(ctx, &model.EnrollmentList{
            EventID: event.ID, Name: "Intake", Role: model.RoleIntake,
        })
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, event)
}

// Get handles GET /v1/events/:id, returning the event with its service
// items.
func (h *EventHandler) Get(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    ctx := c.Request().Context()
    var (
        event *model.Event
        items []model.ServiceItem
    )
    err = h.Store.InTx(ctx, func(tx store.Tx) error {
        var err error
        if event, err = tx.Event(ctx, id); err != nil {
            return err
        }
        items, err = tx.ServiceItems(ctx, id)
        return err
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"event": event, "items": items})
}

type createItemRequest struct {
    Name  string          `json:"name"`
    Price decimal.Decimal `json:"price"`
}

// CreateItem handles POST /v1/events/:id/items.
func (h *EventHandler) CreateItem(c echo.Context) error {
    eventID, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req createItemRequest
    if err := c.Bind(&req); err != nil || req.Name == "" {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    if req.Price.IsNegative() {
        return echo.NewHTTPError(http.StatusBadRequest, "price must not be negative")
    }
    ctx := c.Request().Context()
    item := &model.ServiceItem{EventID: eventID, Name: req.Name, Price: req.Price}
    err = h.Store.InTx(ctx, func(tx store.Tx) error {
        if _, err := tx.Event(ctx, eventID); err != nil {
            return err
        }
        return tx.CreateServiceItem(ctx, item)
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, item)
}

type createListRequest struct {
    Name     string `json:"name"`
    Capacity uint32 `json:"capacity"` // 0 = unlimited
    Role     string `json:"role"`
}

// CreateList handles POST /v1/events/:id/lists.  At most one main and
// one waiting list may exist per event; the store enforces that.
func (h *EventHandler) CreateList(c echo.Context) error {
    eventID, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req createListRequest
    if err := c.Bind(&req); err != nil || req.Name == "" {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    if !model.ValidRole(req.Role) {
        return echo.NewHTTPError(http.StatusBadRequest, "unknown list role")
    }
    ctx := c.Request().Context()
    list := &model.EnrollmentList{EventID: eventID, Name: req.Name, Capacity: req.Capacity, Role: req.Role}
    err = h.Store.InTx(ctx, func(tx store.Tx) error {
        if _, err := tx.Event(ctx, eventID); err != nil {
            return err
        }
        return tx.CreateList(ctx, list)
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, list)
}
