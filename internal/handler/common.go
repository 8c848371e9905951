package handler // handler defines http handlers

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/clubops/treasury/internal/capacity"
    "github.com/clubops/treasury/internal/ledger"
    "github.com/clubops/treasury/internal/orchestrator"
    "github.com/clubops/treasury/internal/store"
)

// pathID parses the named path parameter as an id.
func pathID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
    }
    return id, nil
}

// fail translates component errors into HTTP responses.  Not-found
// sentinels map to 404, duplicates and state conflicts to 409, rejected
// business rules to 422.  Anything unrecognized is logged and returned
// as a bare 500.
func fail(c echo.Context, err error) error {
    switch {
    case errors.Is(err, store.ErrAccountNotFound),
        errors.Is(err, store.ErrTransactionNotFound),
        errors.Is(err, store.ErrEventNotFound),
        errors.Is(err, store.ErrListNotFound),
        errors.Is(err, store.ErrSubscriptionNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
    case errors.Is(err, store.ErrDuplicateName),
        errors.Is(err, store.ErrDuplicateHolder),
        errors.Is(err, store.ErrDuplicateSettlement),
        errors.Is(err, store.ErrDuplicateRole),
        errors.Is(err, capacity.ErrCapacityExceeded),
        errors.Is(err, orchestrator.ErrReimbursed):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    case errors.Is(err, ledger.ErrInvalidShape),
        errors.Is(err, ledger.ErrAccountClosed),
        errors.Is(err, ledger.ErrInsufficientBalance):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
    case errors.Is(err, orchestrator.ErrHolderRequired):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var he *echo.HTTPError
    if errors.As(err, &he) {
        return he
    }
    zap.L().Error("request failed", zap.String("path", c.Path()), zap.Error(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
