package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/ledger"
    "github.com/clubops/treasury/internal/middleware"
    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

// TreasuryHandler exposes the treasurer's administrative surface:
// accounts, manual ledger transactions and transaction corrections.
type TreasuryHandler struct {
    Store  store.Store
    Ledger *ledger.Ledger
}

// NewTreasuryHandler constructs a TreasuryHandler and panics if any
// dependency is nil.
func NewTreasuryHandler(s store.Store, l *ledger.Ledger) *TreasuryHandler {
    if s == nil || l == nil {
        panic("nil dependency passed to NewTreasuryHandler")
    }
    return &TreasuryHandler{Store: s, Ledger: l}
}

// ListAccounts handles GET /v1/accounts.
func (h *TreasuryHandler) ListAccounts(c echo.Context) error {
    ctx := c.Request().Context()
    var accounts []model.Account
    err := h.Store.InTx(ctx, func(tx store.Tx) error {
        var err error
        accounts, err = tx.Accounts(ctx)
        return err
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, accounts)
}

type createAccountRequest struct {
    Name string `json:"name"`
}

// CreateAccount handles POST /v1/accounts.  New accounts open with a
// zero balance; balances only ever move through the ledger.
func (h *TreasuryHandler) CreateAccount(c echo.Context) error {
    var req createAccountRequest
    if err := c.Bind(&req); err != nil || req.Name == "" {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    ctx := c.Request().Context()
    acct := &model.Account{Name: req.Name, Status: model.AccountOpen, Balance: decimal.Zero}
    err := h.Store.InTx(ctx, func(tx store.Tx) error {
        return tx.CreateAccount(ctx, acct)
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, acct)
}

type accountStatusRequest struct {
    Status string `json:"status"` // open | closed
}

// SetAccountStatus handles PUT /v1/accounts/:id/status.  Accounts are
// never deleted; closing one freezes its transactions.
func (h *TreasuryHandler) SetAccountStatus(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req accountStatusRequest
    if err := c.Bind(&req); err != nil ||
        (req.Status != model.AccountOpen && req.Status != model.AccountClosed) {
        return echo.NewHTTPError(http.StatusBadRequest, "status must be open or closed")
    }
    ctx := c.Request().Context()
    err = h.Store.InTx(ctx, func(tx store.Tx) error {
        return tx.SetAccountStatus(ctx, id, req.Status)
    })
    if err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// AccountTransactions handles GET /v1/accounts/:id/transactions.
func (h *TreasuryHandler) AccountTransactions(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    ctx := c.Request().Context()
    var txs []model.Transaction
    err = h.Store.InTx(ctx, func(tx store.Tx) error {
        if _, err := tx.Account(ctx, id); err != nil {
            return err
        }
        var err error
        txs, err = tx.TransactionsByAccount(ctx, id)
        return err
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, txs)
}

type bookRequest struct {
    Type           model.TxType    `json:"type"`
    AccountID      uint64          `json:"account_id"`
    Amount         decimal.Decimal `json:"amount"`
    SubscriptionID *uint64         `json:"subscription_id"`
    CardID         *uint64         `json:"card_id"`
    LineItemID     *uint64         `json:"line_item_id"`
    Description    string          `json:"description"`
}

// Book handles POST /v1/transactions: the manual booking path for
// deposits, withdrawals, reimbursements and card issuance.  The
// authenticated subject is recorded as the executor.
func (h *TreasuryHandler) Book(c echo.Context) error {
    var req bookRequest
    if err := c.Bind(&req); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    if !req.Type.Valid() {
        return echo.NewHTTPError(http.StatusBadRequest, "unknown transaction type")
    }
    t, err := h.Ledger.Apply(c.Request().Context(), ledger.ApplyParams{
        Type:           req.Type,
        AccountID:      req.AccountID,
        Amount:         req.Amount,
        SubscriptionID: req.SubscriptionID,
        CardID:         req.CardID,
        LineItemID:     req.LineItemID,
        Executor:       middleware.Executor(c),
        Description:    req.Description,
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, t)
}

type updateTransactionRequest struct {
    Amount      *decimal.Decimal `json:"amount"`
    AccountID   *uint64          `json:"account_id"`
    Description *string          `json:"description"`
}

// UpdateTransaction handles PUT /v1/transactions/:id.  Amount changes
// move the account balance by the delta only.
func (h *TreasuryHandler) UpdateTransaction(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    var req updateTransactionRequest
    if err := c.Bind(&req); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    t, err := h.Ledger.Update(c.Request().Context(), id, ledger.UpdateParams{
        NewAmount:      req.Amount,
        NewAccountID:   req.AccountID,
        NewDescription: req.Description,
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, t)
}

// DeleteTransaction handles DELETE /v1/transactions/:id by reversing the
// booking.
func (h *TreasuryHandler) DeleteTransaction(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return err
    }
    if err := h.Ledger.Reverse(c.Request().Context(), id); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
