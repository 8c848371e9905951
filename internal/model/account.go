package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Account statuses as persisted in accounts.status.
const (
    AccountOpen   = "open"
    AccountClosed = "closed"
)

// Account is a named cash account of the organization.  Its balance is
// never written directly by callers: it equals the sum of the amounts of
// all non-deleted transactions booked against it, and it is mutated only
// through the ledger's apply/update/reverse operations.  Accounts are
// never hard-deleted; closing an account freezes its transactions.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – unique human-readable account name.
//  Status    – "open" or "closed".
//  Balance   – current balance, currency-scoped decimal.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Account struct {
    ID        uint64          `json:"id"`
    Name      string          `json:"name"`
    Status    string          `json:"status"`
    Balance   decimal.Decimal `json:"balance"`
    CreatedAt time.Time       `json:"created_at"`
    UpdatedAt time.Time       `json:"updated_at"`
}

// Open reports whether transactions may currently be booked against the
// account.
func (a *Account) Open() bool { return a.Status == AccountOpen }
