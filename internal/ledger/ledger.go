// Package ledger implements the financial core: applying, updating and
// reversing signed transactions against named cash accounts while
// enforcing the balance invariants.  Every operation is validated in
// full before anything is written and runs inside a single store
// transaction, so a rejected call never leaves a half-applied balance.
package ledger

import (
    "context"
    "errors"
    "fmt"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

// Errors surfaced to callers.  All are rejected before any mutation and
// are recoverable by correcting the input.
var (
    ErrInvalidShape        = errors.New("invalid transaction shape")
    ErrAccountClosed       = errors.New("account is closed")
    ErrInsufficientBalance = errors.New("insufficient balance")
)

// Ledger owns all balance mutations.  It is safe for concurrent use; the
// store serializes units of work on the touched rows.
type Ledger struct {
    store store.Store
}

// New returns a Ledger backed by the given store.
func New(s store.Store) *Ledger { return &Ledger{store: s} }

// ApplyParams describes a transaction to book.
type ApplyParams struct {
    Type           model.TxType
    AccountID      uint64
    Amount         decimal.Decimal
    SubscriptionID *uint64
    CardID         *uint64
    LineItemID     *uint64
    Executor       *string
    Description    string
}

// Apply validates and books a transaction in one atomic unit.
func (l *Ledger) Apply(ctx context.Context, p ApplyParams) (*model.Transaction, error) {
    var out *model.Transaction
    err := l.store.InTx(ctx, func(tx store.Tx) error {
        var err error
        out, err = l.ApplyTx(ctx, tx, p)
        return err
    })
    if err != nil {
        return nil, err
    }
    return out, nil
}

// ApplyTx books a transaction inside an already-open store transaction.
// The reconciliation engine uses this to settle under the subscription
// row lock it is holding.
func (l *Ledger) ApplyTx(ctx context.Context, tx store.Tx, p ApplyParams) (*model.Transaction, error) {
    if err := checkShape(p.Type, p.SubscriptionID, p.CardID, p.LineItemID); err != nil {
        return nil, err
    }
    acct, err := tx.AccountForUpdate(ctx, p.AccountID)
    if err != nil {
        return nil, err
    }
    if !acct.Open() {
        return nil, fmt.Errorf("%w: account %q", ErrAccountClosed, acct.Name)
    }
    newBalance := acct.Balance.Add(p.Amount)
    if newBalance.IsNegative() {
        return nil, fmt.Errorf("%w: account %q balance %s, amount %s",
            ErrInsufficientBalance, acct.Name, acct.Balance, p.Amount)
    }
    t := &model.Transaction{
        Type:           p.Type,
        AccountID:      p.AccountID,
        Amount:         p.Amount,
        SubscriptionID: p.SubscriptionID,
        CardID:         p.CardID,
        LineItemID:     p.LineItemID,
        Executor:       p.Executor,
        Description:    p.Description,
    }
    if err := tx.InsertTransaction(ctx, t); err != nil {
        return nil, err
    }
    if err := tx.SetAccountBalance(ctx, p.AccountID, newBalance); err != nil {
        return nil, err
    }
    return t, nil
}

// UpdateParams carries the mutable fields of an existing transaction.
// Nil fields are left unchanged.
type UpdateParams struct {
    NewAmount      *decimal.Decimal
    NewAccountID   *uint64
    NewDescription *string
}

// Update re-books an existing transaction.  When only the amount
// changes, the owning account's balance moves by the delta (new - old);
// the full amount is never re-applied.  When the account changes, the
// amount is reversed off the old account and applied to the new one, all
// inside the same unit of work.
func (l *Ledger) Update(ctx context.Context, txID uint64, p UpdateParams) (*model.Transaction, error) {
    var out *model.Transaction
    err := l.store.InTx(ctx, func(tx store.Tx) error {
        t, err := tx.Transaction(ctx, txID)
        if err != nil {
            return err
        }
        newAmount := t.Amount
        if p.NewAmount != nil {
            newAmount = *p.NewAmount
        }
        newAccountID := t.AccountID
        if p.NewAccountID != nil {
            newAccountID = *p.NewAccountID
        }

        if newAccountID != t.AccountID {
            if err := l.shiftBalance(ctx, tx, t.AccountID, t.Amount.Neg()); err != nil {
                return err
            }
            if err := l.shiftBalance(ctx, tx, newAccountID, newAmount); err != nil {
                return err
            }
        } else if !newAmount.Equal(t.Amount) {
            delta := newAmount.Sub(t.Amount)
            if err := l.shiftBalance(ctx, tx, t.AccountID, delta); err != nil {
                return err
            }
        }

        t.Amount = newAmount
        t.AccountID = newAccountID
        if p.NewDescription != nil {
            t.Description = *p.NewDescription
        }
        if err := tx.UpdateTransaction(ctx, t); err != nil {
            return err
        }
        out = t
        return nil
    })
    if err != nil {
        return nil, err
    }
    return out, nil
}

// Reverse undoes a transaction: the amount is subtracted from the owning
// account and the record is removed.  Used by delete and by un-pay
// transitions.
func (l *Ledger) Reverse(ctx context.Context, txID uint64) error {
    return l.store.InTx(ctx, func(tx store.Tx) error {
        return l.ReverseTx(ctx, tx, txID)
    })
}

// ReverseTx is Reverse inside an already-open store transaction.
func (l *Ledger) ReverseTx(ctx context.Context, tx store.Tx, txID uint64) error {
    t, err := tx.Transaction(ctx, txID)
    if err != nil {
        return err
    }
    if err := l.shiftBalance(ctx, tx, t.AccountID, t.Amount.Neg()); err != nil {
        return err
    }
    return tx.DeleteTransaction(ctx, txID)
}

// shiftBalance moves an account balance by delta, enforcing the closed
// and non-negative invariants.
func (l *Ledger) shiftBalance(ctx context.Context, tx store.Tx, accountID uint64, delta decimal.Decimal) error {
    acct, err := tx.AccountForUpdate(ctx, accountID)
    if err != nil {
        return err
    }
    if !acct.Open() {
        return fmt.Errorf("%w: account %q", ErrAccountClosed, acct.Name)
    }
    newBalance := acct.Balance.Add(delta)
    if newBalance.IsNegative() {
        return fmt.Errorf("%w: account %q balance %s, delta %s",
            ErrInsufficientBalance, acct.Name, acct.Balance, delta)
    }
    return tx.SetAccountBalance(ctx, accountID, newBalance)
}
