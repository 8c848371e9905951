package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

const txCols = `id, type, account_id, amount, subscription_id, card_id, line_item_id, executor, description, created_at, updated_at`

type txScanner interface {
    Scan(dest ...interface{}) error
}

func scanTransaction(row txScanner) (*model.Transaction, error) {
    var (
        t        model.Transaction
        subID    sql.NullInt64
        cardID   sql.NullInt64
        itemID   sql.NullInt64
        executor sql.NullString
    )
    err := row.Scan(&t.ID, &t.Type, &t.AccountID, &t.Amount,
        &subID, &cardID, &itemID, &executor, &t.Description,
        &t.CreatedAt, &t.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if subID.Valid {
        v := uint64(subID.Int64)
        t.SubscriptionID = &v
    }
    if cardID.Valid {
        v := uint64(cardID.Int64)
        t.CardID = &v
    }
    if itemID.Valid {
        v := uint64(itemID.Int64)
        t.LineItemID = &v
    }
    if executor.Valid {
        v := executor.String
        t.Executor = &v
    }
    return &t, nil
}

func (t *mysqlTx) Transaction(ctx context.Context, id uint64) (*model.Transaction, error) {
    const q = `SELECT ` + txCols + ` FROM transactions WHERE id = ?`
    out, err := scanTransaction(t.tx.QueryRowContext(ctx, q, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, store.ErrTransactionNotFound
    }
    return out, err
}

func (t *mysqlTx) TransactionsByAccount(ctx context.Context, accountID uint64) ([]model.Transaction, error) {
    const q = `SELECT ` + txCols + ` FROM transactions WHERE account_id = ? ORDER BY id`
    return t.queryTransactions(ctx, q, accountID)
}

func (t *mysqlTx) TransactionsBySubscription(ctx context.Context, subscriptionID uint64) ([]model.Transaction, error) {
    const q = `SELECT ` + txCols + ` FROM transactions WHERE subscription_id = ? ORDER BY id`
    return t.queryTransactions(ctx, q, subscriptionID)
}

func (t *mysqlTx) queryTransactions(ctx context.Context, q string, arg interface{}) ([]model.Transaction, error) {
    rows, err := t.tx.QueryContext(ctx, q, arg)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Transaction, 0)
    for rows.Next() {
        tr, err := scanTransaction(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *tr)
    }
    return out, rows.Err()
}

// InsertTransaction books a new transaction row.  A violation of the
// uniq_settlement index surfaces as store.ErrDuplicateSettlement; the
// reconciliation engine relies on that to fail closed under races.
func (t *mysqlTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
    const q = `INSERT INTO transactions
        (type, account_id, amount, subscription_id, card_id, line_item_id, executor, description)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := t.tx.ExecContext(ctx, q, tr.Type, tr.AccountID, tr.Amount,
        tr.SubscriptionID, tr.CardID, tr.LineItemID, tr.Executor, tr.Description)
    if err != nil {
        return translateDup(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    tr.ID = uint64(id)
    return nil
}

func (t *mysqlTx) UpdateTransaction(ctx context.Context, tr *model.Transaction) error {
    const q = `UPDATE transactions SET account_id = ?, amount = ?, description = ? WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrTransactionNotFound, tr.AccountID, tr.Amount, tr.Description, tr.ID)
}

func (t *mysqlTx) DeleteTransaction(ctx context.Context, id uint64) error {
    const q = `DELETE FROM transactions WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrTransactionNotFound, id)
}
