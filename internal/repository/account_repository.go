package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

const accountCols = `id, name, status, balance, created_at, updated_at`

func scanAccount(row *sql.Row) (*model.Account, error) {
    var a model.Account
    err := row.Scan(&a.ID, &a.Name, &a.Status, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, store.ErrAccountNotFound
    }
    if err != nil {
        return nil, err
    }
    return &a, nil
}

func (t *mysqlTx) Account(ctx context.Context, id uint64) (*model.Account, error) {
    const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = ?`
    return scanAccount(t.tx.QueryRowContext(ctx, q, id))
}

// AccountForUpdate locks the account row for the rest of the
// transaction so balance read-modify-write cannot race.
func (t *mysqlTx) AccountForUpdate(ctx context.Context, id uint64) (*model.Account, error) {
    const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = ? FOR UPDATE`
    return scanAccount(t.tx.QueryRowContext(ctx, q, id))
}

func (t *mysqlTx) Accounts(ctx context.Context) ([]model.Account, error) {
    const q = `SELECT ` + accountCols + ` FROM accounts ORDER BY id`
    rows, err := t.tx.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Account, 0)
    for rows.Next() {
        var a model.Account
        if err := rows.Scan(&a.ID, &a.Name, &a.Status, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, a)
    }
    return out, rows.Err()
}

func (t *mysqlTx) CreateAccount(ctx context.Context, a *model.Account) error {
    const q = `INSERT INTO accounts (name, status, balance) VALUES (?, ?, ?)`
    res, err := t.tx.ExecContext(ctx, q, a.Name, a.Status, a.Balance)
    if err != nil {
        return translateDup(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    a.ID = uint64(id)
    return nil
}

func (t *mysqlTx) SetAccountBalance(ctx context.Context, id uint64, balance decimal.Decimal) error {
    const q = `UPDATE accounts SET balance = ? WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrAccountNotFound, balance, id)
}

func (t *mysqlTx) SetAccountStatus(ctx context.Context, id uint64, status string) error {
    const q = `UPDATE accounts SET status = ? WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrAccountNotFound, status, id)
}

// requireRow runs an UPDATE/DELETE and maps "zero rows matched" to the
// given sentinel.  The connection must be opened with clientFoundRows=true
// so that rewriting an identical value still counts as a match.
func (t *mysqlTx) requireRow(ctx context.Context, q string, notFound error, args ...interface{}) error {
    res, err := t.tx.ExecContext(ctx, q, args...)
    if err != nil {
        return translateDup(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return notFound
    }
    return nil
}
