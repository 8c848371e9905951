package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

const listCols = `id, event_id, name, capacity, role, created_at`

func scanList(row *sql.Row) (*model.EnrollmentList, error) {
    var l model.EnrollmentList
    err := row.Scan(&l.ID, &l.EventID, &l.Name, &l.Capacity, &l.Role, &l.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, store.ErrListNotFound
    }
    if err != nil {
        return nil, err
    }
    return &l, nil
}

func (t *mysqlTx) List(ctx context.Context, id uint64) (*model.EnrollmentList, error) {
    const q = `SELECT ` + listCols + ` FROM enrollment_lists WHERE id = ?`
    return scanList(t.tx.QueryRowContext(ctx, q, id))
}

// ListForUpdate locks the list row; the capacity manager holds this lock
// across its count-and-move so two enrollments cannot both take the last
// free place.
func (t *mysqlTx) ListForUpdate(ctx context.Context, id uint64) (*model.EnrollmentList, error) {
    const q = `SELECT ` + listCols + ` FROM enrollment_lists WHERE id = ? FOR UPDATE`
    return scanList(t.tx.QueryRowContext(ctx, q, id))
}

func (t *mysqlTx) ListByRole(ctx context.Context, eventID uint64, role string) (*model.EnrollmentList, error) {
    const q = `SELECT ` + listCols + ` FROM enrollment_lists WHERE event_id = ? AND role = ? LIMIT 1`
    return scanList(t.tx.QueryRowContext(ctx, q, eventID, role))
}

func (t *mysqlTx) CountListMembers(ctx context.Context, listID uint64) (int, error) {
    const q = `SELECT COUNT(*) FROM subscriptions WHERE list_id = ?`
    var n int
    if err := t.tx.QueryRowContext(ctx, q, listID).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

func (t *mysqlTx) CreateList(ctx context.Context, l *model.EnrollmentList) error {
    const q = `INSERT INTO enrollment_lists (event_id, name, capacity, role) VALUES (?, ?, ?, ?)`
    res, err := t.tx.ExecContext(ctx, q, l.EventID, l.Name, l.Capacity, l.Role)
    if err != nil {
        return translateDup(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    l.ID = uint64(id)
    return nil
}
