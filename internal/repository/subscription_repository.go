package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

const subCols = `id, event_id, member_id, external_name, list_id, checkout_id, gateway_tx_id, payment_failed, created_at, updated_at`

func scanSubscription(row *sql.Row) (*model.Subscription, error) {
    var (
        s        model.Subscription
        memberID sql.NullInt64
        extName  sql.NullString
        checkout sql.NullString
        gwTxID   sql.NullString
    )
    err := row.Scan(&s.ID, &s.EventID, &memberID, &extName, &s.ListID,
        &checkout, &gwTxID, &s.PaymentFailed, &s.CreatedAt, &s.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, store.ErrSubscriptionNotFound
    }
    if err != nil {
        return nil, err
    }
    if memberID.Valid {
        v := uint64(memberID.Int64)
        s.MemberID = &v
    }
    if extName.Valid {
        v := extName.String
        s.ExternalName = &v
    }
    if checkout.Valid {
        v := checkout.String
        s.CheckoutID = &v
    }
    if gwTxID.Valid {
        v := gwTxID.String
        s.GatewayTxID = &v
    }
    return &s, nil
}

func (t *mysqlTx) Subscription(ctx context.Context, id uint64) (*model.Subscription, error) {
    const q = `SELECT ` + subCols + ` FROM subscriptions WHERE id = ?`
    return scanSubscription(t.tx.QueryRowContext(ctx, q, id))
}

// SubscriptionForUpdate locks the subscription row.  This lock is the
// serialization point for reconciliation: webhook and client poll both
// take it before booking settlements.
func (t *mysqlTx) SubscriptionForUpdate(ctx context.Context, id uint64) (*model.Subscription, error) {
    const q = `SELECT ` + subCols + ` FROM subscriptions WHERE id = ? FOR UPDATE`
    return scanSubscription(t.tx.QueryRowContext(ctx, q, id))
}

func (t *mysqlTx) SubscriptionByCheckout(ctx context.Context, checkoutID string) (*model.Subscription, error) {
    const q = `SELECT ` + subCols + ` FROM subscriptions WHERE checkout_id = ? LIMIT 1`
    return scanSubscription(t.tx.QueryRowContext(ctx, q, checkoutID))
}

func (t *mysqlTx) CreateSubscription(ctx context.Context, s *model.Subscription) error {
    const q = `INSERT INTO subscriptions (event_id, member_id, external_name, list_id) VALUES (?, ?, ?, ?)`
    res, err := t.tx.ExecContext(ctx, q, s.EventID, s.MemberID, s.ExternalName, s.ListID)
    if err != nil {
        return translateDup(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    s.ID = uint64(id)
    return nil
}

func (t *mysqlTx) SetSubscriptionList(ctx context.Context, subscriptionID, listID uint64) error {
    const q = `UPDATE subscriptions SET list_id = ? WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrSubscriptionNotFound, listID, subscriptionID)
}

func (t *mysqlTx) SetCheckout(ctx context.Context, subscriptionID uint64, checkoutID string) error {
    const q = `UPDATE subscriptions SET checkout_id = ? WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrSubscriptionNotFound, checkoutID, subscriptionID)
}

// RecordGatewayTransaction writes the gateway settlement transaction id
// with first-write-wins semantics: the guarded UPDATE only matches while
// the column is still NULL, so a second writer is a no-op.
func (t *mysqlTx) RecordGatewayTransaction(ctx context.Context, subscriptionID uint64, gatewayTxID string) (bool, error) {
    const q = `UPDATE subscriptions SET gateway_tx_id = ? WHERE id = ? AND gateway_tx_id IS NULL`
    res, err := t.tx.ExecContext(ctx, q, gatewayTxID, subscriptionID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

func (t *mysqlTx) MarkPaymentFailed(ctx context.Context, subscriptionID uint64) error {
    const q = `UPDATE subscriptions SET payment_failed = 1 WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrSubscriptionNotFound, subscriptionID)
}

func (t *mysqlTx) DeleteSubscription(ctx context.Context, subscriptionID uint64) error {
    const q = `DELETE FROM subscriptions WHERE id = ?`
    return t.requireRow(ctx, q, store.ErrSubscriptionNotFound, subscriptionID)
}
