package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

// Event loads an event including its dynamic form field definitions,
// which are stored as a JSON document in fields_json.
func (t *mysqlTx) Event(ctx context.Context, id uint64) (*model.Event, error) {
    const q = `SELECT id, name, fee, deposit, fields_json, created_at FROM events WHERE id = ?`
    var (
        e      model.Event
        fields sql.NullString
    )
    err := t.tx.QueryRowContext(ctx, q, id).Scan(&e.ID, &e.Name, &e.Fee, &e.Deposit, &fields, &e.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, store.ErrEventNotFound
    }
    if err != nil {
        return nil, err
    }
    if fields.Valid && fields.String != "" {
        if err := json.Unmarshal([]byte(fields.String), &e.Fields); err != nil {
            return nil, err
        }
    }
    return &e, nil
}

func (t *mysqlTx) CreateEvent(ctx context.Context, e *model.Event) error {
    var fields interface{}
    if len(e.Fields) > 0 {
        raw, err := json.Marshal(e.Fields)
        if err != nil {
            return err
        }
        fields = string(raw)
    }
    const q = `INSERT INTO events (name, fee, deposit, fields_json) VALUES (?, ?, ?, ?)`
    res, err := t.tx.ExecContext(ctx, q, e.Name, e.Fee, e.Deposit, fields)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    e.ID = uint64(id)
    return nil
}

func (t *mysqlTx) ServiceItems(ctx context.Context, eventID uint64) ([]model.ServiceItem, error) {
    const q = `SELECT id, event_id, name, price FROM service_items WHERE event_id = ? ORDER BY id`
    return t.queryItems(ctx, q, eventID)
}

func (t *mysqlTx) CreateServiceItem(ctx context.Context, it *model.ServiceItem) error {
    const q = `INSERT INTO service_items (event_id, name, price) VALUES (?, ?, ?)`
    res, err := t.tx.ExecContext(ctx, q, it.EventID, it.Name, it.Price)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    it.ID = uint64(id)
    return nil
}

func (t *mysqlTx) PurchasedItems(ctx context.Context, subscriptionID uint64) ([]model.ServiceItem, error) {
    const q = `SELECT si.id, si.event_id, si.name, si.price
               FROM purchases p
               JOIN service_items si ON si.id = p.item_id
               WHERE p.subscription_id = ?
               ORDER BY si.id`
    return t.queryItems(ctx, q, subscriptionID)
}

func (t *mysqlTx) AddPurchase(ctx context.Context, subscriptionID, itemID uint64) error {
    const q = `INSERT IGNORE INTO purchases (subscription_id, item_id) VALUES (?, ?)`
    _, err := t.tx.ExecContext(ctx, q, subscriptionID, itemID)
    return err
}

func (t *mysqlTx) queryItems(ctx context.Context, q string, arg interface{}) ([]model.ServiceItem, error) {
    rows, err := t.tx.QueryContext(ctx, q, arg)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.ServiceItem, 0)
    for rows.Next() {
        var it model.ServiceItem
        if err := rows.Scan(&it.ID, &it.EventID, &it.Name, &it.Price); err != nil {
            return nil, err
        }
        out = append(out, it)
    }
    return out, rows.Err()
}
