package store

import (
    "context"
    "sync"
    "time"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/model"
)

// Memory is an in-process Store used by component tests and by the
// server's memory backend.  A single mutex serializes units of work, which
// gives the same effective isolation the MySQL backend gets from row
// locks.  On error the pre-transaction state is restored so the
// all-or-nothing contract holds.
type Memory struct {
    mu        sync.Mutex
    accounts  map[uint64]model.Account
    txs       map[uint64]model.Transaction
    events    map[uint64]model.Event
    items     map[uint64]model.ServiceItem
    purchases map[uint64][]uint64
    lists     map[uint64]model.EnrollmentList
    subs      map[uint64]model.Subscription
    nextID    uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
    return &Memory{
        accounts:  map[uint64]model.Account{},
        txs:       map[uint64]model.Transaction{},
        events:    map[uint64]model.Event{},
        items:     map[uint64]model.ServiceItem{},
        purchases: map[uint64][]uint64{},
        lists:     map[uint64]model.EnrollmentList{},
        subs:      map[uint64]model.Subscription{},
    }
}

func (m *Memory) Close() error { return nil }

// InTx runs fn under the store mutex and rolls the state back when fn
// returns an error.
func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    snap := m.snapshot()
    if err := fn(&memTx{m}); err != nil {
        m.restore(snap)
        return err
    }
    return nil
}

type memState struct {
    accounts  map[uint64]model.Account
    txs       map[uint64]model.Transaction
    events    map[uint64]model.Event
    items     map[uint64]model.ServiceItem
    purchases map[uint64][]uint64
    lists     map[uint64]model.EnrollmentList
    subs      map[uint64]model.Subscription
    nextID    uint64
}

func (m *Memory) snapshot() memState {
    s := memState{
        accounts:  make(map[uint64]model.Account, len(m.accounts)),
        txs:       make(map[uint64]model.Transaction, len(m.txs)),
        events:    make(map[uint64]model.Event, len(m.events)),
        items:     make(map[uint64]model.ServiceItem, len(m.items)),
        purchases: make(map[uint64][]uint64, len(m.purchases)),
        lists:     make(map[uint64]model.EnrollmentList, len(m.lists)),
        subs:      make(map[uint64]model.Subscription, len(m.subs)),
        nextID:    m.nextID,
    }
    for k, v := range m.accounts {
        s.accounts[k] = v
    }
    for k, v := range m.txs {
        s.txs[k] = v
    }
    for k, v := range m.events {
        s.events[k] = v
    }
    for k, v := range m.items {
        s.items[k] = v
    }
    for k, v := range m.purchases {
        s.purchases[k] = append([]uint64(nil), v...)
    }
    for k, v := range m.lists {
        s.lists[k] = v
    }
    for k, v := range m.subs {
        s.subs[k] = v
    }
    return s
}

func (m *Memory) restore(s memState) {
    m.accounts = s.accounts
    m.txs = s.txs
    m.events = s.events
    m.items = s.items
    m.purchases = s.purchases
    m.lists = s.lists
    m.subs = s.subs
    m.nextID = s.nextID
}

func (m *Memory) id() uint64 {
    m.nextID++
    return m.nextID
}

// memTx implements Tx with direct map access; the store mutex is already
// held for the duration of the unit of work.
type memTx struct{ m *Memory }

func (t *memTx) Account(_ context.Context, id uint64) (*model.Account, error) {
    a, ok := t.m.accounts[id]
    if !ok {
        return nil, ErrAccountNotFound
    }
    return &a, nil
}

func (t *memTx) AccountForUpdate(ctx context.Context, id uint64) (*model.Account, error) {
    return t.Account(ctx, id)
}

func (t *memTx) Accounts(_ context.Context) ([]model.Account, error) {
    out := make([]model.Account, 0, len(t.m.accounts))
    for _, a := range t.m.accounts {
        out = append(out, a)
    }
    return out, nil
}

func (t *memTx) CreateAccount(_ context.Context, a *model.Account) error {
    for _, ex := range t.m.accounts {
        if ex.Name == a.Name {
            return ErrDuplicateName
        }
    }
    a.ID = t.m.id()
    a.CreatedAt = time.Now().UTC()
    a.UpdatedAt = a.CreatedAt
    t.m.accounts[a.ID] = *a
    return nil
}

func (t *memTx) SetAccountBalance(_ context.Context, id uint64, balance decimal.Decimal) error {
    a, ok := t.m.accounts[id]
    if !ok {
        return ErrAccountNotFound
    }
    a.Balance = balance
    a.UpdatedAt = time.Now().UTC()
    t.m.accounts[id] = a
    return nil
}

func (t *memTx) SetAccountStatus(_ context.Context, id uint64, status string) error {
    a, ok := t.m.accounts[id]
    if !ok {
        return ErrAccountNotFound
    }
    a.Status = status
    a.UpdatedAt = time.Now().UTC()
    t.m.accounts[id] = a
    return nil
}

func (t *memTx) Transaction(_ context.Context, id uint64) (*model.Transaction, error) {
    tr, ok := t.m.txs[id]
    if !ok {
        return nil, ErrTransactionNotFound
    }
    return &tr, nil
}

func (t *memTx) TransactionsByAccount(_ context.Context, accountID uint64) ([]model.Transaction, error) {
    var out []model.Transaction
    for _, tr := range t.m.txs {
        if tr.AccountID == accountID {
            out = append(out, tr)
        }
    }
    return out, nil
}

func (t *memTx) TransactionsBySubscription(_ context.Context, subscriptionID uint64) ([]model.Transaction, error) {
    var out []model.Transaction
    for _, tr := range t.m.txs {
        if tr.SubscriptionID != nil && *tr.SubscriptionID == subscriptionID {
            out = append(out, tr)
        }
    }
    return out, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
    // Mirror the MySQL unique settlement index so duplicate settlement
    // inserts fail closed here as well.
    if tr.SubscriptionID != nil {
        for _, ex := range t.m.txs {
            if ex.SubscriptionID == nil || *ex.SubscriptionID != *tr.SubscriptionID || ex.Type != tr.Type {
                continue
            }
            switch tr.Type {
            case model.TxSubscriptionFee, model.TxDepositHold:
                return ErrDuplicateSettlement
            case model.TxServiceCharge:
                if ex.LineItemID != nil && tr.LineItemID != nil && *ex.LineItemID == *tr.LineItemID {
                    return ErrDuplicateSettlement
                }
            }
        }
    }
    tr.ID = t.m.id()
    tr.CreatedAt = time.Now().UTC()
    tr.UpdatedAt = tr.CreatedAt
    t.m.txs[tr.ID] = *tr
    return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, tr *model.Transaction) error {
    if _, ok := t.m.txs[tr.ID]; !ok {
        return ErrTransactionNotFound
    }
    tr.UpdatedAt = time.Now().UTC()
    t.m.txs[tr.ID] = *tr
    return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, id uint64) error {
    if _, ok := t.m.txs[id]; !ok {
        return ErrTransactionNotFound
    }
    delete(t.m.txs, id)
    return nil
}

func (t *memTx) Event(_ context.Context, id uint64) (*model.Event, error) {
    e, ok := t.m.events[id]
    if !ok {
        return nil, ErrEventNotFound
    }
    return &e, nil
}

func (t *memTx) CreateEvent(_ context.Context, e *model.Event) error {
    e.ID = t.m.id()
    e.CreatedAt = time.Now().UTC()
    t.m.events[e.ID] = *e
    return nil
}

func (t *memTx) ServiceItems(_ context.Context, eventID uint64) ([]model.ServiceItem, error) {
    var out []model.ServiceItem
    for _, it := range t.m.items {
        if it.EventID == eventID {
            out = append(out, it)
        }
    }
    return out, nil
}

func (t *memTx) CreateServiceItem(_ context.Context, it *model.ServiceItem) error {
    it.ID = t.m.id()
    t.m.items[it.ID] = *it
    return nil
}

func (t *memTx) PurchasedItems(_ context.Context, subscriptionID uint64) ([]model.ServiceItem, error) {
    var out []model.ServiceItem
    for _, id := range t.m.purchases[subscriptionID] {
        if it, ok := t.m.items[id]; ok {
            out = append(out, it)
        }
    }
    return out, nil
}

func (t *memTx) AddPurchase(_ context.Context, subscriptionID, itemID uint64) error {
    t.m.purchases[subscriptionID] = append(t.m.purchases[subscriptionID], itemID)
    return nil
}

func (t *memTx) List(_ context.Context, id uint64) (*model.EnrollmentList, error) {
    l, ok := t.m.lists[id]
    if !ok {
        return nil, ErrListNotFound
    }
    return &l, nil
}

func (t *memTx) ListForUpdate(ctx context.Context, id uint64) (*model.EnrollmentList, error) {
    return t.List(ctx, id)
}

func (t *memTx) ListByRole(_ context.Context, eventID uint64, role string) (*model.EnrollmentList, error) {
    for _, l := range t.m.lists {
        if l.EventID == eventID && l.Role == role {
            return &l, nil
        }
    }
    return nil, ErrListNotFound
}

func (t *memTx) CountListMembers(_ context.Context, listID uint64) (int, error) {
    n := 0
    for _, s := range t.m.subs {
        if s.ListID == listID {
            n++
        }
    }
    return n, nil
}

func (t *memTx) CreateList(_ context.Context, l *model.EnrollmentList) error {
    if l.Role == model.RoleMain || l.Role == model.RoleWaiting {
        for _, ex := range t.m.lists {
            if ex.EventID == l.EventID && ex.Role == l.Role {
                return ErrDuplicateRole
            }
        }
    }
    l.ID = t.m.id()
    l.CreatedAt = time.Now().UTC()
    t.m.lists[l.ID] = *l
    return nil
}

func (t *memTx) Subscription(_ context.Context, id uint64) (*model.Subscription, error) {
    s, ok := t.m.subs[id]
    if !ok {
        return nil, ErrSubscriptionNotFound
    }
    return &s, nil
}

func (t *memTx) SubscriptionForUpdate(ctx context.Context, id uint64) (*model.Subscription, error) {
    return t.Subscription(ctx, id)
}

func (t *memTx) SubscriptionByCheckout(_ context.Context, checkoutID string) (*model.Subscription, error) {
    for _, s := range t.m.subs {
        if s.CheckoutID != nil && *s.CheckoutID == checkoutID {
            sub := s
            return &sub, nil
        }
    }
    return nil, ErrSubscriptionNotFound
}

func (t *memTx) CreateSubscription(_ context.Context, s *model.Subscription) error {
    for _, ex := range t.m.subs {
        if ex.EventID != s.EventID {
            continue
        }
        if s.MemberID != nil && ex.MemberID != nil && *ex.MemberID == *s.MemberID {
            return ErrDuplicateHolder
        }
        if s.ExternalName != nil && ex.ExternalName != nil && *ex.ExternalName == *s.ExternalName {
            return ErrDuplicateHolder
        }
    }
    s.ID = t.m.id()
    s.CreatedAt = time.Now().UTC()
    s.UpdatedAt = s.CreatedAt
    t.m.subs[s.ID] = *s
    return nil
}

func (t *memTx) SetSubscriptionList(_ context.Context, subscriptionID, listID uint64) error {
    s, ok := t.m.subs[subscriptionID]
    if !ok {
        return ErrSubscriptionNotFound
    }
    s.ListID = listID
    s.UpdatedAt = time.Now().UTC()
    t.m.subs[subscriptionID] = s
    return nil
}

func (t *memTx) SetCheckout(_ context.Context, subscriptionID uint64, checkoutID string) error {
    s, ok := t.m.subs[subscriptionID]
    if !ok {
        return ErrSubscriptionNotFound
    }
    s.CheckoutID = &checkoutID
    s.UpdatedAt = time.Now().UTC()
    t.m.subs[subscriptionID] = s
    return nil
}

func (t *memTx) RecordGatewayTransaction(_ context.Context, subscriptionID uint64, gatewayTxID string) (bool, error) {
    s, ok := t.m.subs[subscriptionID]
    if !ok {
        return false, ErrSubscriptionNotFound
    }
    if s.GatewayTxID != nil {
        return false, nil
    }
    s.GatewayTxID = &gatewayTxID
    s.UpdatedAt = time.Now().UTC()
    t.m.subs[subscriptionID] = s
    return true, nil
}

func (t *memTx) MarkPaymentFailed(_ context.Context, subscriptionID uint64) error {
    s, ok := t.m.subs[subscriptionID]
    if !ok {
        return ErrSubscriptionNotFound
    }
    if !s.PaymentFailed {
        s.PaymentFailed = true
        s.UpdatedAt = time.Now().UTC()
        t.m.subs[subscriptionID] = s
    }
    return nil
}

func (t *memTx) DeleteSubscription(_ context.Context, subscriptionID uint64) error {
    if _, ok := t.m.subs[subscriptionID]; !ok {
        return ErrSubscriptionNotFound
    }
    delete(t.m.subs, subscriptionID)
    delete(t.m.purchases, subscriptionID)
    return nil
}
