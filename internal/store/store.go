// Package store defines the contract between the treasury components and
// the persistence layer.  Every backend (MySQL, in-memory) must satisfy
// Store; all mutating component operations run inside a single InTx call
// so balance updates and record writes are all-or-nothing.
package store

import (
    "context"
    "errors"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/model"
)

// Sentinel errors shared across all backend implementations.
var (
    ErrAccountNotFound      = errors.New("account not found")
    ErrTransactionNotFound  = errors.New("transaction not found")
    ErrEventNotFound        = errors.New("event not found")
    ErrListNotFound         = errors.New("list not found")
    ErrSubscriptionNotFound = errors.New("subscription not found")
    ErrDuplicateName        = errors.New("name already in use")
    ErrDuplicateHolder      = errors.New("holder already subscribed to event")
    ErrDuplicateSettlement  = errors.New("settlement already recorded")
    ErrDuplicateRole        = errors.New("event already has a list with this role")
)

// Store opens atomic units of work.  Reads that need no isolation still
// go through InTx; backends are free to run them on the same connection.
type Store interface {
    InTx(ctx context.Context, fn func(tx Tx) error) error
    Close() error
}

// Tx is the set of operations available inside one unit of work.  The
// ...ForUpdate variants take a row-level lock so that capacity checks and
// reconciliation are serialized per row.
type Tx interface {
    // --- Accounts ---
    Account(ctx context.Context, id uint64) (*model.Account, error)
    AccountForUpdate(ctx context.Context, id uint64) (*model.Account, error)
    Accounts(ctx context.Context) ([]model.Account, error)
    CreateAccount(ctx context.Context, a *model.Account) error
    SetAccountBalance(ctx context.Context, id uint64, balance decimal.Decimal) error
    SetAccountStatus(ctx context.Context, id uint64, status string) error

    // --- Transactions ---
    Transaction(ctx context.Context, id uint64) (*model.Transaction, error)
    TransactionsByAccount(ctx context.Context, accountID uint64) ([]model.Transaction, error)
    TransactionsBySubscription(ctx context.Context, subscriptionID uint64) ([]model.Transaction, error)
    InsertTransaction(ctx context.Context, t *model.Transaction) error
    UpdateTransaction(ctx context.Context, t *model.Transaction) error
    DeleteTransaction(ctx context.Context, id uint64) error

    // --- Events ---
    Event(ctx context.Context, id uint64) (*model.Event, error)
    CreateEvent(ctx context.Context, e *model.Event) error
    ServiceItems(ctx context.Context, eventID uint64) ([]model.ServiceItem, error)
    CreateServiceItem(ctx context.Context, it *model.ServiceItem) error
    PurchasedItems(ctx context.Context, subscriptionID uint64) ([]model.ServiceItem, error)
    AddPurchase(ctx context.Context, subscriptionID, itemID uint64) error

    // --- Enrollment lists ---
    List(ctx context.Context, id uint64) (*model.EnrollmentList, error)
    ListForUpdate(ctx context.Context, id uint64) (*model.EnrollmentList, error)
    ListByRole(ctx context.Context, eventID uint64, role string) (*model.EnrollmentList, error)
    CountListMembers(ctx context.Context, listID uint64) (int, error)
    CreateList(ctx context.Context, l *model.EnrollmentList) error

    // --- Subscriptions ---
    Subscription(ctx context.Context, id uint64) (*model.Subscription, error)
    SubscriptionForUpdate(ctx context.Context, id uint64) (*model.Subscription, error)
    SubscriptionByCheckout(ctx context.Context, checkoutID string) (*model.Subscription, error)
    CreateSubscription(ctx context.Context, s *model.Subscription) error
    SetSubscriptionList(ctx context.Context, subscriptionID, listID uint64) error
    SetCheckout(ctx context.Context, subscriptionID uint64, checkoutID string) error
    // RecordGatewayTransaction stores the gateway's settlement transaction
    // id with first-write-wins semantics and reports whether this call
    // performed the write.
    RecordGatewayTransaction(ctx context.Context, subscriptionID uint64, gatewayTxID string) (bool, error)
    MarkPaymentFailed(ctx context.Context, subscriptionID uint64) error
    DeleteSubscription(ctx context.Context, subscriptionID uint64) error
}
