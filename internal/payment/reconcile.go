package payment

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/clubops/treasury/internal/capacity"
    "github.com/clubops/treasury/internal/ledger"
    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

// SettlementAccounts names the cash accounts that receive the three
// settlement components.
type SettlementAccounts struct {
    Fee     uint64
    Deposit uint64
    Service uint64
}

// Result is the outcome of a reconciliation attempt.
type Result struct {
    Status Status `json:"status"`
    // Settled lists the components this call booked (empty on a repeat
    // call for an already-settled checkout).
    Settled   []string        `json:"settled,omitempty"`
    Promotion capacity.Result `json:"promotion"`
}

// Engine converges local settlement state with the gateway.  Reconcile
// is the single idempotent convergence point, invoked both by client
// polling and by webhook delivery; it serializes per subscription via
// the subscription row lock, so two concurrent triggers can never
// double-book a settlement.
type Engine struct {
    store       store.Store
    gw          Gateway
    ledger      *ledger.Ledger
    capacity    *capacity.Manager
    accounts    SettlementAccounts
    currency    string
    confirmWait time.Duration
}

// NewEngine wires the reconciliation engine.  confirmWait is how long
// the manual-confirm path waits between submitting a card token and
// re-fetching the checkout.
func NewEngine(s store.Store, gw Gateway, l *ledger.Ledger, c *capacity.Manager,
    accounts SettlementAccounts, currency string, confirmWait time.Duration) *Engine {
    return &Engine{
        store: s, gw: gw, ledger: l, capacity: c,
        accounts: accounts, currency: currency, confirmWait: confirmWait,
    }
}

// AccountFor maps a settlement transaction type to the cash account it
// is booked against.
func (e *Engine) AccountFor(tt model.TxType) uint64 {
    switch tt {
    case model.TxDepositHold:
        return e.accounts.Deposit
    case model.TxServiceCharge:
        return e.accounts.Service
    default:
        return e.accounts.Fee
    }
}

// CreateCheckout opens a gateway checkout for the subscription's total
// due and stores the correlation id.  Callers treat an error here as a
// deferred payment, not as a failed enrollment.
func (e *Engine) CreateCheckout(ctx context.Context, subscriptionID uint64, total decimal.Decimal) (string, error) {
    id, err := e.gw.CreateCheckout(ctx, CheckoutRequest{
        Reference: uuid.NewString(),
        Amount:    total,
        Currency:  e.currency,
    })
    if err != nil {
        return "", err
    }
    err = e.store.InTx(ctx, func(tx store.Tx) error {
        return tx.SetCheckout(ctx, subscriptionID, id)
    })
    if err != nil {
        return "", err
    }
    return id, nil
}

// Reconcile drives the subscription's checkout toward a terminal state.
//
//  1. If every applicable settlement component is already recorded the
//     call short-circuits to PAID without touching the gateway.
//  2. Otherwise the authoritative checkout state is fetched; a paid
//     checkout books the missing settlement transactions under the
//     subscription row lock and attempts promotion.
//  3. A failed or canceled checkout raises the set-once payment_failed
//     flag and returns FAILED.
//  4. An open checkout with a supplied card token submits the token
//     once, waits briefly and re-fetches.
//  5. Anything transient (network error, timeout, non-2xx) is PENDING.
func (e *Engine) Reconcile(ctx context.Context, subscriptionID uint64, clientToken string) (Result, error) {
    var checkoutID string
    alreadySettled := false
    err := e.store.InTx(ctx, func(tx store.Tx) error {
        sub, missing, err := e.missing(ctx, tx, subscriptionID)
        if err != nil {
            return err
        }
        alreadySettled = len(missing) == 0
        if sub.CheckoutID != nil {
            checkoutID = *sub.CheckoutID
        }
        return nil
    })
    if err != nil {
        return Result{Status: StatusPending}, err
    }
    if alreadySettled {
        return Result{Status: StatusPaid}, nil
    }
    if checkoutID == "" {
        // Checkout creation was deferred at enrollment time; nothing to
        // converge against yet.
        return Result{Status: StatusPending}, nil
    }

    state, err := e.gw.FetchCheckout(ctx, checkoutID)
    if err != nil {
        zap.L().Warn("checkout fetch failed, treating as pending",
            zap.Uint64("subscription_id", subscriptionID),
            zap.String("checkout_id", checkoutID),
            zap.Error(err))
        return Result{Status: StatusPending}, nil
    }

    switch state.Outcome() {
    case StatusPaid:
        return e.settle(ctx, subscriptionID, state)
    case StatusFailed:
        return e.markFailed(ctx, subscriptionID)
    }

    if clientToken == "" {
        return Result{Status: StatusPending}, nil
    }

    // Rare manual-confirm path: hand the card token to the gateway once,
    // give it a moment, then look again.
    if err := e.gw.SubmitToken(ctx, checkoutID, clientToken); err != nil {
        zap.L().Warn("token submit failed, treating as pending",
            zap.String("checkout_id", checkoutID), zap.Error(err))
        return Result{Status: StatusPending}, nil
    }
    select {
    case <-time.After(e.confirmWait):
    case <-ctx.Done():
        return Result{Status: StatusPending}, nil
    }
    state, err = e.gw.FetchCheckout(ctx, checkoutID)
    if err != nil {
        return Result{Status: StatusPending}, nil
    }
    switch state.Outcome() {
    case StatusPaid:
        return e.settle(ctx, subscriptionID, state)
    case StatusFailed:
        return e.markFailed(ctx, subscriptionID)
    }
    return Result{Status: StatusPending}, nil
}

// settle books the missing settlement transactions and attempts
// promotion, all inside one locked store transaction.
func (e *Engine) settle(ctx context.Context, subscriptionID uint64, state *CheckoutState) (Result, error) {
    res := Result{Status: StatusPaid}
    err := e.store.InTx(ctx, func(tx store.Tx) error {
        // The row lock is the serialization point between webhook and
        // poll; whichever trigger gets here second sees the settlements
        // already recorded and books nothing.
        if _, err := tx.SubscriptionForUpdate(ctx, subscriptionID); err != nil {
            return err
        }
        if gwTxID := state.SuccessfulTransactionID(); gwTxID != "" {
            wrote, err := tx.RecordGatewayTransaction(ctx, subscriptionID, gwTxID)
            if err != nil {
                return err
            }
            if !wrote {
                zap.L().Debug("gateway transaction id already recorded",
                    zap.Uint64("subscription_id", subscriptionID))
            }
        }
        _, missing, err := e.missing(ctx, tx, subscriptionID)
        if err != nil {
            return err
        }
        for _, comp := range missing {
            _, err := e.ledger.ApplyTx(ctx, tx, ledger.ApplyParams{
                Type:           comp.txType,
                AccountID:      comp.accountID,
                Amount:         comp.amount,
                SubscriptionID: &subscriptionID,
                LineItemID:     comp.lineItemID,
                Description:    comp.description,
            })
            if errors.Is(err, store.ErrDuplicateSettlement) {
                // Unique index fired under a concurrent settle; the
                // component is recorded, which is all we need.
                continue
            }
            if err != nil {
                return err
            }
            res.Settled = append(res.Settled, comp.name)
        }
        promo, err := e.capacity.AttemptPromotionTx(ctx, tx, subscriptionID)
        if err != nil {
            return err
        }
        res.Promotion = promo
        return nil
    })
    if err != nil {
        return Result{Status: StatusPending}, err
    }
    if len(res.Settled) > 0 {
        zap.L().Info("settlement recorded",
            zap.Uint64("subscription_id", subscriptionID),
            zap.Strings("components", res.Settled),
            zap.Bool("promoted", res.Promotion.Moved))
    }
    return res, nil
}

func (e *Engine) markFailed(ctx context.Context, subscriptionID uint64) (Result, error) {
    err := e.store.InTx(ctx, func(tx store.Tx) error {
        return tx.MarkPaymentFailed(ctx, subscriptionID)
    })
    if err != nil {
        return Result{Status: StatusPending}, err
    }
    return Result{Status: StatusFailed}, nil
}

// component is one amount-bearing settlement piece still owed by a
// subscription.
type component struct {
    name        string
    txType      model.TxType
    accountID   uint64
    amount      decimal.Decimal
    lineItemID  *uint64
    description string
}

// missing returns the subscription and the settlement components that
// apply but have no transaction yet.
func (e *Engine) missing(ctx context.Context, tx store.Tx, subscriptionID uint64) (*model.Subscription, []component, error) {
    sub, err := tx.Subscription(ctx, subscriptionID)
    if err != nil {
        return nil, nil, err
    }
    event, err := tx.Event(ctx, sub.EventID)
    if err != nil {
        return nil, nil, err
    }
    items, err := tx.PurchasedItems(ctx, subscriptionID)
    if err != nil {
        return nil, nil, err
    }
    txs, err := tx.TransactionsBySubscription(ctx, subscriptionID)
    if err != nil {
        return nil, nil, err
    }

    has := func(tt model.TxType, lineItemID *uint64) bool {
        for _, t := range txs {
            if t.Type != tt {
                continue
            }
            if lineItemID == nil {
                return true
            }
            if t.LineItemID != nil && *t.LineItemID == *lineItemID {
                return true
            }
        }
        return false
    }

    var missing []component
    if !event.Fee.IsZero() && !has(model.TxSubscriptionFee, nil) {
        missing = append(missing, component{
            name: "fee", txType: model.TxSubscriptionFee,
            accountID: e.accounts.Fee, amount: event.Fee,
            description: fmt.Sprintf("fee for %s", event.Name),
        })
    }
    if !event.Deposit.IsZero() && !has(model.TxDepositHold, nil) {
        missing = append(missing, component{
            name: "deposit", txType: model.TxDepositHold,
            accountID: e.accounts.Deposit, amount: event.Deposit,
            description: fmt.Sprintf("deposit for %s", event.Name),
        })
    }
    for i := range items {
        it := items[i]
        if it.Price.IsZero() || has(model.TxServiceCharge, &it.ID) {
            continue
        }
        missing = append(missing, component{
            name: "service:" + it.Name, txType: model.TxServiceCharge,
            accountID: e.accounts.Service, amount: it.Price,
            lineItemID:  &it.ID,
            description: fmt.Sprintf("%s for %s", it.Name, event.Name),
        })
    }
    return sub, missing, nil
}
