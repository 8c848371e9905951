// Package orchestrator is the single entry point used by the HTTP layer.
// It composes the ledger, the capacity manager and the reconciliation
// engine into the enrollment and payment use cases; it holds no business
// rules of its own beyond sequencing.
package orchestrator

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/clubops/treasury/internal/capacity"
    "github.com/clubops/treasury/internal/ledger"
    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/payment"
    "github.com/clubops/treasury/internal/queue"
    "github.com/clubops/treasury/internal/store"
)

// Errors surfaced by the orchestrator itself.
var (
    ErrHolderRequired = errors.New("exactly one of member or external name is required")
    ErrReimbursed     = errors.New("subscription has reimbursed settlements")
)

// PublishFunc delivers a settlement event to the message broker.  It is
// best-effort: failures are logged and never fail the request.
type PublishFunc func(ctx context.Context, ev queue.PaymentSettledEvent) error

// Orchestrator wires the three core components together.
type Orchestrator struct {
    store    store.Store
    ledger   *ledger.Ledger
    capacity *capacity.Manager
    engine   *payment.Engine
    publish  PublishFunc
}

// New returns an Orchestrator.  publish may be nil.
func New(s store.Store, l *ledger.Ledger, c *capacity.Manager, e *payment.Engine, publish PublishFunc) *Orchestrator {
    return &Orchestrator{store: s, ledger: l, capacity: c, engine: e, publish: publish}
}

// EnrollParams describes a new subscription.
type EnrollParams struct {
    EventID      uint64
    MemberID     *uint64
    ExternalName *string
    // ListID selects an explicit target list; when nil the event's
    // intake list is used.
    ListID  *uint64
    ItemIDs []uint64
    Answers map[string]string
}

// EnrollResult reports the created subscription and what happened on the
// payment side.  PaymentError means the gateway checkout could not be
// created; the enrollment itself still succeeded and payment is
// deferred.
type EnrollResult struct {
    Subscription *model.Subscription `json:"subscription"`
    CheckoutID   string              `json:"checkout_id,omitempty"`
    PaymentError bool                `json:"payment_error,omitempty"`
    Promotion    capacity.Result     `json:"promotion"`
}

// CreateSubscription enrolls a holder for an event: validates the form
// answers, places the subscription on the intake list under the list's
// capacity lock, records purchased service items, and opens a gateway
// checkout when anything is due.  Free enrollments are promoted right
// away.
func (o *Orchestrator) CreateSubscription(ctx context.Context, p EnrollParams) (*EnrollResult, error) {
    if (p.MemberID == nil) == (p.ExternalName == nil) {
        return nil, ErrHolderRequired
    }
    var (
        sub   *model.Subscription
        total decimal.Decimal
    )
    err := o.store.InTx(ctx, func(tx store.Tx) error {
        event, err := tx.Event(ctx, p.EventID)
        if err != nil {
            return err
        }
        if err := model.ValidateAnswers(event.Fields, p.Answers); err != nil {
            return err
        }
        var target *model.EnrollmentList
        if p.ListID != nil {
            target, err = tx.List(ctx, *p.ListID)
        } else {
            target, err = tx.ListByRole(ctx, p.EventID, model.RoleIntake)
        }
        if err != nil {
            return fmt.Errorf("resolve target list: %w", err)
        }
        sub = &model.Subscription{
            EventID:      p.EventID,
            MemberID:     p.MemberID,
            ExternalName: p.ExternalName,
            ListID:       target.ID,
        }
        if err := tx.CreateSubscription(ctx, sub); err != nil {
            return err
        }
        // Re-assigning to the same list validates its capacity under the
        // list lock; the fresh subscription counts against the limit.
        if err := o.capacity.AssignTx(ctx, tx, sub.ID, target.ID, capacity.AssignOptions{}); err != nil {
            return err
        }
        items, err := tx.ServiceItems(ctx, p.EventID)
        if err != nil {
            return err
        }
        var purchased []model.ServiceItem
        for _, id := range p.ItemIDs {
            found := false
            for _, it := range items {
                if it.ID == id {
                    purchased = append(purchased, it)
                    found = true
                    break
                }
            }
            if !found {
                return fmt.Errorf("unknown service item %d for event %d", id, p.EventID)
            }
            if err := tx.AddPurchase(ctx, sub.ID, id); err != nil {
                return err
            }
        }
        total = event.TotalDue(purchased)
        return nil
    })
    if err != nil {
        return nil, err
    }

    res := &EnrollResult{Subscription: sub}
    if total.IsPositive() {
        checkoutID, err := o.engine.CreateCheckout(ctx, sub.ID, total)
        if err != nil {
            // Enrollment stands; payment is retried later.
            zap.L().Warn("checkout creation failed, payment deferred",
                zap.Uint64("subscription_id", sub.ID), zap.Error(err))
            res.PaymentError = true
            return res, nil
        }
        res.CheckoutID = checkoutID
        return res, nil
    }
    promo, err := o.capacity.AttemptPromotion(ctx, sub.ID)
    if err != nil {
        zap.L().Warn("promotion after free enrollment failed",
            zap.Uint64("subscription_id", sub.ID), zap.Error(err))
        return res, nil
    }
    res.Promotion = promo
    return res, nil
}

// ConfirmPayment is the client-initiated reconciliation path, with an
// optional card token for the rare manual-confirm flow.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, subscriptionID uint64, clientToken string) (payment.Result, error) {
    res, err := o.engine.Reconcile(ctx, subscriptionID, clientToken)
    if err != nil {
        return res, err
    }
    o.publishSettled(ctx, subscriptionID, res)
    return res, nil
}

// HandleWebhook resolves the checkout reference delivered by the
// gateway and reconciles the matching subscription.  The HTTP handler
// acks regardless of the returned error; the error exists for logging.
func (o *Orchestrator) HandleWebhook(ctx context.Context, checkoutID string) error {
    var subID uint64
    err := o.store.InTx(ctx, func(tx store.Tx) error {
        sub, err := tx.SubscriptionByCheckout(ctx, checkoutID)
        if err != nil {
            return err
        }
        subID = sub.ID
        return nil
    })
    if err != nil {
        return fmt.Errorf("resolve checkout %q: %w", checkoutID, err)
    }
    res, err := o.engine.Reconcile(ctx, subID, "")
    if err != nil {
        return err
    }
    o.publishSettled(ctx, subID, res)
    return nil
}

// UpdatePaymentStatus is the administrative mark-paid / un-pay path.
// Component is "fee", "deposit" or "service" (service requires the line
// item).  Marking paid books the settlement transaction by hand; un-pay
// reverses it.  A successful mark-paid attempts promotion.
func (o *Orchestrator) UpdatePaymentStatus(ctx context.Context, subscriptionID uint64,
    component string, lineItemID *uint64, paid bool, executor *string) (capacity.Result, error) {
    err := o.store.InTx(ctx, func(tx store.Tx) error {
        sub, err := tx.SubscriptionForUpdate(ctx, subscriptionID)
        if err != nil {
            return err
        }
        event, err := tx.Event(ctx, sub.EventID)
        if err != nil {
            return err
        }
        tt, amount, err := o.componentSpec(ctx, tx, event, subscriptionID, component, lineItemID)
        if err != nil {
            return err
        }
        if paid {
            _, err := o.ledger.ApplyTx(ctx, tx, ledger.ApplyParams{
                Type:           tt,
                AccountID:      o.engine.AccountFor(tt),
                Amount:         amount,
                SubscriptionID: &subscriptionID,
                LineItemID:     lineItemID,
                Executor:       executor,
                Description:    fmt.Sprintf("manually marked %s paid for %s", component, event.Name),
            })
            return err
        }
        // Un-pay: reverse the existing settlement transaction.
        txs, err := tx.TransactionsBySubscription(ctx, subscriptionID)
        if err != nil {
            return err
        }
        for _, t := range txs {
            if t.Type != tt {
                continue
            }
            if lineItemID != nil && (t.LineItemID == nil || *t.LineItemID != *lineItemID) {
                continue
            }
            return o.ledger.ReverseTx(ctx, tx, t.ID)
        }
        return store.ErrTransactionNotFound
    })
    if err != nil {
        return capacity.Result{}, err
    }
    if !paid {
        return capacity.Result{}, nil
    }
    return o.capacity.AttemptPromotion(ctx, subscriptionID)
}

func (o *Orchestrator) componentSpec(ctx context.Context, tx store.Tx, event *model.Event,
    subscriptionID uint64, component string, lineItemID *uint64) (model.TxType, decimal.Decimal, error) {
    switch component {
    case "fee":
        return model.TxSubscriptionFee, event.Fee, nil
    case "deposit":
        return model.TxDepositHold, event.Deposit, nil
    case "service":
        if lineItemID == nil {
            return "", decimal.Zero, fmt.Errorf("service component requires a line item")
        }
        items, err := tx.PurchasedItems(ctx, subscriptionID)
        if err != nil {
            return "", decimal.Zero, err
        }
        for _, it := range items {
            if it.ID == *lineItemID {
                return model.TxServiceCharge, it.Price, nil
            }
        }
        return "", decimal.Zero, fmt.Errorf("line item %d not purchased by subscription %d", *lineItemID, subscriptionID)
    }
    return "", decimal.Zero, fmt.Errorf("unknown payment component %q", component)
}

// DeleteSubscription removes a subscription and reverses its remaining
// settlement transactions.  It is rejected once any reimbursement has
// been applied, since that money already left an account.
func (o *Orchestrator) DeleteSubscription(ctx context.Context, subscriptionID uint64) error {
    return o.store.InTx(ctx, func(tx store.Tx) error {
        if _, err := tx.SubscriptionForUpdate(ctx, subscriptionID); err != nil {
            return err
        }
        txs, err := tx.TransactionsBySubscription(ctx, subscriptionID)
        if err != nil {
            return err
        }
        for _, t := range txs {
            switch t.Type {
            case model.TxRefundFee, model.TxRefundDeposit, model.TxRefundService:
                return ErrReimbursed
            }
        }
        for _, t := range txs {
            if err := o.ledger.ReverseTx(ctx, tx, t.ID); err != nil {
                return err
            }
        }
        return tx.DeleteSubscription(ctx, subscriptionID)
    })
}

// publishSettled emits a payment.settled event when a reconcile call
// actually booked something.
func (o *Orchestrator) publishSettled(ctx context.Context, subscriptionID uint64, res payment.Result) {
    if o.publish == nil || res.Status != payment.StatusPaid || len(res.Settled) == 0 {
        return
    }
    var sub *model.Subscription
    if err := o.store.InTx(ctx, func(tx store.Tx) error {
        s, err := tx.Subscription(ctx, subscriptionID)
        if err != nil {
            return err
        }
        sub = s
        return nil
    }); err != nil {
        zap.L().Warn("settled event lookup failed", zap.Error(err))
        return
    }
    ev := queue.PaymentSettledEvent{
        SubscriptionID: sub.ID,
        EventID:        sub.EventID,
        Components:     res.Settled,
        Promoted:       res.Promotion.Moved,
        PromotedTo:     res.Promotion.List,
        SettledAt:      time.Now().UTC().Format(time.RFC3339),
    }
    if sub.CheckoutID != nil {
        ev.CheckoutID = *sub.CheckoutID
    }
    if err := o.publish(ctx, ev); err != nil {
        zap.L().Warn("settled event publish failed", zap.Error(err))
    }
}
