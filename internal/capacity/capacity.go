// Package capacity manages enrollment lists and the promotion automaton
// that moves a paid-up subscription out of its intake list into the main
// or waiting list.  Capacity checks and list moves run inside the same
// locked store transaction so two concurrent enrollments cannot both
// grab the last free seat.
package capacity

import (
    "context"
    "errors"
    "fmt"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

// ErrCapacityExceeded is returned by Assign when the target list is
// full.  The caller may pick another list; nothing has been written.
var ErrCapacityExceeded = errors.New("list capacity exceeded")

// Promotion failure reasons.
const (
    ReasonNotPaid    = "not_paid"
    ReasonNoCapacity = "no_capacity"
    ReasonError      = "error"
)

// Result describes the outcome of a promotion attempt.
type Result struct {
    Moved  bool   `json:"moved"`
    List   string `json:"list,omitempty"`
    Reason string `json:"reason,omitempty"`
}

// Manager enforces list capacity and runs the promotion automaton.
type Manager struct {
    store store.Store
}

// New returns a Manager backed by the given store.
func New(s store.Store) *Manager { return &Manager{store: s} }

// AssignOptions tweaks Assign.  ExemptCapacity skips the capacity check
// for administrative demotions into main/waiting lists.
type AssignOptions struct {
    ExemptCapacity bool
}

// Assign moves a subscription onto the target list.  The list row is
// locked for the duration of the check-and-move so the capacity read
// cannot race a concurrent assignment.
func (m *Manager) Assign(ctx context.Context, subscriptionID, listID uint64, opts AssignOptions) error {
    return m.store.InTx(ctx, func(tx store.Tx) error {
        return m.AssignTx(ctx, tx, subscriptionID, listID, opts)
    })
}

// AssignTx is Assign inside an already-open store transaction.
func (m *Manager) AssignTx(ctx context.Context, tx store.Tx, subscriptionID, listID uint64, opts AssignOptions) error {
    sub, err := tx.SubscriptionForUpdate(ctx, subscriptionID)
    if err != nil {
        return err
    }
    list, err := tx.ListForUpdate(ctx, listID)
    if err != nil {
        return err
    }
    if sub.EventID != list.EventID {
        return fmt.Errorf("subscription %d and list %d belong to different events", subscriptionID, listID)
    }
    if !opts.ExemptCapacity && list.Capacity > 0 {
        n, err := tx.CountListMembers(ctx, listID)
        if err != nil {
            return err
        }
        // Re-entrant safety: a subscription already on the target list
        // does not count against itself.
        if sub.ListID == listID {
            n--
        }
        if n >= int(list.Capacity) {
            return fmt.Errorf("%w: list %q is full (%d/%d)", ErrCapacityExceeded, list.Name, n, list.Capacity)
        }
    }
    return tx.SetSubscriptionList(ctx, subscriptionID, listID)
}

// AttemptPromotion moves a subscription off its intake list once a
// qualifying payment condition holds: any settlement transaction exists,
// or the event charges nothing at all.  The main list is tried before
// the waiting list; this priority is fixed.  Subscriptions on main,
// waiting or custom lists are left alone.
//
// No ordering is defined among multiple eligible subscriptions competing
// for the same freed seat; whichever attempt runs first wins.
func (m *Manager) AttemptPromotion(ctx context.Context, subscriptionID uint64) (Result, error) {
    var res Result
    err := m.store.InTx(ctx, func(tx store.Tx) error {
        var err error
        res, err = m.AttemptPromotionTx(ctx, tx, subscriptionID)
        return err
    })
    if err != nil && res.Reason == "" {
        res.Reason = ReasonError
    }
    return res, err
}

// AttemptPromotionTx is AttemptPromotion inside an already-open store
// transaction; the reconciliation engine calls it right after creating
// the settlement transactions.
func (m *Manager) AttemptPromotionTx(ctx context.Context, tx store.Tx, subscriptionID uint64) (Result, error) {
    sub, err := tx.SubscriptionForUpdate(ctx, subscriptionID)
    if err != nil {
        return Result{Reason: ReasonError}, err
    }
    current, err := tx.List(ctx, sub.ListID)
    if err != nil {
        return Result{Reason: ReasonError}, err
    }
    if current.Role != model.RoleIntake {
        // Already promoted, or on a custom list the automaton must not
        // touch.
        return Result{Moved: false}, nil
    }

    qualified, err := m.paymentQualifies(ctx, tx, sub)
    if err != nil {
        return Result{Reason: ReasonError}, err
    }
    if !qualified {
        return Result{Moved: false, Reason: ReasonNotPaid}, nil
    }

    for _, role := range []string{model.RoleMain, model.RoleWaiting} {
        target, err := tx.ListByRole(ctx, sub.EventID, role)
        if errors.Is(err, store.ErrListNotFound) {
            continue
        }
        if err != nil {
            return Result{Reason: ReasonError}, err
        }
        if err := m.AssignTx(ctx, tx, subscriptionID, target.ID, AssignOptions{}); err != nil {
            if errors.Is(err, ErrCapacityExceeded) {
                continue
            }
            return Result{Reason: ReasonError}, err
        }
        return Result{Moved: true, List: target.Name}, nil
    }
    return Result{Moved: false, Reason: ReasonNoCapacity}, nil
}

func (m *Manager) paymentQualifies(ctx context.Context, tx store.Tx, sub *model.Subscription) (bool, error) {
    txs, err := tx.TransactionsBySubscription(ctx, sub.ID)
    if err != nil {
        return false, err
    }
    if model.HasSettlement(txs) {
        return true, nil
    }
    event, err := tx.Event(ctx, sub.EventID)
    if err != nil {
        return false, err
    }
    items, err := tx.PurchasedItems(ctx, sub.ID)
    if err != nil {
        return false, err
    }
    return event.ChargesNothing(items), nil
}
