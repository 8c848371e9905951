package capacity

import (
    "context"
    "errors"
    "testing"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/ledger"
    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
    mem     *store.Memory
    mgr     *Manager
    ledger  *ledger.Ledger
    acct    uint64
    event   uint64
    intake  uint64
    main    uint64
    waiting uint64
}

// newFixture builds an event with intake, main and waiting lists.
func newFixture(t *testing.T, fee string, mainCap, waitingCap uint32) *fixture {
    t.Helper()
    ctx := context.Background()
    mem := store.NewMemory()
    f := &fixture{mem: mem, mgr: New(mem), ledger: ledger.New(mem)}
    if err := mem.InTx(ctx, func(tx store.Tx) error {
        acct := &model.Account{Name: "Cash", Status: model.AccountOpen, Balance: decimal.Zero}
        if err := tx.CreateAccount(ctx, acct); err != nil {
            return err
        }
        f.acct = acct.ID
        ev := &model.Event{Name: "Intro Camp", Fee: dec(fee), Deposit: decimal.Zero}
        if err := tx.CreateEvent(ctx, ev); err != nil {
            return err
        }
        f.event = ev.ID
        for _, l := range []*model.EnrollmentList{
            {EventID: ev.ID, Name: "Intake", Role: model.RoleIntake},
            {EventID: ev.ID, Name: "Main", Capacity: mainCap, Role: model.RoleMain},
            {EventID: ev.ID, Name: "Waiting", Capacity: waitingCap, Role: model.RoleWaiting},
        } {
            if err := tx.CreateList(ctx, l); err != nil {
                return err
            }
            switch l.Role {
            case model.RoleIntake:
                f.intake = l.ID
            case model.RoleMain:
                f.main = l.ID
            case model.RoleWaiting:
                f.waiting = l.ID
            }
        }
        return nil
    }); err != nil {
        t.Fatalf("fixture: %v", err)
    }
    return f
}

func (f *fixture) subscribe(t *testing.T, name string, listID uint64) uint64 {
    t.Helper()
    ctx := context.Background()
    s := &model.Subscription{EventID: f.event, ExternalName: &name, ListID: listID}
    if err := f.mem.InTx(ctx, func(tx store.Tx) error {
        return tx.CreateSubscription(ctx, s)
    }); err != nil {
        t.Fatalf("subscribe %s: %v", name, err)
    }
    return s.ID
}

func (f *fixture) payFee(t *testing.T, subID uint64, amount string) {
    t.Helper()
    if _, err := f.ledger.Apply(context.Background(), ledger.ApplyParams{
        Type: model.TxSubscriptionFee, AccountID: f.acct,
        Amount: dec(amount), SubscriptionID: &subID,
    }); err != nil {
        t.Fatalf("pay fee: %v", err)
    }
}

// Scenario B: capacity 1 admits exactly one subscription.
func TestAssignRespectsCapacity(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "0.00", 1, 0)
    s1 := f.subscribe(t, "Ada", f.intake)
    s2 := f.subscribe(t, "Grace", f.intake)

    if err := f.mgr.Assign(ctx, s1, f.main, AssignOptions{}); err != nil {
        t.Fatalf("assign s1: %v", err)
    }
    err := f.mgr.Assign(ctx, s2, f.main, AssignOptions{})
    if !errors.Is(err, ErrCapacityExceeded) {
        t.Fatalf("assign s2 err = %v, want ErrCapacityExceeded", err)
    }
}

func TestAssignCapacityZeroIsUnlimited(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "0.00", 1, 0)
    for _, name := range []string{"a", "b", "c", "d"} {
        id := f.subscribe(t, name, f.intake)
        if err := f.mgr.Assign(ctx, id, f.waiting, AssignOptions{}); err != nil {
            t.Fatalf("assign %s to unlimited list: %v", name, err)
        }
    }
}

func TestAssignIsReentrant(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "0.00", 1, 0)
    s1 := f.subscribe(t, "Ada", f.intake)
    if err := f.mgr.Assign(ctx, s1, f.main, AssignOptions{}); err != nil {
        t.Fatalf("first assign: %v", err)
    }
    // Re-assigning the sole occupant of a full list must not count the
    // subscription against itself.
    if err := f.mgr.Assign(ctx, s1, f.main, AssignOptions{}); err != nil {
        t.Fatalf("re-assign: %v", err)
    }
}

func TestAssignExemptSkipsCapacity(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "0.00", 1, 0)
    s1 := f.subscribe(t, "Ada", f.intake)
    s2 := f.subscribe(t, "Grace", f.intake)
    if err := f.mgr.Assign(ctx, s1, f.main, AssignOptions{}); err != nil {
        t.Fatalf("assign s1: %v", err)
    }
    if err := f.mgr.Assign(ctx, s2, f.main, AssignOptions{ExemptCapacity: true}); err != nil {
        t.Fatalf("exempt assign s2: %v", err)
    }
}

// Scenario C: unpaid stays on intake with reason not_paid; after the fee
// settles the subscription is promoted to the main list.
func TestPromotionRequiresPayment(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "20.00", 5, 0)
    sub := f.subscribe(t, "Ada", f.intake)

    res, err := f.mgr.AttemptPromotion(ctx, sub)
    if err != nil {
        t.Fatalf("attempt: %v", err)
    }
    if res.Moved || res.Reason != ReasonNotPaid {
        t.Fatalf("result = %+v, want not moved / not_paid", res)
    }

    f.payFee(t, sub, "20.00")

    res, err = f.mgr.AttemptPromotion(ctx, sub)
    if err != nil {
        t.Fatalf("attempt after payment: %v", err)
    }
    if !res.Moved || res.List != "Main" {
        t.Fatalf("result = %+v, want moved to Main", res)
    }
}

func TestPromotionPrefersMainOverWaiting(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "0.00", 1, 1)
    s1 := f.subscribe(t, "Ada", f.intake)
    s2 := f.subscribe(t, "Grace", f.intake)
    s3 := f.subscribe(t, "Edsger", f.intake)

    for i, sub := range []uint64{s1, s2} {
        res, err := f.mgr.AttemptPromotion(ctx, sub)
        if err != nil {
            t.Fatalf("attempt %d: %v", i, err)
        }
        if !res.Moved {
            t.Fatalf("attempt %d: not moved: %+v", i, res)
        }
    }
    // Free event: both lists filled main first, then waiting.
    if got := f.listOf(t, s1); got != f.main {
        t.Fatalf("s1 on list %d, want main", got)
    }
    if got := f.listOf(t, s2); got != f.waiting {
        t.Fatalf("s2 on list %d, want waiting", got)
    }
    res, err := f.mgr.AttemptPromotion(ctx, s3)
    if err != nil {
        t.Fatalf("attempt s3: %v", err)
    }
    if res.Moved || res.Reason != ReasonNoCapacity {
        t.Fatalf("s3 result = %+v, want no_capacity", res)
    }
}

func TestPromotionLeavesNonIntakeAlone(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "0.00", 5, 0)
    custom := &model.EnrollmentList{EventID: f.event, Name: "Crew", Role: model.RoleCustom}
    if err := f.mem.InTx(ctx, func(tx store.Tx) error {
        return tx.CreateList(ctx, custom)
    }); err != nil {
        t.Fatalf("create custom list: %v", err)
    }
    sub := f.subscribe(t, "Ada", custom.ID)

    res, err := f.mgr.AttemptPromotion(ctx, sub)
    if err != nil {
        t.Fatalf("attempt: %v", err)
    }
    if res.Moved || res.Reason != "" {
        t.Fatalf("result = %+v, want untouched no-op", res)
    }
    if got := f.listOf(t, sub); got != custom.ID {
        t.Fatalf("subscription moved off custom list to %d", got)
    }
}

func (f *fixture) listOf(t *testing.T, subID uint64) uint64 {
    t.Helper()
    ctx := context.Background()
    var listID uint64
    if err := f.mem.InTx(ctx, func(tx store.Tx) error {
        s, err := tx.Subscription(ctx, subID)
        if err != nil {
            return err
        }
        listID = s.ListID
        return nil
    }); err != nil {
        t.Fatalf("listOf: %v", err)
    }
    return listID
}
