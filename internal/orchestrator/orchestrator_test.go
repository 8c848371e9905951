package orchestrator

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/capacity"
    "github.com/clubops/treasury/internal/ledger"
    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/payment"
    "github.com/clubops/treasury/internal/queue"
    "github.com/clubops/treasury/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// scriptedGateway is a minimal in-memory payment.Gateway.
type scriptedGateway struct {
    state     *payment.CheckoutState
    createErr error
    creates   int
}

func (g *scriptedGateway) CreateCheckout(context.Context, payment.CheckoutRequest) (string, error) {
    g.creates++
    if g.createErr != nil {
        return "", g.createErr
    }
    return "chk_1", nil
}

func (g *scriptedGateway) FetchCheckout(context.Context, string) (*payment.CheckoutState, error) {
    return g.state, nil
}

func (g *scriptedGateway) SubmitToken(context.Context, string, string) error { return nil }

type fixture struct {
    mem       *store.Memory
    orch      *Orchestrator
    gw        *scriptedGateway
    published []queue.PaymentSettledEvent
    acct      uint64
    event     uint64
    intake    uint64
    main      uint64
}

// newFixture builds an event with a 20.00 fee, an intake list and a main
// list of the given capacity.
func newFixture(t *testing.T, fee string, mainCapacity uint32) *fixture {
    t.Helper()
    ctx := context.Background()
    mem := store.NewMemory()
    f := &fixture{mem: mem, gw: &scriptedGateway{}}
    if err := mem.InTx(ctx, func(tx store.Tx) error {
        acct := &model.Account{Name: "Treasury", Status: model.AccountOpen, Balance: decimal.Zero}
        if err := tx.CreateAccount(ctx, acct); err != nil {
            return err
        }
        f.acct = acct.ID
        ev := &model.Event{Name: "Regatta", Fee: dec(fee), Deposit: decimal.Zero, Fields: []model.FieldDef{
            {Name: "boat", Kind: model.FieldText, Required: true},
        }}
        if err := tx.CreateEvent(ctx, ev); err != nil {
            return err
        }
        f.event = ev.ID
        intake := &model.EnrollmentList{EventID: ev.ID, Name: "Intake", Role: model.RoleIntake}
        if err := tx.CreateList(ctx, intake); err != nil {
            return err
        }
        f.intake = intake.ID
        main := &model.EnrollmentList{EventID: ev.ID, Name: "Main", Capacity: mainCapacity, Role: model.RoleMain}
        if err := tx.CreateList(ctx, main); err != nil {
            return err
        }
        f.main = main.ID
        return nil
    }); err != nil {
        t.Fatalf("fixture: %v", err)
    }
    led := ledger.New(mem)
    cap := capacity.New(mem)
    eng := payment.NewEngine(mem, f.gw, led, cap, payment.SettlementAccounts{
        Fee: f.acct, Deposit: f.acct, Service: f.acct,
    }, "EUR", time.Millisecond)
    f.orch = New(mem, led, cap, eng, func(_ context.Context, ev queue.PaymentSettledEvent) error {
        f.published = append(f.published, ev)
        return nil
    })
    return f
}

func strptr(s string) *string { return &s }

func (f *fixture) enroll(t *testing.T, name string) *EnrollResult {
    t.Helper()
    res, err := f.orch.CreateSubscription(context.Background(), EnrollParams{
        EventID:      f.event,
        ExternalName: strptr(name),
        Answers:      map[string]string{"boat": "Laser"},
    })
    if err != nil {
        t.Fatalf("enroll %s: %v", name, err)
    }
    return res
}

func (f *fixture) listOf(t *testing.T, subID uint64) uint64 {
    t.Helper()
    ctx := context.Background()
    var listID uint64
    if err := f.mem.InTx(ctx, func(tx store.Tx) error {
        sub, err := tx.Subscription(ctx, subID)
        if err != nil {
            return err
        }
        listID = sub.ListID
        return nil
    }); err != nil {
        t.Fatalf("read subscription: %v", err)
    }
    return listID
}

func TestCreateSubscriptionOpensCheckout(t *testing.T) {
    f := newFixture(t, "20.00", 5)
    res := f.enroll(t, "Ada")
    if res.CheckoutID != "chk_1" {
        t.Fatalf("checkout id = %q, want chk_1", res.CheckoutID)
    }
    if res.PaymentError {
        t.Fatal("unexpected payment error")
    }
    if got := f.listOf(t, res.Subscription.ID); got != f.intake {
        t.Fatalf("new subscription on list %d, want intake %d", got, f.intake)
    }
}

func TestCreateSubscriptionRequiresExactlyOneHolder(t *testing.T) {
    f := newFixture(t, "20.00", 5)
    member := uint64(7)
    cases := []EnrollParams{
        {EventID: f.event, Answers: map[string]string{"boat": "Laser"}},
        {EventID: f.event, MemberID: &member, ExternalName: strptr("Ada"), Answers: map[string]string{"boat": "Laser"}},
    }
    for i, p := range cases {
        if _, err := f.orch.CreateSubscription(context.Background(), p); !errors.Is(err, ErrHolderRequired) {
            t.Errorf("case %d: err = %v, want ErrHolderRequired", i, err)
        }
    }
}

func TestCreateSubscriptionValidatesAnswers(t *testing.T) {
    f := newFixture(t, "20.00", 5)
    _, err := f.orch.CreateSubscription(context.Background(), EnrollParams{
        EventID:      f.event,
        ExternalName: strptr("Ada"),
        Answers:      map[string]string{},
    })
    if err == nil {
        t.Fatal("missing required answer accepted")
    }
}

func TestCreateSubscriptionDefersPaymentOnGatewayError(t *testing.T) {
    f := newFixture(t, "20.00", 5)
    f.gw.createErr = errors.New("gateway down")
    res := f.enroll(t, "Ada")
    if !res.PaymentError {
        t.Fatal("gateway failure not reported as deferred payment")
    }
    // The enrollment itself must stand.
    if got := f.listOf(t, res.Subscription.ID); got != f.intake {
        t.Fatalf("subscription on list %d, want intake %d", got, f.intake)
    }
}

func TestCreateSubscriptionFreeEventPromotesImmediately(t *testing.T) {
    f := newFixture(t, "0.00", 5)
    res := f.enroll(t, "Ada")
    if f.gw.creates != 0 {
        t.Fatal("checkout opened for a free event")
    }
    if !res.Promotion.Moved || res.Promotion.List != "Main" {
        t.Fatalf("promotion = %+v, want moved to Main", res.Promotion)
    }
}

func TestConfirmPaymentSettlesAndPublishes(t *testing.T) {
    f := newFixture(t, "20.00", 5)
    res := f.enroll(t, "Ada")
    f.gw.state = &payment.CheckoutState{
        ID: "chk_1", Status: "paid",
        Transactions: []payment.GatewayTransaction{{ID: "gwtx_1", Status: "successful"}},
    }

    out, err := f.orch.ConfirmPayment(context.Background(), res.Subscription.ID, "")
    if err != nil {
        t.Fatalf("confirm: %v", err)
    }
    if out.Status != payment.StatusPaid {
        t.Fatalf("status = %s, want PAID", out.Status)
    }
    if len(f.published) != 1 {
        t.Fatalf("published %d events, want 1", len(f.published))
    }
    ev := f.published[0]
    if ev.SubscriptionID != res.Subscription.ID || !ev.Promoted || ev.PromotedTo != "Main" {
        t.Fatalf("event = %+v", ev)
    }

    // Repeat confirms settle nothing and publish nothing.
    if _, err := f.orch.ConfirmPayment(context.Background(), res.Subscription.ID, ""); err != nil {
        t.Fatalf("second confirm: %v", err)
    }
    if len(f.published) != 1 {
        t.Fatalf("published %d events after repeat, want 1", len(f.published))
    }
}

func TestHandleWebhookResolvesCheckout(t *testing.T) {
    f := newFixture(t, "20.00", 5)
    res := f.enroll(t, "Ada")
    f.gw.state = &payment.CheckoutState{
        ID: "chk_1", Status: "paid",
        Transactions: []payment.GatewayTransaction{{ID: "gwtx_1", Status: "successful"}},
    }

    if err := f.orch.HandleWebhook(context.Background(), "chk_1"); err != nil {
        t.Fatalf("webhook: %v", err)
    }
    if got := f.listOf(t, res.Subscription.ID); got != f.main {
        t.Fatalf("subscription on list %d, want main %d", got, f.main)
    }
    if err := f.orch.HandleWebhook(context.Background(), "chk_missing"); err == nil {
        t.Fatal("unknown checkout accepted")
    }
}

func TestUpdatePaymentStatusMarkAndUnmark(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "20.00", 5)
    res := f.enroll(t, "Ada")
    executor := "treasurer"

    promo, err := f.orch.UpdatePaymentStatus(ctx, res.Subscription.ID, "fee", nil, true, &executor)
    if err != nil {
        t.Fatalf("mark paid: %v", err)
    }
    if !promo.Moved {
        t.Fatalf("promotion = %+v, want moved", promo)
    }
    // Marking paid again trips the duplicate settlement guard.
    if _, err := f.orch.UpdatePaymentStatus(ctx, res.Subscription.ID, "fee", nil, true, &executor); !errors.Is(err, store.ErrDuplicateSettlement) {
        t.Fatalf("second mark err = %v, want ErrDuplicateSettlement", err)
    }

    if _, err := f.orch.UpdatePaymentStatus(ctx, res.Subscription.ID, "fee", nil, false, &executor); err != nil {
        t.Fatalf("unmark: %v", err)
    }
    if _, err := f.orch.UpdatePaymentStatus(ctx, res.Subscription.ID, "fee", nil, false, &executor); !errors.Is(err, store.ErrTransactionNotFound) {
        t.Fatalf("second unmark err = %v, want ErrTransactionNotFound", err)
    }
}

func TestDeleteSubscriptionReversesSettlements(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "20.00", 5)
    res := f.enroll(t, "Ada")
    if _, err := f.orch.UpdatePaymentStatus(ctx, res.Subscription.ID, "fee", nil, true, nil); err != nil {
        t.Fatalf("mark paid: %v", err)
    }

    if err := f.orch.DeleteSubscription(ctx, res.Subscription.ID); err != nil {
        t.Fatalf("delete: %v", err)
    }
    if err := f.mem.InTx(ctx, func(tx store.Tx) error {
        if _, err := tx.Subscription(ctx, res.Subscription.ID); !errors.Is(err, store.ErrSubscriptionNotFound) {
            t.Fatalf("subscription still present: %v", err)
        }
        acct, err := tx.Account(ctx, f.acct)
        if err != nil {
            return err
        }
        if !acct.Balance.IsZero() {
            t.Fatalf("balance = %s after delete, want 0", acct.Balance)
        }
        return nil
    }); err != nil {
        t.Fatalf("verify: %v", err)
    }
}

func TestDeleteSubscriptionRejectedAfterReimbursement(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, "20.00", 5)
    res := f.enroll(t, "Ada")
    led := ledger.New(f.mem)
    if _, err := led.Apply(ctx, ledger.ApplyParams{
        Type: model.TxSubscriptionFee, AccountID: f.acct,
        Amount: dec("20.00"), SubscriptionID: &res.Subscription.ID,
    }); err != nil {
        t.Fatalf("apply fee: %v", err)
    }
    if _, err := led.Apply(ctx, ledger.ApplyParams{
        Type: model.TxRefundFee, AccountID: f.acct,
        Amount: dec("-20.00"), SubscriptionID: &res.Subscription.ID,
    }); err != nil {
        t.Fatalf("apply refund: %v", err)
    }

    if err := f.orch.DeleteSubscription(ctx, res.Subscription.ID); !errors.Is(err, ErrReimbursed) {
        t.Fatalf("delete err = %v, want ErrReimbursed", err)
    }
}
