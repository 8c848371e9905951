package ledger

import (
    "context"
    "errors"
    "testing"

    "github.com/shopspring/decimal"

    "github.com/clubops/treasury/internal/model"
    "github.com/clubops/treasury/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Memory, uint64) {
    t.Helper()
    mem := store.NewMemory()
    acct := &model.Account{Name: "Cash", Status: model.AccountOpen, Balance: decimal.Zero}
    if err := mem.InTx(context.Background(), func(tx store.Tx) error {
        return tx.CreateAccount(context.Background(), acct)
    }); err != nil {
        t.Fatalf("create account: %v", err)
    }
    return New(mem), mem, acct.ID
}

func balance(t *testing.T, mem *store.Memory, accountID uint64) decimal.Decimal {
    t.Helper()
    var b decimal.Decimal
    if err := mem.InTx(context.Background(), func(tx store.Tx) error {
        a, err := tx.Account(context.Background(), accountID)
        if err != nil {
            return err
        }
        b = a.Balance
        return nil
    }); err != nil {
        t.Fatalf("read balance: %v", err)
    }
    return b
}

func txSum(t *testing.T, mem *store.Memory, accountID uint64) decimal.Decimal {
    t.Helper()
    sum := decimal.Zero
    if err := mem.InTx(context.Background(), func(tx store.Tx) error {
        txs, err := tx.TransactionsByAccount(context.Background(), accountID)
        if err != nil {
            return err
        }
        for _, tr := range txs {
            sum = sum.Add(tr.Amount)
        }
        return nil
    }); err != nil {
        t.Fatalf("sum transactions: %v", err)
    }
    return sum
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Scenario A from the treasury requirements: 100.00 +15.00 -15.00.
func TestApplyDepositThenWithdrawal(t *testing.T) {
    ctx := context.Background()
    l, mem, acct := newTestLedger(t)

    if _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("100.00"), Description: "opening"}); err != nil {
        t.Fatalf("opening deposit: %v", err)
    }
    if _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("15.00")}); err != nil {
        t.Fatalf("deposit: %v", err)
    }
    if got := balance(t, mem, acct); !got.Equal(dec("115.00")) {
        t.Fatalf("balance after deposit = %s, want 115.00", got)
    }
    if _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualWithdrawal, AccountID: acct, Amount: dec("-15.00")}); err != nil {
        t.Fatalf("withdrawal: %v", err)
    }
    if got := balance(t, mem, acct); !got.Equal(dec("100.00")) {
        t.Fatalf("balance after withdrawal = %s, want 100.00", got)
    }
    if got, want := balance(t, mem, acct), txSum(t, mem, acct); !got.Equal(want) {
        t.Fatalf("balance %s != transaction sum %s", got, want)
    }
}

func TestApplyRejectsNegativeBalance(t *testing.T) {
    ctx := context.Background()
    l, mem, acct := newTestLedger(t)

    if _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("10.00")}); err != nil {
        t.Fatalf("deposit: %v", err)
    }
    _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualWithdrawal, AccountID: acct, Amount: dec("-10.01")})
    if !errors.Is(err, ErrInsufficientBalance) {
        t.Fatalf("err = %v, want ErrInsufficientBalance", err)
    }
    // Nothing may have been written.
    if got := balance(t, mem, acct); !got.Equal(dec("10.00")) {
        t.Fatalf("balance after rejected apply = %s, want 10.00", got)
    }
    if got, want := balance(t, mem, acct), txSum(t, mem, acct); !got.Equal(want) {
        t.Fatalf("balance %s != transaction sum %s", got, want)
    }
}

func TestApplyRejectsClosedAccount(t *testing.T) {
    ctx := context.Background()
    l, mem, acct := newTestLedger(t)
    if err := mem.InTx(ctx, func(tx store.Tx) error {
        return tx.SetAccountStatus(ctx, acct, model.AccountClosed)
    }); err != nil {
        t.Fatalf("close account: %v", err)
    }
    _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("5.00")})
    if !errors.Is(err, ErrAccountClosed) {
        t.Fatalf("err = %v, want ErrAccountClosed", err)
    }
}

func TestReverseRestoresBalance(t *testing.T) {
    ctx := context.Background()
    l, mem, acct := newTestLedger(t)

    if _, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("50.00")}); err != nil {
        t.Fatalf("deposit: %v", err)
    }
    before := balance(t, mem, acct)
    tr, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("12.34")})
    if err != nil {
        t.Fatalf("apply: %v", err)
    }
    if err := l.Reverse(ctx, tr.ID); err != nil {
        t.Fatalf("reverse: %v", err)
    }
    if got := balance(t, mem, acct); !got.Equal(before) {
        t.Fatalf("balance after reverse = %s, want %s", got, before)
    }
    if err := mem.InTx(ctx, func(tx store.Tx) error {
        _, err := tx.Transaction(ctx, tr.ID)
        return err
    }); !errors.Is(err, store.ErrTransactionNotFound) {
        t.Fatalf("transaction still present after reverse: %v", err)
    }
}

func TestUpdateAppliesDeltaOnly(t *testing.T) {
    ctx := context.Background()
    l, mem, acct := newTestLedger(t)

    tr, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("20.00")})
    if err != nil {
        t.Fatalf("apply: %v", err)
    }
    amt := dec("25.00")
    if _, err := l.Update(ctx, tr.ID, UpdateParams{NewAmount: &amt}); err != nil {
        t.Fatalf("update: %v", err)
    }
    // 20.00 + (25.00 - 20.00), not 20.00 + 25.00.
    if got := balance(t, mem, acct); !got.Equal(dec("25.00")) {
        t.Fatalf("balance after update = %s, want 25.00", got)
    }
    if got, want := balance(t, mem, acct), txSum(t, mem, acct); !got.Equal(want) {
        t.Fatalf("balance %s != transaction sum %s", got, want)
    }
}

func TestUpdateMovesBetweenAccounts(t *testing.T) {
    ctx := context.Background()
    l, mem, acct := newTestLedger(t)
    other := &model.Account{Name: "Savings", Status: model.AccountOpen, Balance: decimal.Zero}
    if err := mem.InTx(ctx, func(tx store.Tx) error {
        return tx.CreateAccount(ctx, other)
    }); err != nil {
        t.Fatalf("create second account: %v", err)
    }

    tr, err := l.Apply(ctx, ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("30.00")})
    if err != nil {
        t.Fatalf("apply: %v", err)
    }
    if _, err := l.Update(ctx, tr.ID, UpdateParams{NewAccountID: &other.ID}); err != nil {
        t.Fatalf("update: %v", err)
    }
    if got := balance(t, mem, acct); !got.IsZero() {
        t.Fatalf("old account balance = %s, want 0", got)
    }
    if got := balance(t, mem, other.ID); !got.Equal(dec("30.00")) {
        t.Fatalf("new account balance = %s, want 30.00", got)
    }
}

func TestShapeValidation(t *testing.T) {
    ctx := context.Background()
    l, _, acct := newTestLedger(t)
    sub := uint64(7)
    card := uint64(3)
    item := uint64(9)

    cases := []struct {
        name string
        p    ApplyParams
        ok   bool
    }{
        {"fee without subscription", ApplyParams{Type: model.TxSubscriptionFee, AccountID: acct, Amount: dec("5.00")}, false},
        {"fee with card", ApplyParams{Type: model.TxSubscriptionFee, AccountID: acct, Amount: dec("5.00"), SubscriptionID: &sub, CardID: &card}, false},
        {"fee with subscription", ApplyParams{Type: model.TxSubscriptionFee, AccountID: acct, Amount: dec("5.00"), SubscriptionID: &sub}, true},
        {"card issuance with subscription", ApplyParams{Type: model.TxCardIssuance, AccountID: acct, Amount: dec("2.50"), SubscriptionID: &sub, CardID: &card}, false},
        {"card issuance with card", ApplyParams{Type: model.TxCardIssuance, AccountID: acct, Amount: dec("2.50"), CardID: &card}, true},
        {"manual deposit with link", ApplyParams{Type: model.TxManualDeposit, AccountID: acct, Amount: dec("1.00"), SubscriptionID: &sub}, false},
        {"service charge without line item", ApplyParams{Type: model.TxServiceCharge, AccountID: acct, Amount: dec("4.00"), SubscriptionID: &sub}, false},
        {"service charge with line item", ApplyParams{Type: model.TxServiceCharge, AccountID: acct, Amount: dec("4.00"), SubscriptionID: &sub, LineItemID: &item}, true},
        {"unknown type", ApplyParams{Type: model.TxType("bogus"), AccountID: acct, Amount: dec("1.00")}, false},
    }
    for _, tc := range cases {
        _, err := l.Apply(ctx, tc.p)
        if tc.ok && err != nil {
            t.Errorf("%s: unexpected error %v", tc.name, err)
        }
        if !tc.ok && !errors.Is(err, ErrInvalidShape) {
            t.Errorf("%s: err = %v, want ErrInvalidShape", tc.name, err)
        }
    }
}

func TestDuplicateSettlementFailsClosed(t *testing.T) {
    ctx := context.Background()
    l, _, acct := newTestLedger(t)
    sub := uint64(1)

    if _, err := l.Apply(ctx, ApplyParams{Type: model.TxSubscriptionFee, AccountID: acct, Amount: dec("20.00"), SubscriptionID: &sub}); err != nil {
        t.Fatalf("first fee: %v", err)
    }
    _, err := l.Apply(ctx, ApplyParams{Type: model.TxSubscriptionFee, AccountID: acct, Amount: dec("20.00"), SubscriptionID: &sub})
    if !errors.Is(err, store.ErrDuplicateSettlement) {
        t.Fatalf("second fee err = %v, want ErrDuplicateSettlement", err)
    }
}
