package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// TxType tags a transaction with its business meaning.  The string values
// are persisted in transactions.type and form a stable vocabulary.
type TxType string

const (
    TxSubscriptionFee      TxType = "subscription_fee"
    TxDepositHold          TxType = "deposit_hold"
    TxManualDeposit        TxType = "manual_deposit"
    TxManualWithdrawal     TxType = "manual_withdrawal"
    TxServiceCharge        TxType = "service_charge"
    TxRefundFee            TxType = "refund_fee"
    TxRefundDeposit        TxType = "refund_deposit"
    TxRefundService        TxType = "refund_service"
    TxGenericReimbursement TxType = "generic_reimbursement"
    TxCardIssuance         TxType = "card_issuance"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
    switch t {
    case TxSubscriptionFee, TxDepositHold, TxManualDeposit, TxManualWithdrawal,
        TxServiceCharge, TxRefundFee, TxRefundDeposit, TxRefundService,
        TxGenericReimbursement, TxCardIssuance:
        return true
    }
    return false
}

// Settlement reports whether t records the effect of a confirmed payment.
// Settlement transactions are what the promotion automaton and the
// reconciliation engine look for.
func (t TxType) Settlement() bool {
    return t == TxSubscriptionFee || t == TxDepositHold || t == TxServiceCharge
}

// Transaction is a signed money movement booked against exactly one
// account.  A transaction optionally links to exactly one of a
// subscription or a card; which link is required or forbidden depends on
// the type and is validated by the ledger before anything is written.
//
// Fields:
//  ID             – primary key identifier.
//  Type           – business meaning, see TxType.
//  AccountID      – owning account.
//  Amount         – signed amount; positive credits, negative debits.
//  SubscriptionID – linked subscription (nullable).
//  CardID         – linked membership card (nullable).
//  LineItemID     – purchased service line item, set only for
//                   service_charge / refund_service (nullable).
//  Executor       – identity of the person who booked the transaction,
//                   when it was entered manually (nullable).
//  Description    – free-text description.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Transaction struct {
    ID             uint64          `json:"id"`
    Type           TxType          `json:"type"`
    AccountID      uint64          `json:"account_id"`
    Amount         decimal.Decimal `json:"amount"`
    SubscriptionID *uint64         `json:"subscription_id,omitempty"`
    CardID         *uint64         `json:"card_id,omitempty"`
    LineItemID     *uint64         `json:"line_item_id,omitempty"`
    Executor       *string         `json:"executor,omitempty"`
    Description    string          `json:"description"`
    CreatedAt      time.Time       `json:"created_at"`
    UpdatedAt      time.Time       `json:"updated_at"`
}
