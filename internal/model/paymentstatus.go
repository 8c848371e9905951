package model

// Payment-derived status of one settlement component.  These values are
// computed from an event's amounts and the subscription's transactions;
// they are never stored.
const (
    StatusNotApplicable = "not_applicable"
    StatusPending       = "pending"
    StatusPaid          = "paid"
    StatusReimbursed    = "reimbursed"
)

// PaymentStatus groups the computed status of the three amount-bearing
// components of a subscription.
type PaymentStatus struct {
    Fee     string `json:"fee_status"`
    Deposit string `json:"deposit_status"`
    Service string `json:"service_status"`
}

// ComputePaymentStatus derives the fee/deposit/service statuses for a
// subscription from the event's amounts, the purchased service items and
// the subscription's transactions.
//
// A component is not_applicable when nothing is charged for it, paid once
// its settlement transaction exists, and reimbursed once a matching
// refund transaction exists.  The service component counts as paid only
// when every priced line item has its own service_charge transaction.
func ComputePaymentStatus(event *Event, items []ServiceItem, txs []Transaction) PaymentStatus {
    var ps PaymentStatus
    ps.Fee = componentStatus(!event.Fee.IsZero(),
        hasType(txs, TxSubscriptionFee), hasType(txs, TxRefundFee))
    ps.Deposit = componentStatus(!event.Deposit.IsZero(),
        hasType(txs, TxDepositHold), hasType(txs, TxRefundDeposit))

    priced := 0
    charged := 0
    for _, it := range items {
        if it.Price.IsZero() {
            continue
        }
        priced++
        for _, t := range txs {
            if t.Type == TxServiceCharge && t.LineItemID != nil && *t.LineItemID == it.ID {
                charged++
                break
            }
        }
    }
    ps.Service = componentStatus(priced > 0, priced > 0 && charged == priced,
        hasType(txs, TxRefundService))
    return ps
}

func componentStatus(applicable, settled, refunded bool) string {
    switch {
    case !applicable:
        return StatusNotApplicable
    case refunded:
        return StatusReimbursed
    case settled:
        return StatusPaid
    default:
        return StatusPending
    }
}

func hasType(txs []Transaction, tt TxType) bool {
    for _, t := range txs {
        if t.Type == tt {
            return true
        }
    }
    return false
}

// HasSettlement reports whether any settlement transaction exists among
// txs.  The promotion automaton uses this as its qualifying condition.
func HasSettlement(txs []Transaction) bool {
    for _, t := range txs {
        if t.Type.Settlement() {
            return true
        }
    }
    return false
}
