package model

import "time"

// Subscription is one holder's sign-up for an event.  The holder is
// either an internal member (MemberID set) or a free-text external name
// (ExternalName set); exactly one of the two must be present and each is
// unique per event.  A subscription is always assigned to exactly one
// enrollment list.
//
// CheckoutID, GatewayTxID and PaymentFailed together form the bridge to
// the external card-payment gateway: CheckoutID correlates the
// subscription to a gateway checkout, GatewayTxID records the gateway's
// settlement transaction id exactly once (first write wins) and
// PaymentFailed is a set-once flag raised when the gateway reports the
// checkout as failed or canceled.
type Subscription struct {
    ID            uint64    `json:"id"`
    EventID       uint64    `json:"event_id"`
    MemberID      *uint64   `json:"member_id,omitempty"`
    ExternalName  *string   `json:"external_name,omitempty"`
    ListID        uint64    `json:"list_id"`
    CheckoutID    *string   `json:"checkout_id,omitempty"`
    GatewayTxID   *string   `json:"gateway_tx_id,omitempty"`
    PaymentFailed bool      `json:"payment_failed"`
    CreatedAt     time.Time `json:"created_at"`
    UpdatedAt     time.Time `json:"updated_at"`
}

// Member is a registered club member who can hold subscriptions and be
// recorded as the executor of manual ledger transactions.
type Member struct {
    ID        uint64    `json:"id"`
    FirstName string    `json:"first_name"`
    LastName  string    `json:"last_name"`
    Email     string    `json:"email"`
    CreatedAt time.Time `json:"created_at"`
}
