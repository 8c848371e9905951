// Package queue defines message payloads exchanged over the message broker.
package queue

// PaymentSettledEvent is published when reconciliation books one or more
// settlement components for a subscription.  It carries enough for
// downstream consumers to log or notify without querying the primary
// database.
type PaymentSettledEvent struct {
    SubscriptionID uint64   `json:"subscription_id"`
    EventID        uint64   `json:"event_id"`
    CheckoutID     string   `json:"checkout_id,omitempty"`
    Components     []string `json:"components"`
    Promoted       bool     `json:"promoted"`
    PromotedTo     string   `json:"promoted_to,omitempty"`
    SettledAt      string   `json:"settled_at"`
}
