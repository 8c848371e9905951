package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Event is a club event that members sign up for.  The fee and deposit
// amounts apply per subscription; additional purchasable services are
// modelled as ServiceItem line items.  Fields describes the dynamic
// enrollment form presented to members; answers are validated against
// these definitions when a subscription is created.
type Event struct {
    ID        uint64          `json:"id"`
    Name      string          `json:"name"`
    Fee       decimal.Decimal `json:"fee"`
    Deposit   decimal.Decimal `json:"deposit"`
    Fields    []FieldDef      `json:"fields,omitempty"`
    CreatedAt time.Time       `json:"created_at"`
}

// ServiceItem is a purchasable line item offered with an event, such as
// a shirt or a bus seat.  Each purchased item settles with its own
// service_charge transaction.
type ServiceItem struct {
    ID      uint64          `json:"id"`
    EventID uint64          `json:"event_id"`
    Name    string          `json:"name"`
    Price   decimal.Decimal `json:"price"`
}

// ChargesNothing reports whether the event, combined with the given
// purchased items, is entirely free of charge.  A free enrollment
// qualifies for promotion without any settlement transaction.
func (e *Event) ChargesNothing(items []ServiceItem) bool {
    if !e.Fee.IsZero() || !e.Deposit.IsZero() {
        return false
    }
    for _, it := range items {
        if !it.Price.IsZero() {
            return false
        }
    }
    return true
}

// TotalDue returns the full amount a subscription owes: fee + deposit +
// the prices of all purchased service items.
func (e *Event) TotalDue(items []ServiceItem) decimal.Decimal {
    total := e.Fee.Add(e.Deposit)
    for _, it := range items {
        total = total.Add(it.Price)
    }
    return total
}
