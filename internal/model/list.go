package model

import "time"

// Enrollment list roles.  Every event has at most one main and at most
// one waiting list.  Subscriptions start on an intake list and are moved
// by the promotion automaton once their payment condition holds; custom
// lists are managed out-of-band and never touched automatically.
const (
    RoleMain    = "main"
    RoleWaiting = "waiting"
    RoleIntake  = "intake"
    RoleCustom  = "custom"
)

// ValidRole reports whether r is a known list role.
func ValidRole(r string) bool {
    return r == RoleMain || r == RoleWaiting || r == RoleIntake || r == RoleCustom
}

// EnrollmentList is a capacity-limited bucket of subscriptions for one
// event.  Capacity 0 means unlimited.
//
// Fields:
//  ID        – primary key identifier.
//  EventID   – owning event.
//  Name      – display name ("Main", "Waiting", ...).
//  Capacity  – maximum number of subscriptions; 0 = unlimited.
//  Role      – main, waiting, intake or custom.
//  CreatedAt – creation timestamp.
type EnrollmentList struct {
    ID        uint64    `json:"id"`
    EventID   uint64    `json:"event_id"`
    Name      string    `json:"name"`
    Capacity  uint32    `json:"capacity"`
    Role      string    `json:"role"`
    CreatedAt time.Time `json:"created_at"`
}
