package model

import (
	"fmt"
	"time"
)

// State is the admission state of a ticket.  The set is closed; use
// ParseState when reading values from storage or the wire.
type State string

const (
	StateUnused State = "unused" // issued, never scanned
	StateIn     State = "in"     // currently inside the venue
	StateOut    State = "out"    // checked out, may re-enter
	StateVoid   State = "void"   // cancelled through the admin surface; terminal
)

// ParseState converts a stored string to a State.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateUnused, StateIn, StateOut, StateVoid:
		return st, nil
	}
	return "", fmt.Errorf("unknown ticket state %q", s)
}

// Gender is collected lazily at the gate for ticket types that require it.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender validates a gender value supplied by an operator or buyer.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(s); g {
	case GenderMale, GenderFemale, GenderOther:
		return g, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// Direction records whether a scan event admitted or released a ticket.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Ticket mirrors a row of the `tickets` table.  Nullable columns are
// pointers.  Version is incremented by every write and is used for
// compare-and-swap updates at the gate.
//
// Fields:
//
//	ID            – primary key; immutable.
//	OrderID       – order the ticket was issued under.
//	EventID       – event the ticket admits to.
//	TicketTypeID  – reference to ticket_types.id.
//	AttendeeFirst – attendee first name (nullable).
//	AttendeeLast  – attendee last name (nullable).
//	Gender        – attendee gender (nullable, collected at the gate).
//	Phone         – attendee phone (nullable).
//	Code          – the signed admission code.
//	State         – admission state.
//	FirstInAt     – first admission time (nullable).
//	LastOutAt     – last check-out time (nullable).
//	Version       – optimistic concurrency counter.
type Ticket struct {
	ID            uint64     `json:"id"`
	OrderID       uint64     `json:"order_id"`
	EventID       uint64     `json:"event_id"`
	TicketTypeID  uint64     `json:"ticket_type_id"`
	AttendeeFirst *string    `json:"attendee_first"`
	AttendeeLast  *string    `json:"attendee_last"`
	Gender        *Gender    `json:"gender"`
	Phone         *string    `json:"phone"`
	Code          string     `json:"code"`
	State         State      `json:"state"`
	FirstInAt     *time.Time `json:"first_in_at"`
	LastOutAt     *time.Time `json:"last_out_at"`
	Version       uint64     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TicketType is read-only from the admission core's perspective.
type TicketType struct {
	ID             uint64 // ticket_types.id
	EventID        uint64 // ticket_types.event_id
	Name           string // ticket_types.name
	RequiresGender bool   // ticket_types.requires_gender
	PriceCents     uint32 // ticket_types.price_cents
	Capacity       uint32 // ticket_types.capacity
}

// ScanEvent is an append-only audit record written once per accepted
// gate transition.
type ScanEvent struct {
	ID         uint64    `json:"id"`
	TicketID   uint64    `json:"ticket_id"`
	GateID     uint64    `json:"gate_id"`
	Direction  Direction `json:"direction"`
	DeviceID   *string   `json:"device_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LineItem is one purchased ticket type and quantity within an order.
type LineItem struct {
	TicketTypeID uint64 `json:"ticket_type_id"`
	Qty          int    `json:"qty"`
}

// Attendee carries the optional personal details paired with a ticket at
// issuance time.
type Attendee struct {
	First  *string `json:"first,omitempty"`
	Last   *string `json:"last,omitempty"`
	Gender *Gender `json:"gender,omitempty"`
	Phone  *string `json:"phone,omitempty"`
}
