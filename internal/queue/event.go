// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both queues are durable.
const (
	AdmissionQueue = "ticket.admission"
	IssuedQueue    = "tickets.issued"
)

// AdmissionEvent is published after a gate scan moved a ticket in or out.
// It carries enough information for downstream consumers to log, notify,
// or compute occupancy without querying the primary database.
type AdmissionEvent struct {
	ScanEventID  uint64 `json:"scan_event_id"`
	TicketID     uint64 `json:"ticket_id"`
	GateID       uint64 `json:"gate_id"`
	DeviceID     string `json:"device_id,omitempty"`
	Direction    string `json:"direction"`
	DwellSeconds int64  `json:"dwell_seconds"`
	OccurredAt   string `json:"occurred_at"`
}

// TicketsIssuedEvent is published once per order after its tickets have
// been committed with their admission codes.
type TicketsIssuedEvent struct {
	OrderID   uint64   `json:"order_id"`
	EventID   uint64   `json:"event_id"`
	TicketIDs []uint64 `json:"ticket_ids"`
	IssuedAt  string   `json:"issued_at"`
}
