package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// ScanEventRepo reads the append-only scan_events audit log.  Events are
// only ever written by TicketRepo.ApplyScan, inside the transaction that
// moves the ticket, so this repository exposes no insert of its own.
type ScanEventRepo struct {
	db *sql.DB
}

// NewScanEventRepo returns a new ScanEventRepo bound to the given database.
func NewScanEventRepo(db *sql.DB) *ScanEventRepo { return &ScanEventRepo{db: db} }

// ListByTicket returns every scan event of a ticket, oldest first.
func (r *ScanEventRepo) ListByTicket(ctx context.Context, ticketID uint64) ([]model.ScanEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_id, gate_id, direction, device_id, occurred_at
           FROM scan_events
          WHERE ticket_id = ?
          ORDER BY occurred_at, id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []model.ScanEvent{}
	for rows.Next() {
		var (
			e         model.ScanEvent
			direction string
			device    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TicketID, &e.GateID, &direction, &device, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Direction = model.Direction(direction)
		e.DeviceID = optString(device)
		e.OccurredAt = e.OccurredAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// insertScanEventTx appends e within tx and populates e.ID.
func insertScanEventTx(ctx context.Context, tx *sql.Tx, e *model.ScanEvent) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO scan_events (ticket_id, gate_id, direction, device_id, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		e.TicketID, e.GateID, string(e.Direction), nullableString(e.DeviceID), e.OccurredAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}
