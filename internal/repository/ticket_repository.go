package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// TicketRepo provides access to the tickets table.  Gate transitions go
// through ApplyScan, which performs an optimistic compare-and-swap on the
// version column and appends the scan event in the same transaction.  All
// timestamps are written in UTC.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span several repositories.
func (r *TicketRepo) DB() *sql.DB { return r.db }

const ticketColumns = `t.id, t.order_id, t.event_id, t.ticket_type_id,
       t.attendee_first, t.attendee_last, t.gender, t.phone,
       t.code, t.state, t.first_in_at, t.last_out_at, t.version, t.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTicket reads one row selected with ticketColumns, followed by any
// extra destinations.
func scanTicket(row rowScanner, extra ...any) (model.Ticket, error) {
	var t model.Ticket
	var first, last, phone, gender, state sql.NullString
	var firstIn, lastOut sql.NullTime
	dest := []any{
		&t.ID, &t.OrderID, &t.EventID, &t.TicketTypeID,
		&first, &last, &gender, &phone,
		&t.Code, &state, &firstIn, &lastOut, &t.Version, &t.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Ticket{}, err
	}
	st, err := model.ParseState(state.String)
	if err != nil {
		return model.Ticket{}, err
	}
	t.State = st
	t.AttendeeFirst = optString(first)
	t.AttendeeLast = optString(last)
	t.Phone = optString(phone)
	if gender.Valid && gender.String != "" {
		g, err := model.ParseGender(gender.String)
		if err != nil {
			return model.Ticket{}, err
		}
		t.Gender = &g
	}
	t.FirstInAt = optTime(firstIn)
	t.LastOutAt = optTime(lastOut)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// ScanView is the state a gate decision needs: the ticket itself and the
// gender requirement of its type.
type ScanView struct {
	Ticket         model.Ticket
	RequiresGender bool
}

// GetForScan reads the current ticket row together with its type's gender
// requirement.  It always hits storage; nothing is cached between calls.
// It returns ErrTicketNotFound when the id does not exist.
func (r *TicketRepo) GetForScan(ctx context.Context, id uint64) (ScanView, error) {
	q := `SELECT ` + ticketColumns + `, tt.requires_gender
          FROM tickets t
          JOIN ticket_types tt ON tt.id = t.ticket_type_id
          WHERE t.id = ?`
	var v ScanView
	t, err := scanTicket(r.db.QueryRowContext(ctx, q, id), &v.RequiresGender)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanView{}, ErrTicketNotFound
	}
	if err != nil {
		return ScanView{}, err
	}
	v.Ticket = t
	return v, nil
}

// GetByID returns a single ticket or ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, ErrTicketNotFound
	}
	return t, err
}

// ListByOrder returns the tickets of one order in issuance order.
func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t WHERE t.order_id = ? ORDER BY t.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ScanWrite describes one atomic gate write.  Pointer fields are only
// written when non-nil.  Event is appended in the same transaction; a
// nil Event means the write changes attributes only (e.g. a collected
// gender on a ticket that is not moving).
type ScanWrite struct {
	TicketID      uint64
	ExpectVersion uint64
	State         model.State
	Gender        *model.Gender
	FirstInAt     *time.Time
	LastOutAt     *time.Time
	Event         *model.ScanEvent
}

// ApplyScan performs the compare-and-swap update described by w and
// inserts its scan event within a single transaction.  When the ticket's
// version no longer equals w.ExpectVersion nothing is written and
// ErrVersionConflict is returned.  On success w.Event.ID is populated.
func (r *TicketRepo) ApplyScan(ctx context.Context, w ScanWrite) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var gender any
	if w.Gender != nil {
		gender = string(*w.Gender)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets
            SET state = ?,
                gender = COALESCE(?, gender),
                first_in_at = COALESCE(?, first_in_at),
                last_out_at = COALESCE(?, last_out_at),
                version = version + 1
          WHERE id = ? AND version = ?`,
		string(w.State), gender, nullableTime(w.FirstInAt), nullableTime(w.LastOutAt),
		w.TicketID, w.ExpectVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrVersionConflict
	}

	if w.Event != nil {
		if err := insertScanEventTx(ctx, tx, w.Event); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CreatePendingTx inserts a ticket in state unused with t.Code as a
// placeholder.  t.ID and t.CreatedAt are populated.  The caller owns the
// transaction.
func (r *TicketRepo) CreatePendingTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	var gender any
	if t.Gender != nil {
		gender = string(*t.Gender)
	}
	t.State = model.StateUnused
	t.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (order_id, event_id, ticket_type_id, attendee_first, attendee_last, gender, phone, code, state, version, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		t.OrderID, t.EventID, t.TicketTypeID,
		nullableString(t.AttendeeFirst), nullableString(t.AttendeeLast), gender, nullableString(t.Phone),
		t.Code, string(t.State), t.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.Version = 0
	return nil
}

// SetCodeTx replaces the placeholder code of a freshly created ticket.
// The version is left untouched; the row is not visible to gates until
// the surrounding transaction commits.
func (r *TicketRepo) SetCodeTx(ctx context.Context, tx *sql.Tx, id uint64, code string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tickets SET code = ? WHERE id = ?`, code, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrTicketNotFound
	}
	return nil
}

func optString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func optTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
