package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// TicketTypeRepo reads ticket_types.  Ticket types are managed by the
// event administration surface; this service never writes them.
type TicketTypeRepo struct{ db *sql.DB }

func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

const selectTicketType = `SELECT id, event_id, name, requires_gender, price_cents, capacity FROM ticket_types WHERE id = ?`

// GetByIDTx loads a ticket type inside an existing transaction.  It
// returns ErrTicketTypeNotFound when no row matches.
func (r *TicketTypeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.TicketType, error) {
	return scanTicketType(tx.QueryRowContext(ctx, selectTicketType, id))
}

// GetByID loads a ticket type outside of a transaction.
func (r *TicketTypeRepo) GetByID(ctx context.Context, id uint64) (model.TicketType, error) {
	return scanTicketType(r.db.QueryRowContext(ctx, selectTicketType, id))
}

func scanTicketType(row rowScanner) (model.TicketType, error) {
	var tt model.TicketType
	err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.RequiresGender, &tt.PriceCents, &tt.Capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TicketType{}, ErrTicketTypeNotFound
	}
	return tt, err
}
