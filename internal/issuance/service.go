// Package issuance allocates ticket rows for a paid order and binds each
// one to a freshly signed admission code.
package issuance

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iliyamo/ticket-admission/internal/metrics"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/queue"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/token"
)

// DefaultTicketTTL is how long an issued admission code stays valid.
const DefaultTicketTTL = 7 * 24 * time.Hour

// Validation errors.
var (
	ErrInvalidOrder       = errors.New("order id and event id are required")
	ErrNoLineItems        = errors.New("at least one line item is required")
	ErrInvalidQuantity    = errors.New("line item quantity must be positive")
	ErrTicketTypeMismatch = errors.New("ticket type belongs to another event")
)

// Issuer signs admission codes.  *token.Codec implements it.
type Issuer interface {
	Issue(kind token.Kind, subjectID uint64, ttl time.Duration) (string, error)
}

// Publisher receives a notice for every committed order.
type Publisher interface {
	PublishIssued(ctx context.Context, ev queue.TicketsIssuedEvent) error
}

// Service issues tickets.  Every call runs in one transaction: either all
// tickets of the order exist with their final codes or none do.
type Service struct {
	db        *sql.DB
	issuer    Issuer
	tickets   *repository.TicketRepo
	types     *repository.TicketTypeRepo
	ttl       time.Duration
	publisher Publisher
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the validity window of issued codes.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithPublisher sets where committed orders are announced.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService returns an issuance Service writing through db.
func NewService(db *sql.DB, issuer Issuer, tickets *repository.TicketRepo, types *repository.TicketTypeRepo, opts ...Option) *Service {
	if db == nil || issuer == nil || tickets == nil || types == nil {
		panic("nil dependency passed to issuance.NewService")
	}
	s := &Service{
		db:       db,
		issuer:   issuer,
		tickets:  tickets,
		types:    types,
		ttl:      DefaultTicketTTL,
		recorder: metrics.Nop{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "issuance")
	return s
}

// IssueTickets creates one ticket per purchased unit.  Line items are
// expanded in order and attendees are paired first-in-first-out across
// all of them; slots beyond the attendee list get no attendee details.
// Each ticket is inserted with a placeholder code, signed with its new id
// and updated with the final code before the transaction commits.
func (s *Service) IssueTickets(ctx context.Context, orderID, eventID uint64, items []model.LineItem, attendees []model.Attendee) ([]model.Ticket, error) {
	if orderID == 0 || eventID == 0 {
		return nil, ErrInvalidOrder
	}
	if len(items) == 0 {
		return nil, ErrNoLineItems
	}
	total := 0
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, fmt.Errorf("%w: ticket type %d qty %d", ErrInvalidQuantity, it.TicketTypeID, it.Qty)
		}
		total += it.Qty
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	issued := make([]model.Ticket, 0, total)
	next := 0
	for _, it := range items {
		tt, err := s.types.GetByIDTx(ctx, tx, it.TicketTypeID)
		if err != nil {
			return nil, fmt.Errorf("ticket type %d: %w", it.TicketTypeID, err)
		}
		if tt.EventID != eventID {
			return nil, fmt.Errorf("%w: ticket type %d", ErrTicketTypeMismatch, it.TicketTypeID)
		}
		for i := 0; i < it.Qty; i++ {
			var a model.Attendee
			if next < len(attendees) {
				a = attendees[next]
				next++
			}
			t, err := s.issueOne(ctx, tx, orderID, eventID, it.TicketTypeID, a)
			if err != nil {
				return nil, err
			}
			issued = append(issued, t)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.recorder.RecordIssued(len(issued))
	s.logger.Info("tickets issued", "order_id", orderID, "event_id", eventID, "count", len(issued))
	s.announce(ctx, orderID, eventID, issued)
	return issued, nil
}

func (s *Service) issueOne(ctx context.Context, tx *sql.Tx, orderID, eventID, typeID uint64, a model.Attendee) (model.Ticket, error) {
	placeholder, err := randomToken(16)
	if err != nil {
		return model.Ticket{}, err
	}
	t := model.Ticket{
		OrderID:       orderID,
		EventID:       eventID,
		TicketTypeID:  typeID,
		AttendeeFirst: a.First,
		AttendeeLast:  a.Last,
		Gender:        a.Gender,
		Phone:         a.Phone,
		Code:          "pending:" + placeholder,
	}
	if err := s.tickets.CreatePendingTx(ctx, tx, &t); err != nil {
		return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	code, err := s.issuer.Issue(token.KindTicket, t.ID, s.ttl)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("sign ticket %d: %w", t.ID, err)
	}
	if err := s.tickets.SetCodeTx(ctx, tx, t.ID, code); err != nil {
		return model.Ticket{}, fmt.Errorf("store code for ticket %d: %w", t.ID, err)
	}
	t.Code = code
	return t, nil
}

func (s *Service) announce(ctx context.Context, orderID, eventID uint64, tickets []model.Ticket) {
	if s.publisher == nil {
		return
	}
	ids := make([]uint64, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	ev := queue.TicketsIssuedEvent{OrderID: orderID, EventID: eventID, TicketIDs: ids, IssuedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := s.publisher.PublishIssued(pctx, ev); err != nil {
		s.logger.Warn("issued event not published", "order_id", orderID, "err", err)
	}
}

// randomToken returns a hex string of n random bytes.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
