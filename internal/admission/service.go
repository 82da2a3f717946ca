// Package admission implements the gate scan state machine.  A scan
// verifies the admission code, re-reads the ticket from storage and
// applies exactly one transition from the table below with a single
// compare-and-swap write.  Concurrent scans of the same ticket serialize
// on the ticket's version: the loser re-reads and decides again.
//
//	unused ─scan─▶ in ─scan─▶ prompt (no change)
//	                  ─scan+confirm=out─▶ out ─scan─▶ in ...
//	void: rejected, never written
package admission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/iliyamo/ticket-admission/internal/metrics"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/queue"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/token"
)

// Verifier checks admission codes.  *token.Codec implements it.
type Verifier interface {
	Verify(code string) (token.Claims, error)
}

// Store is the narrow storage boundary the state machine needs.
// *repository.TicketRepo implements it.
type Store interface {
	GetForScan(ctx context.Context, id uint64) (repository.ScanView, error)
	ApplyScan(ctx context.Context, w repository.ScanWrite) error
}

// Publisher receives committed transitions.
type Publisher interface {
	PublishAdmission(ctx context.Context, ev queue.AdmissionEvent) error
}

// Action tells the operator UI what happened or what to do next.
type Action string

const (
	ActionIn      Action = "in"      // ticket admitted
	ActionOut     Action = "out"     // ticket checked out
	ActionCollect Action = "collect" // missing attribute; see Result.Field
	ActionPrompt  Action = "prompt"  // ticket already in; resubmit with ConfirmOut
)

// FieldGender is the only attribute collected at the gate today.
const FieldGender = "gender"

// Request is one physical scan.
type Request struct {
	Code       string
	GateID     uint64
	DeviceID   *string
	Gender     *model.Gender
	ConfirmOut bool
}

// Result describes a successful scan.  Ticket is the state after the
// scan.  Dwell is set for ActionIn and ActionOut.
type Result struct {
	Action      Action
	TicketID    uint64
	Dwell       time.Duration
	Field       string
	Ticket      model.Ticket
	ScanEventID uint64
}

// DefaultMaxAttempts bounds compare-and-swap retries per scan.
const DefaultMaxAttempts = 3

// Service runs gate scans.  It holds no per-ticket state and is safe for
// concurrent use by any number of gates.
type Service struct {
	verifier       Verifier
	store          Store
	publisher      Publisher
	recorder       metrics.Recorder
	logger         *slog.Logger
	now            func() time.Time
	maxAttempts    int
	publishTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithPublisher sets where committed transitions are announced.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMaxAttempts bounds compare-and-swap retries.  Values below 1 are
// ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// NewService returns a Service verifying codes with v and reading and
// writing tickets through store.
func NewService(v Verifier, store Store, opts ...Option) *Service {
	s := &Service{
		verifier:       v,
		store:          store,
		recorder:       metrics.Nop{},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
		maxAttempts:    DefaultMaxAttempts,
		publishTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "admission")
	return s
}

// Scan applies one gate scan.  On success it returns the operator action.
// Business refusals are returned as *Rejection and storage failures as
// *TransientError; neither leaves a partial write behind.
func (s *Service) Scan(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.scan(ctx, req)
	s.recorder.RecordScan(outcome(res, err), time.Since(start))
	return res, err
}

func (s *Service) scan(ctx context.Context, req Request) (Result, error) {
	claims, err := s.verifier.Verify(req.Code)
	if err != nil {
		return Result{}, tokenRejection(err)
	}
	if claims.Kind != token.KindTicket {
		s.logger.Warn("verified code of unsupported kind", "kind", claims.Kind, "subject_id", claims.SubjectID, "gate_id", req.GateID)
		return Result{}, reject(CodeUnsupportedTokenKind, nil)
	}

	for attempt := 1; ; attempt++ {
		view, err := s.store.GetForScan(ctx, claims.SubjectID)
		if errors.Is(err, repository.ErrTicketNotFound) {
			s.logger.Warn("verified code references missing ticket", "ticket_id", claims.SubjectID, "gate_id", req.GateID)
			return Result{}, reject(CodeTicketNotFound, err)
		}
		if err != nil {
			return Result{}, &TransientError{Err: err}
		}

		p, err := s.plan(view, req)
		if err != nil {
			return Result{}, err
		}
		if p.write == nil {
			return p.result, nil
		}

		err = s.store.ApplyScan(ctx, *p.write)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.logger.Debug("lost compare-and-swap; re-reading", "ticket_id", view.Ticket.ID, "attempt", attempt)
			if attempt >= s.maxAttempts {
				return Result{}, &TransientError{Err: err}
			}
			continue
		}
		if err != nil {
			return Result{}, &TransientError{Err: err}
		}

		if ev := p.write.Event; ev != nil {
			p.result.ScanEventID = ev.ID
			s.announce(ctx, ev, p.result.Dwell)
		}
		return p.result, nil
	}
}

// move is the kind of transition taken from a ticket state.
type move int

const (
	moveReject move = iota
	moveAdmit
	movePromptOut
	moveCheckOut
)

// transitions is indexed by the current state and by whether the caller
// confirmed a check-out.  States missing from the table are rejected.
var transitions = map[model.State][2]move{
	//                  no confirm      confirm=out
	model.StateUnused: {moveAdmit, moveAdmit},
	model.StateOut:    {moveAdmit, moveAdmit},
	model.StateIn:     {movePromptOut, moveCheckOut},
	model.StateVoid:   {moveReject, moveReject},
}

func nextMove(st model.State, confirmOut bool) move {
	row, ok := transitions[st]
	if !ok {
		return moveReject
	}
	if confirmOut {
		return row[1]
	}
	return row[0]
}

// scanPlan is the decision for one read of the ticket: the result to
// return and, if anything must be persisted, the single write to apply.
type scanPlan struct {
	result Result
	write  *repository.ScanWrite
}

func (s *Service) plan(view repository.ScanView, req Request) (scanPlan, error) {
	t := view.Ticket
	mv := nextMove(t.State, req.ConfirmOut)
	if mv == moveReject {
		return scanPlan{}, reject(CodeTicketVoidOrUnknown, nil)
	}

	var gender *model.Gender
	if t.Gender == nil {
		if req.Gender != nil {
			g := *req.Gender
			gender = &g
			t.Gender = &g
		} else if view.RequiresGender {
			return scanPlan{result: Result{Action: ActionCollect, Field: FieldGender, TicketID: t.ID, Ticket: t}}, nil
		}
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	w := &repository.ScanWrite{TicketID: t.ID, ExpectVersion: t.Version, Gender: gender}

	switch mv {
	case moveAdmit:
		w.State = model.StateIn
		if t.FirstInAt == nil {
			w.FirstInAt = &now
			t.FirstInAt = &now
		}
		w.Event = newEvent(t.ID, req, model.DirectionIn, now)
		t.State = model.StateIn
		t.Version++
		return scanPlan{
			result: Result{Action: ActionIn, TicketID: t.ID, Dwell: dwell(t.FirstInAt, now), Ticket: t},
			write:  w,
		}, nil

	case moveCheckOut:
		w.State = model.StateOut
		w.LastOutAt = &now
		w.Event = newEvent(t.ID, req, model.DirectionOut, now)
		t.State = model.StateOut
		t.LastOutAt = &now
		t.Version++
		return scanPlan{
			result: Result{Action: ActionOut, TicketID: t.ID, Dwell: dwell(t.FirstInAt, now), Ticket: t},
			write:  w,
		}, nil

	default: // movePromptOut
		res := Result{Action: ActionPrompt, TicketID: t.ID, Ticket: t}
		if gender == nil {
			return scanPlan{result: res}, nil
		}
		// Only the newly collected gender is written; the state stays.
		w.State = t.State
		res.Ticket.Version++
		return scanPlan{result: res, write: w}, nil
	}
}

func newEvent(ticketID uint64, req Request, dir model.Direction, at time.Time) *model.ScanEvent {
	return &model.ScanEvent{TicketID: ticketID, GateID: req.GateID, Direction: dir, DeviceID: req.DeviceID, OccurredAt: at}
}

func dwell(firstIn *time.Time, at time.Time) time.Duration {
	if firstIn == nil || at.Before(*firstIn) {
		return 0
	}
	return at.Sub(*firstIn)
}

// announce publishes a committed transition.  Delivery failures are logged
// and otherwise ignored.
func (s *Service) announce(ctx context.Context, ev *model.ScanEvent, d time.Duration) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	msg := queue.AdmissionEvent{
		ScanEventID:  ev.ID,
		TicketID:     ev.TicketID,
		GateID:       ev.GateID,
		Direction:    string(ev.Direction),
		DwellSeconds: int64(d / time.Second),
		OccurredAt:   ev.OccurredAt.Format(time.RFC3339),
	}
	if ev.DeviceID != nil {
		msg.DeviceID = *ev.DeviceID
	}
	if err := s.publisher.PublishAdmission(pctx, msg); err != nil {
		s.logger.Warn("admission event not published", "ticket_id", ev.TicketID, "err", err)
	}
}

func outcome(res Result, err error) string {
	var rej *Rejection
	switch {
	case err == nil:
		return string(res.Action)
	case errors.As(err, &rej):
		return string(rej.Code)
	default:
		return "transient"
	}
}
