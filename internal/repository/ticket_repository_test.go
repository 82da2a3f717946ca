package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/testutil"
)

func TestTicketRepo_GetForScan(t *testing.T) {
	db := testutil.OpenDB(t)
	typeID := testutil.InsertTicketType(t, db, 1, true)
	id := testutil.InsertTicket(t, db, typeID, "code-1")
	repo := NewTicketRepo(db)

	v, err := repo.GetForScan(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, v.RequiresGender)
	assert.Equal(t, id, v.Ticket.ID)
	assert.Equal(t, model.StateUnused, v.Ticket.State)
	assert.Nil(t, v.Ticket.Gender)
	assert.Nil(t, v.Ticket.FirstInAt)
	assert.Equal(t, uint64(0), v.Ticket.Version)

	_, err = repo.GetForScan(context.Background(), id+100)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestTicketRepo_ApplyScan_WritesStateAndEvent(t *testing.T) {
	db := testutil.OpenDB(t)
	typeID := testutil.InsertTicketType(t, db, 1, false)
	id := testutil.InsertTicket(t, db, typeID, "code-1")
	repo := NewTicketRepo(db)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	device := "scanner-7"
	female := model.GenderFemale
	ev := &model.ScanEvent{TicketID: id, GateID: 3, Direction: model.DirectionIn, DeviceID: &device, OccurredAt: at}
	err := repo.ApplyScan(ctx, ScanWrite{
		TicketID: id, ExpectVersion: 0, State: model.StateIn,
		Gender: &female, FirstInAt: &at, Event: ev,
	})
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StateIn, got.State)
	assert.Equal(t, uint64(1), got.Version)
	require.NotNil(t, got.Gender)
	assert.Equal(t, model.GenderFemale, *got.Gender)
	require.NotNil(t, got.FirstInAt)
	assert.True(t, at.Equal(*got.FirstInAt))
	assert.Nil(t, got.LastOutAt)

	events, err := NewScanEventRepo(db).ListByTicket(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.DirectionIn, events[0].Direction)
	assert.Equal(t, uint64(3), events[0].GateID)
	require.NotNil(t, events[0].DeviceID)
	assert.Equal(t, "scanner-7", *events[0].DeviceID)
}

func TestTicketRepo_ApplyScan_StaleVersionWritesNothing(t *testing.T) {
	db := testutil.OpenDB(t)
	typeID := testutil.InsertTicketType(t, db, 1, false)
	id := testutil.InsertTicket(t, db, typeID, "code-1")
	repo := NewTicketRepo(db)
	ctx := context.Background()

	at := time.Now().UTC()
	first := ScanWrite{
		TicketID: id, ExpectVersion: 0, State: model.StateIn, FirstInAt: &at,
		Event: &model.ScanEvent{TicketID: id, GateID: 1, Direction: model.DirectionIn, OccurredAt: at},
	}
	require.NoError(t, repo.ApplyScan(ctx, first))

	second := first
	second.Event = &model.ScanEvent{TicketID: id, GateID: 2, Direction: model.DirectionIn, OccurredAt: at}
	err := repo.ApplyScan(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	assert.Equal(t, 1, testutil.CountScanEvents(t, db, id, "in"))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
}

func TestTicketRepo_ApplyScan_KeepsExistingTimestamps(t *testing.T) {
	db := testutil.OpenDB(t)
	typeID := testutil.InsertTicketType(t, db, 1, false)
	id := testutil.InsertTicket(t, db, typeID, "code-1")
	repo := NewTicketRepo(db)
	ctx := context.Background()

	in := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	out := in.Add(90 * time.Minute)
	require.NoError(t, repo.ApplyScan(ctx, ScanWrite{TicketID: id, ExpectVersion: 0, State: model.StateIn, FirstInAt: &in}))
	require.NoError(t, repo.ApplyScan(ctx, ScanWrite{TicketID: id, ExpectVersion: 1, State: model.StateOut, LastOutAt: &out}))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StateOut, got.State)
	require.NotNil(t, got.FirstInAt)
	require.NotNil(t, got.LastOutAt)
	assert.True(t, in.Equal(*got.FirstInAt))
	assert.True(t, out.Equal(*got.LastOutAt))
}

func TestTicketRepo_CreatePendingAndSetCode(t *testing.T) {
	db := testutil.OpenDB(t)
	typeID := testutil.InsertTicketType(t, db, 9, false)
	repo := NewTicketRepo(db)
	ctx := context.Background()

	first := "Ada"
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	tk := &model.Ticket{OrderID: 55, EventID: 9, TicketTypeID: typeID, AttendeeFirst: &first, Code: "pending:abc"}
	require.NoError(t, repo.CreatePendingTx(ctx, tx, tk))
	require.NotZero(t, tk.ID)
	require.NoError(t, repo.SetCodeTx(ctx, tx, tk.ID, "final-code"))
	assert.ErrorIs(t, repo.SetCodeTx(ctx, tx, tk.ID+100, "x"), ErrTicketNotFound)
	require.NoError(t, tx.Commit())

	list, err := repo.ListByOrder(ctx, 55)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "final-code", list[0].Code)
	assert.Equal(t, model.StateUnused, list[0].State)
	require.NotNil(t, list[0].AttendeeFirst)
	assert.Equal(t, "Ada", *list[0].AttendeeFirst)
	assert.Nil(t, list[0].AttendeeLast)
}

func TestTicketTypeRepo_GetByID(t *testing.T) {
	db := testutil.OpenDB(t)
	typeID := testutil.InsertTicketType(t, db, 4, true)
	repo := NewTicketTypeRepo(db)

	tt, err := repo.GetByID(context.Background(), typeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tt.EventID)
	assert.True(t, tt.RequiresGender)
	assert.Equal(t, uint32(2500), tt.PriceCents)

	_, err = repo.GetByID(context.Background(), typeID+1)
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}

func TestGateDeviceRepo_CreateAndGet(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewGateDeviceRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, "scanner-1", 2, "1234", 4)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "scanner-1", 2, "9999", 4)
	assert.ErrorIs(t, err, ErrDeviceExists)

	d, err := repo.GetByDeviceID(ctx, " scanner-1 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), d.GateID)
	assert.True(t, d.IsActive)
	assert.NotEqual(t, "1234", d.PINHash)

	_, err = repo.GetByDeviceID(ctx, "nope")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
