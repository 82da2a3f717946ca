// Package testutil provides an on-disk SQLite database carrying the same
// tables as the MySQL schema, so repository and service tests run real
// SQL, real transactions and real compare-and-swap races.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iliyamo/ticket-admission/internal/database"
)

const sqliteSchema = `
CREATE TABLE ticket_types (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id        INTEGER NOT NULL,
    name            TEXT    NOT NULL,
    requires_gender BOOLEAN NOT NULL DEFAULT 0,
    price_cents     INTEGER NOT NULL DEFAULT 0,
    capacity        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE tickets (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id       INTEGER NOT NULL,
    event_id       INTEGER NOT NULL,
    ticket_type_id INTEGER NOT NULL REFERENCES ticket_types (id),
    attendee_first TEXT NULL,
    attendee_last  TEXT NULL,
    gender         TEXT NULL CHECK (gender IN ('male','female','other')),
    phone          TEXT NULL,
    code           TEXT NOT NULL UNIQUE,
    state          TEXT NOT NULL DEFAULT 'unused' CHECK (state IN ('unused','in','out','void')),
    first_in_at    DATETIME NULL,
    last_out_at    DATETIME NULL,
    version        INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL
);
CREATE TABLE scan_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id   INTEGER NOT NULL REFERENCES tickets (id),
    gate_id     INTEGER NOT NULL,
    direction   TEXT    NOT NULL CHECK (direction IN ('in','out')),
    device_id   TEXT    NULL,
    occurred_at DATETIME NOT NULL
);
CREATE TABLE gate_devices (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id  TEXT    NOT NULL UNIQUE,
    gate_id    INTEGER NOT NULL,
    pin_hash   TEXT    NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL
);
`

// OpenDB returns a fresh database in t.TempDir with the schema applied.
// The pool is limited to one connection so concurrent callers queue on
// the pool instead of failing with SQLITE_BUSY; interleavings between a
// read and the following compare-and-swap still happen.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "admission.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, stmt := range database.Statements(sqliteSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// InsertTicketType adds a ticket type and returns its id.
func InsertTicketType(t *testing.T, db *sql.DB, eventID uint64, requiresGender bool) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO ticket_types (event_id, name, requires_gender, price_cents, capacity) VALUES (?, ?, ?, ?, ?)`,
		eventID, "General", requiresGender, 2500, 100)
	if err != nil {
		t.Fatalf("insert ticket type: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// InsertTicket adds an unused ticket carrying code and returns its id.
func InsertTicket(t *testing.T, db *sql.DB, typeID uint64, code string) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO tickets (order_id, event_id, ticket_type_id, code, state, version, created_at) VALUES (?, ?, ?, ?, 'unused', 0, ?)`,
		1, 1, typeID, code, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert ticket: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// SetState forces a ticket's state, as the admin surface would when
// voiding a ticket.
func SetState(t *testing.T, db *sql.DB, ticketID uint64, state string) {
	t.Helper()
	if _, err := db.Exec(`UPDATE tickets SET state = ?, version = version + 1 WHERE id = ?`, state, ticketID); err != nil {
		t.Fatalf("set state: %v", err)
	}
}

// CountScanEvents returns the number of audit rows for ticketID in the
// given direction.
func CountScanEvents(t *testing.T, db *sql.DB, ticketID uint64, direction string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM scan_events WHERE ticket_id = ? AND direction = ?`, ticketID, direction).Scan(&n); err != nil {
		t.Fatalf("count scan events: %v", err)
	}
	return n
}
