// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// admission and issuance services to distinguish a missing row from a lost
// compare-and-swap race and from a genuine storage failure.
package repository

import "errors"

// ErrTicketNotFound is returned when no ticket row matches the id.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrTicketTypeNotFound is returned when a line item references an
// unknown ticket type.
var ErrTicketTypeNotFound = errors.New("ticket type not found")

// ErrDeviceNotFound is returned when no gate device matches a device id.
var ErrDeviceNotFound = errors.New("gate device not found")

// ErrVersionConflict is returned by compare-and-swap writes when the row
// changed since it was read.  Callers should re-read and decide again.
var ErrVersionConflict = errors.New("version conflict")
