package model

import "time"

// GateDevice represents a scanner registered to a gate.  Devices log in
// with their DeviceID and a PIN; only the bcrypt hash of the PIN is
// stored.
//
// Fields:
//
//	ID        – primary key identifier.
//	DeviceID  – unique identifier printed on the scanner.
//	GateID    – gate the device is installed at.
//	PINHash   – bcrypt hash of the device PIN.
//	IsActive  – whether the device may log in.
//	CreatedAt – timestamp of creation.
type GateDevice struct {
	ID        uint64    // gate_devices.id
	DeviceID  string    // gate_devices.device_id
	GateID    uint64    // gate_devices.gate_id
	PINHash   string    // gate_devices.pin_hash
	IsActive  bool      // gate_devices.is_active
	CreatedAt time.Time // gate_devices.created_at
}
