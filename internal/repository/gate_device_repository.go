package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

// GateDeviceRepo stores scanner credentials in the gate_devices table.
type GateDeviceRepo struct{ DB *sql.DB }

func NewGateDeviceRepo(db *sql.DB) *GateDeviceRepo { return &GateDeviceRepo{DB: db} }

// ErrDeviceExists is returned when registering a duplicate device id.
var ErrDeviceExists = errors.New("device already registered")

// Create registers a device with a bcrypt-hashed PIN and returns its ID.
func (r *GateDeviceRepo) Create(ctx context.Context, deviceID string, gateID uint64, pin string, cost int) (uint64, error) {
	deviceID = strings.TrimSpace(deviceID)
	hash, err := utils.HashPassword(pin, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO gate_devices (device_id, gate_id, pin_hash, is_active, created_at) VALUES (?,?,?,?,?)",
		deviceID, gateID, hash, true, time.Now().UTC())
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "1062") || strings.Contains(msg, "unique") {
			return 0, ErrDeviceExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByDeviceID fetches a device by its printed identifier.
func (r *GateDeviceRepo) GetByDeviceID(ctx context.Context, deviceID string) (model.GateDevice, error) {
	var d model.GateDevice
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,device_id,gate_id,pin_hash,is_active,created_at FROM gate_devices WHERE device_id=? LIMIT 1",
		strings.TrimSpace(deviceID)).Scan(&d.ID, &d.DeviceID, &d.GateID, &d.PINHash, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GateDevice{}, ErrDeviceNotFound
	}
	return d, err
}
