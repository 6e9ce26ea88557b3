package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

var ErrNotFound = errors.New("not found")

// GetDeviceConfig retrieves the persisted device configuration flags.
func GetDeviceConfig(db *sql.DB) (model.DeviceConfig, error) {
	var c model.DeviceConfig
	err := db.QueryRow(`SELECT auto_recall_enabled, auto_recall_location, force_disable_outputs, shutdown_on_protection, output_protection_couple, front_panel_locked FROM device_config WHERE id = 1`).
		Scan(&c.AutoRecallEnabled, &c.AutoRecallLocation, &c.ForceDisableOutputsOnPowerUp,
			&c.ShutdownWhenProtectionTripped, &c.OutputProtectionCouple, &c.FrontPanelLocked)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("device config: %w", ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("failed to get device config: %w", err)
	}
	return c, nil
}

// GetProfile retrieves the profile stored in a slot.
func GetProfile(db *sql.DB, slot int) (*model.Profile, error) {
	var (
		p                  model.Profile
		coupling           string
		channels, tempProt string
		savedAt            sql.NullString
	)
	err := db.QueryRow(`SELECT slot, name, power_up, coupling, channels, temp_protection, saved_at FROM profiles WHERE slot = ?`, slot).
		Scan(&p.Location, &p.Name, &p.PowerUp, &coupling, &channels, &tempProt, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", slot, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %d: %w", slot, err)
	}

	p.Coupling = model.Coupling(coupling)
	if err := json.Unmarshal([]byte(channels), &p.Channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels of profile %d: %w", slot, err)
	}
	if err := json.Unmarshal([]byte(tempProt), &p.TempProtection); err != nil {
		return nil, fmt.Errorf("failed to decode temperature protection of profile %d: %w", slot, err)
	}
	if savedAt.Valid {
		p.SavedAt, _ = time.Parse(time.RFC3339, savedAt.String)
	}
	return &p, nil
}

// ListProfileSlots returns the occupied profile slots in ascending order.
func ListProfileSlots(db *sql.DB) ([]int, error) {
	rows, err := db.Query(`SELECT slot FROM profiles ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var slots []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan profile slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// GetCalibration retrieves the calibration tags for a 1-based channel slot.
func GetCalibration(db *sql.DB, slot int) (model.Calibration, error) {
	c := model.Calibration{Slot: slot}
	err := db.QueryRow(`SELECT enabled, remark, cal_date FROM calibration WHERE slot = ?`, slot).
		Scan(&c.Enabled, &c.Remark, &c.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("calibration %d: %w", slot, ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("failed to get calibration %d: %w", slot, err)
	}
	return c, nil
}

// GetRecentEvents returns up to limit events, newest first.
func GetRecentEvents(db *sql.DB, limit int) ([]model.EventRecord, error) {
	rows, err := db.Query(`SELECT id, kind, severity, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.EventRecord
	for rows.Next() {
		var (
			e                  model.EventRecord
			kind, sev, created string
		)
		if err := rows.Scan(&e.ID, &kind, &sev, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.Severity = model.Severity(sev)
		e.Timestamp, _ = time.Parse(eventTimeLayout, created)
		events = append(events, e)
	}
	return events, rows.Err()
}
