package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

// fixed width so created_at sorts as text
const eventTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func UpdateDeviceConfigWithTx(tx *sql.Tx, c model.DeviceConfig) error {
	_, err := tx.Exec(`INSERT INTO device_config (id, auto_recall_enabled, auto_recall_location, force_disable_outputs, shutdown_on_protection, output_protection_couple, front_panel_locked)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			auto_recall_enabled = excluded.auto_recall_enabled,
			auto_recall_location = excluded.auto_recall_location,
			force_disable_outputs = excluded.force_disable_outputs,
			shutdown_on_protection = excluded.shutdown_on_protection,
			output_protection_couple = excluded.output_protection_couple,
			front_panel_locked = excluded.front_panel_locked`,
		c.AutoRecallEnabled, c.AutoRecallLocation, c.ForceDisableOutputsOnPowerUp,
		c.ShutdownWhenProtectionTripped, c.OutputProtectionCouple, c.FrontPanelLocked)
	if err != nil {
		return fmt.Errorf("update device config: %w", err)
	}
	return nil
}

func UpdateDeviceConfig(db *sql.DB, c model.DeviceConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := UpdateDeviceConfigWithTx(tx, c); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func UpsertProfileWithTx(tx *sql.Tx, p *model.Profile) error {
	savedAt := p.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err := tx.Exec(`INSERT INTO profiles (slot, name, power_up, coupling, channels, temp_protection, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			name = excluded.name,
			power_up = excluded.power_up,
			coupling = excluded.coupling,
			channels = excluded.channels,
			temp_protection = excluded.temp_protection,
			saved_at = excluded.saved_at`,
		p.Location, p.Name, p.PowerUp, string(p.Coupling),
		marshalJSON(p.Channels), marshalJSON(p.TempProtection), savedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", p.Location, err)
	}
	return nil
}

func UpsertProfile(db *sql.DB, p *model.Profile) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := UpsertProfileWithTx(tx, p); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func UpsertCalibration(db *sql.DB, c model.Calibration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO calibration (slot, enabled, remark, cal_date) VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET enabled = excluded.enabled, remark = excluded.remark, cal_date = excluded.cal_date`,
		c.Slot, c.Enabled, c.Remark, c.Date)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert calibration %d: %w", c.Slot, err)
	}
	return tx.Commit()
}

// InsertEvents appends a batch of event records in one transaction.
func InsertEvents(db *sql.DB, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	for _, e := range events {
		_, err = tx.Exec(`INSERT INTO events (id, kind, severity, created_at) VALUES (?, ?, ?, ?)`,
			e.ID, string(e.Kind), string(e.Severity), e.Timestamp.UTC().Format(eventTimeLayout))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}
