package db

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Open opens (creating if needed) the sqlite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared
	conn.SetMaxOpenConns(1)

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func ApplySchema(conn *sql.DB) error {
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ApplyMigrations adds columns introduced after the first schema to existing databases.
func ApplyMigrations(conn *sql.DB) error {
	has, err := hasColumn(conn, "profiles", "power_up")
	if err != nil {
		return err
	}
	if !has {
		log.Info().Msg("Adding power_up column to profiles")
		if _, err := conn.Exec(`ALTER TABLE profiles ADD COLUMN power_up BOOLEAN NOT NULL DEFAULT FALSE`); err != nil {
			return fmt.Errorf("failed to add power_up column: %w", err)
		}
	}
	return nil
}

func hasColumn(conn *sql.DB, table, column string) (bool, error) {
	rows, err := conn.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull      bool
			defaultValue *string
			pk           int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SeedDefaults writes the device config row and the default profile if they do not exist yet.
func SeedDefaults(conn *sql.DB, conf model.DeviceConfig, def *model.Profile) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR IGNORE INTO device_config (id, auto_recall_enabled, auto_recall_location, force_disable_outputs, shutdown_on_protection, output_protection_couple, front_panel_locked) VALUES (1, ?, ?, ?, ?, ?, ?)`,
		conf.AutoRecallEnabled, conf.AutoRecallLocation, conf.ForceDisableOutputsOnPowerUp,
		conf.ShutdownWhenProtectionTripped, conf.OutputProtectionCouple, conf.FrontPanelLocked)
	if err != nil {
		return fmt.Errorf("failed to insert device config: %w", err)
	}

	if def != nil {
		_, err = tx.Exec(`INSERT OR IGNORE INTO profiles (slot, name, power_up, coupling, channels, temp_protection, saved_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			def.Location, def.Name, def.PowerUp, string(def.Coupling),
			marshalJSON(def.Channels), marshalJSON(def.TempProtection), time.Now().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert default profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	log.Debug().Msg("Database seeded with defaults")
	return nil
}

func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
