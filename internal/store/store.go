package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/db"
	"github.com/thatsimonsguy/psu-controller/internal/model"
)

var ErrProfileNotFound = errors.New("profile not found")

type Store struct {
	db             *sql.DB
	defaults       model.DeviceConfig
	defaultProfile *model.Profile
	autoSave       atomic.Bool
}

// New wraps an open database. defaults and def are written by Init on first run.
func New(conn *sql.DB, defaults model.DeviceConfig, def *model.Profile) *Store {
	s := &Store{db: conn, defaults: defaults, defaultProfile: def}
	s.autoSave.Store(true)
	return s
}

func (s *Store) Init() error {
	return db.SeedDefaults(s.db, s.defaults, s.defaultProfile)
}

// Test checks that the database answers and is not corrupt.
func (s *Store) Test() bool {
	if err := s.db.Ping(); err != nil {
		log.Error().Err(err).Msg("Store ping failed")
		return false
	}
	var result string
	if err := s.db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		log.Error().Err(err).Msg("Store integrity check failed")
		return false
	}
	if result != "ok" {
		log.Error().Str("result", result).Msg("Store integrity check reported problems")
		return false
	}
	return true
}

func (s *Store) LoadDeviceConfig() (model.DeviceConfig, error) {
	c, err := db.GetDeviceConfig(s.db)
	if errors.Is(err, db.ErrNotFound) {
		return s.defaults, nil
	}
	return c, err
}

// LoadChannelCalibration returns the calibration tags of a channel slot; an uncalibrated
// slot yields a disabled calibration and no error.
func (s *Store) LoadChannelCalibration(slot int) (model.Calibration, error) {
	c, err := db.GetCalibration(s.db, slot)
	if errors.Is(err, db.ErrNotFound) {
		return model.Calibration{Slot: slot}, nil
	}
	return c, err
}

func (s *Store) LoadProfile(slot int) (*model.Profile, error) {
	p, err := db.GetProfile(s.db, slot)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrProfileNotFound)
	}
	return p, err
}

// SaveProfile writes p to its slot. Unforced saves are dropped while auto-save is disabled.
func (s *Store) SaveProfile(p *model.Profile, force bool) error {
	if !force && !s.autoSave.Load() {
		log.Debug().Int("slot", p.Location).Msg("Auto-save disabled, skipping profile save")
		return nil
	}
	return db.UpsertProfile(s.db, p)
}

func (s *Store) SetAutoSaveEnabled(enabled bool) {
	s.autoSave.Store(enabled)
}

func (s *Store) AutoSaveEnabled() bool {
	return s.autoSave.Load()
}

var syncFile = func(f *os.File) error {
	return f.Sync()
}

// Export writes every stored profile to path as indented JSON, replacing the file atomically.
func (s *Store) Export(path string) error {
	slots, err := db.ListProfileSlots(s.db)
	if err != nil {
		return err
	}
	profiles := make([]*model.Profile, 0, len(slots))
	for _, slot := range slots {
		p, err := db.GetProfile(s.db, slot)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(profiles); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := syncFile(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync export: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close export: %w", err)
	}

	return os.Rename(tmpPath, path)
}
