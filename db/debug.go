package db

import (
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

func SetDeviceFlagCLI(dbPath, flag string, value bool) error {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	conf, err := GetDeviceConfig(dbConn)
	if err != nil {
		return err
	}

	switch flag {
	case "auto-recall":
		conf.AutoRecallEnabled = value
	case "force-disable-outputs":
		conf.ForceDisableOutputsOnPowerUp = value
	case "shutdown-on-protection":
		conf.ShutdownWhenProtectionTripped = value
	case "output-protection-couple":
		conf.OutputProtectionCouple = value
	case "front-panel-lock":
		conf.FrontPanelLocked = value
	default:
		return fmt.Errorf("unknown device flag %q", flag)
	}

	tx, err := StartTransaction(dbConn)
	if err != nil {
		return err
	}
	if err := UpdateDeviceConfigWithTx(tx, conf); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func SetAutoRecallLocationCLI(dbPath string, slot int) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	conf, err := GetDeviceConfig(db)
	if err != nil {
		return err
	}
	conf.AutoRecallLocation = slot

	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := UpdateDeviceConfigWithTx(tx, conf); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

// SetCalibrationCLI records the calibration tags of a channel slot.
func SetCalibrationCLI(dbPath string, slot int, enabled bool, remark, date string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return UpsertCalibration(db, model.Calibration{Slot: slot, Enabled: enabled, Remark: remark, Date: date})
}

func ShowDeviceConfigCLI(dbPath string) (model.DeviceConfig, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return model.DeviceConfig{}, err
	}
	defer db.Close()

	return GetDeviceConfig(db)
}

func DumpProfileCLI(dbPath string, slot int) (*model.Profile, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return GetProfile(db, slot)
}

func ListEventsCLI(dbPath string, limit int) ([]model.EventRecord, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return GetRecentEvents(db, limit)
}
