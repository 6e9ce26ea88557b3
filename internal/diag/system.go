package diag

import (
	"database/sql"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

type Tester interface {
	Test() bool
}

// System is the harness used on real hardware.
type System struct {
	DB          *sql.DB
	Thermal     Tester
	Relays      Tester
	SDCardPath  string
	NetworkAddr string
	Now         func() time.Time
}

var statPath = os.Stat

var earliestValidClock = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func (s *System) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *System) TestClock() bool {
	if s.now().Before(earliestValidClock) {
		log.Warn().Time("now", s.now()).Msg("Real-time clock is not set")
		return false
	}
	return true
}

func (s *System) TestDateTime() bool {
	_, offset := s.now().Zone()
	return offset > -14*3600 && offset < 14*3600
}

func (s *System) TestStorage() bool {
	if s.DB == nil {
		return false
	}
	if err := s.DB.Ping(); err != nil {
		log.Error().Err(err).Msg("Storage self-test failed")
		return false
	}
	return true
}

func (s *System) TestSDCard() bool {
	if s.SDCardPath == "" {
		return true
	}
	if _, err := statPath(s.SDCardPath); err != nil {
		log.Error().Err(err).Str("path", s.SDCardPath).Msg("SD card self-test failed")
		return false
	}
	return true
}

func (s *System) TestNetwork() bool {
	if s.NetworkAddr == "" {
		return true
	}
	conn, err := net.DialTimeout("tcp", s.NetworkAddr, 2*time.Second)
	if err != nil {
		log.Error().Err(err).Str("addr", s.NetworkAddr).Msg("Network self-test failed")
		return false
	}
	conn.Close()
	return true
}

func (s *System) TestThermal() bool {
	return s.Thermal == nil || s.Thermal.Test()
}

func (s *System) TestRelays() bool {
	return s.Relays == nil || s.Relays.Test()
}
