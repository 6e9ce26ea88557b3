package temperature

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

// LimitMargin is how far below its protection level an AUX sensor starts limiting channel current.
const LimitMargin = 5.0

type Sensor struct {
	Name string
	ID   string // w1 device id, e.g. 28-0000075a1b2c
	Aux  bool
}

type Reading struct {
	Temperature float64 // Celsius
	Timestamp   time.Time
	Valid       bool
}

// Handler receives protection outcomes. Calls happen from Tick, on the caller's goroutine.
type Handler interface {
	OnProtectionTripped()
	LimitMaxCurrent(cause model.MaxCurrentLimitCause)
	UnlimitMaxCurrent()
}

type Service struct {
	sensors      []Sensor
	devicesDir   string
	pollInterval time.Duration

	mutex    sync.RWMutex
	readings map[string]Reading

	auxDefault model.ProtectionConfig
	chDefault  model.ProtectionConfig

	// owner-side state, touched only from Tick and the protection setters
	prot          []model.ProtectionConfig
	exceededSince []uint64
	exceeding     []bool
	tripped       []bool
	limiting      bool
	handler       Handler
}

func NewService(sensors []Sensor, devicesDir string, pollInterval time.Duration, auxDefault, chDefault model.ProtectionConfig) *Service {
	s := &Service{
		sensors:      sensors,
		devicesDir:   devicesDir,
		pollInterval: pollInterval,
		readings:     make(map[string]Reading),
		auxDefault:   auxDefault,
		chDefault:    chDefault,
	}
	s.ResetProtection()
	return s
}

func (s *Service) SetHandler(h Handler) {
	s.handler = h
}

func (s *Service) Init() error {
	if _, err := os.Stat(s.devicesDir); err != nil {
		return fmt.Errorf("w1 devices dir: %w", err)
	}
	s.readAllSensors()
	return nil
}

// Start polls every sensor in the background until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go func() {
		log.Info().Int("sensors", len(s.sensors)).Msg("Starting temperature reading service")

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.readAllSensors()
			}
		}
	}()
}

func (s *Service) readAllSensors() {
	for i, sensor := range s.sensors {
		// give the one-wire bus a break between reads
		if i > 0 {
			time.Sleep(50 * time.Millisecond)
		}

		temp, err := readSensorTemp(filepath.Join(s.devicesDir, sensor.ID))
		r := Reading{Temperature: temp, Timestamp: time.Now(), Valid: err == nil}
		if err != nil {
			log.Warn().Err(err).Str("sensor", sensor.Name).Msg("Temperature read failed")
		}

		s.mutex.Lock()
		s.readings[sensor.ID] = r
		s.mutex.Unlock()
	}
}

// Test reads every sensor now and passes if all of them answered.
func (s *Service) Test() bool {
	s.readAllSensors()

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	passed := true
	for _, sensor := range s.sensors {
		if !s.readings[sensor.ID].Valid {
			log.Error().Str("sensor", sensor.Name).Msg("Temperature sensor test failed")
			passed = false
		}
	}
	return passed
}

// IsAllowedToPowerUp is false while any sensor protection is tripped.
func (s *Service) IsAllowedToPowerUp() bool {
	for i, t := range s.tripped {
		if t {
			log.Warn().Str("sensor", s.sensors[i].Name).Msg("Power up inhibited by tripped temperature protection")
			return false
		}
	}
	return true
}

func (s *Service) ProtectionConfigs() []model.ProtectionConfig {
	return append([]model.ProtectionConfig(nil), s.prot...)
}

// SetProtectionConfigs applies configs by sensor index. Sensors without an entry keep theirs.
func (s *Service) SetProtectionConfigs(cfgs []model.ProtectionConfig) {
	for _, c := range cfgs {
		if c.Sensor < 0 || c.Sensor >= len(s.prot) {
			continue
		}
		s.prot[c.Sensor] = c
	}
}

// ResetProtection restores the AUX or channel default on every sensor and clears trip state.
func (s *Service) ResetProtection() {
	n := len(s.sensors)
	s.prot = make([]model.ProtectionConfig, n)
	s.exceededSince = make([]uint64, n)
	s.exceeding = make([]bool, n)
	s.tripped = make([]bool, n)
	for i, sensor := range s.sensors {
		c := s.chDefault
		if sensor.Aux {
			c = s.auxDefault
		}
		c.Sensor = i
		s.prot[i] = c
	}
}

// Tick evaluates protection against the latest readings. A sensor trips once its level has
// been held for the configured delay and stays tripped until the reading drops below the level.
func (s *Service) Tick(usec uint64) {
	s.mutex.RLock()
	readings := make([]Reading, len(s.sensors))
	for i, sensor := range s.sensors {
		readings[i] = s.readings[sensor.ID]
	}
	s.mutex.RUnlock()

	limit := false
	for i, c := range s.prot {
		r := readings[i]
		if !c.Enabled || !r.Valid {
			s.exceeding[i] = false
			continue
		}

		if s.sensors[i].Aux && r.Temperature >= c.Level-LimitMargin {
			limit = true
		}

		if r.Temperature < c.Level {
			s.exceeding[i] = false
			if s.tripped[i] {
				s.tripped[i] = false
				log.Info().Str("sensor", s.sensors[i].Name).Float64("temp", r.Temperature).Msg("Temperature protection cleared")
			}
			continue
		}

		if !s.exceeding[i] {
			s.exceeding[i] = true
			s.exceededSince[i] = usec
		}
		if s.tripped[i] || usec-s.exceededSince[i] < uint64(c.Delay/time.Microsecond) {
			continue
		}

		s.tripped[i] = true
		log.Error().
			Str("sensor", s.sensors[i].Name).
			Float64("temp", r.Temperature).
			Float64("level", c.Level).
			Msg("Temperature protection tripped")
		if s.handler != nil {
			s.handler.OnProtectionTripped()
		}
	}

	// The ceiling is reasserted every tick while hot: a power cycle clears the
	// handler's cause without the sensor cooling down.
	wasLimiting := s.limiting
	s.limiting = limit
	if s.handler == nil {
		return
	}
	if limit {
		s.handler.LimitMaxCurrent(model.MaxCurrentLimitCauseTemperature)
	} else if wasLimiting {
		s.handler.UnlimitMaxCurrent()
	}
}

func (s *Service) Tripped(sensor int) bool {
	return sensor >= 0 && sensor < len(s.tripped) && s.tripped[sensor]
}

func (s *Service) GetAllReadings() map[string]Reading {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make(map[string]Reading, len(s.readings))
	for k, v := range s.readings {
		result[k] = v
	}
	return result
}

var readSensorTemp = func(sensorPath string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(sensorPath, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("read sensor data: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("sensor crc check failed")
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0, fmt.Errorf("temperature data missing or malformed")
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("convert temperature: %w", err)
	}
	return float64(milliC) / 1000.0, nil
}
