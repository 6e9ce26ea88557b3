package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MaxSlots is the number of module slots on the main board.
const MaxSlots = 6

// Rail backends
const (
	RailGPIOCdev = "gpiocdev"
	RailPinctrl  = "pinctrl"
)

type Rail struct {
	Backend    string `json:"backend" yaml:"backend"`
	Chip       string `json:"chip" yaml:"chip"`
	Line       *int   `json:"line" yaml:"line"`
	ActiveHigh bool   `json:"active_high" yaml:"active_high"`
}

type I2C struct {
	Bus string `json:"bus" yaml:"bus"`
	// one identity EEPROM per slot, in slot order
	EEPROMAddrs []uint16 `json:"eeprom_addrs" yaml:"eeprom_addrs"`
}

type TempSensor struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
	Aux  bool   `json:"aux" yaml:"aux"`
}

type Protection struct {
	Level        float64 `json:"level" yaml:"level"`
	DelaySeconds float64 `json:"delay_seconds" yaml:"delay_seconds"`
	Enabled      bool    `json:"enabled" yaml:"enabled"`
}

func (p Protection) Delay() time.Duration {
	return time.Duration(p.DelaySeconds * float64(time.Second))
}

type Config struct {
	ConfigFile     string        `json:"-" yaml:"-"`
	DBPath         string        `json:"-" yaml:"-"`
	LogLevel       zerolog.Level `json:"-" yaml:"-"`
	LogFile        string        `json:"-" yaml:"-"`
	SafeMode       bool          `json:"-" yaml:"-"`
	InstallService bool          `json:"-" yaml:"-"`

	Slots                   int     `json:"slots" yaml:"slots"`
	TickIntervalMillis      int     `json:"tick_interval_ms" yaml:"tick_interval_ms"`
	MinPowerUpDelaySeconds  float64 `json:"min_power_up_delay_seconds" yaml:"min_power_up_delay_seconds"`
	MaxCurrentCeiling       float64 `json:"max_current_ceiling" yaml:"max_current_ceiling"`
	CommandQueueSize        int     `json:"command_queue_size" yaml:"command_queue_size"`
	StatusEveryTicks        int     `json:"status_every_ticks" yaml:"status_every_ticks"`
	StatusPublishSeconds    int     `json:"status_publish_seconds" yaml:"status_publish_seconds"`
	SoundEnabled            bool    `json:"sound_enabled" yaml:"sound_enabled"`
	DefaultChannelCurrLimit float64 `json:"default_channel_current_limit" yaml:"default_channel_current_limit"`

	Rail            Rail         `json:"rail" yaml:"rail"`
	I2C             I2C          `json:"i2c" yaml:"i2c"`
	TempSensors     []TempSensor `json:"temp_sensors" yaml:"temp_sensors"`
	W1DevicesDir    string       `json:"w1_devices_dir" yaml:"w1_devices_dir"`
	TempPollSeconds int          `json:"temp_poll_seconds" yaml:"temp_poll_seconds"`

	AuxProtection     Protection `json:"aux_protection" yaml:"aux_protection"`
	ChannelProtection Protection `json:"channel_protection" yaml:"channel_protection"`

	SDCardPath       string `json:"sd_card_path" yaml:"sd_card_path"`
	NetworkCheckAddr string `json:"network_check_addr" yaml:"network_check_addr"`

	MQTTBroker string `json:"mqtt_broker" yaml:"mqtt_broker"`
	NtfyTopic  string `json:"ntfy_topic" yaml:"ntfy_topic"`
	HTTPPort   int    `json:"http_port" yaml:"http_port"`

	BootScriptPath  string `json:"boot_script_path" yaml:"boot_script_path"`
	RailServicePath string `json:"rail_service_path" yaml:"rail_service_path"`
	MainServicePath string `json:"main_service_path" yaml:"main_service_path"`
	ServiceUser     string `json:"service_user" yaml:"service_user"`
	ServiceWorkDir  string `json:"service_work_dir" yaml:"service_work_dir"`

	EnableDatadog bool     `json:"enable_datadog" yaml:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr" yaml:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace" yaml:"dd_namespace"`
	DDTags        []string `json:"dd_tags" yaml:"dd_tags"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file (.json or .yaml)")
	flag.StringVar(&cfg.DBPath, "db", "data/psu.db", "Path to sqlite database")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "/var/log/psu-controller.log", "Log file path, empty for stderr")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", false, "Never drive the power rail")
	flag.BoolVar(&cfg.InstallService, "install-service", false, "Install the systemd unit and exit")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	if err := cfg.decodeFile(cfg.ConfigFile); err != nil {
		panic(err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

// decodeFile reads the config file as YAML when it has a .yaml/.yml extension, JSON otherwise.
func (cfg *Config) decodeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("Failed to load config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(cfg)
	default:
		err = json.NewDecoder(file).Decode(cfg)
	}
	if err != nil {
		return fmt.Errorf("Failed to parse config file: %w", err)
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.TickIntervalMillis == 0 {
		cfg.TickIntervalMillis = 10
	}
	if cfg.MinPowerUpDelaySeconds == 0 {
		cfg.MinPowerUpDelaySeconds = 5
	}
	if cfg.MaxCurrentCeiling == 0 {
		cfg.MaxCurrentCeiling = 2
	}
	if cfg.CommandQueueSize == 0 {
		cfg.CommandQueueSize = 10
	}
	if cfg.StatusEveryTicks == 0 {
		cfg.StatusEveryTicks = 50
	}
	if cfg.StatusPublishSeconds == 0 {
		cfg.StatusPublishSeconds = 30
	}
	if cfg.DefaultChannelCurrLimit == 0 {
		cfg.DefaultChannelCurrLimit = 5
	}
	if cfg.Rail.Backend == "" {
		cfg.Rail.Backend = RailGPIOCdev
	}
	if cfg.Rail.Chip == "" {
		cfg.Rail.Chip = "gpiochip0"
	}
	if cfg.I2C.Bus == "" {
		cfg.I2C.Bus = "1"
	}
	if cfg.W1DevicesDir == "" {
		cfg.W1DevicesDir = "/sys/bus/w1/devices"
	}
	if cfg.TempPollSeconds == 0 {
		cfg.TempPollSeconds = 2
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.BootScriptPath == "" {
		cfg.BootScriptPath = "/usr/local/bin/psu-rail-off.sh"
	}
	if cfg.RailServicePath == "" {
		cfg.RailServicePath = "/etc/systemd/system/psu-rail-off.service"
	}
	if cfg.MainServicePath == "" {
		cfg.MainServicePath = "/etc/systemd/system/psu-controller.service"
	}
	if cfg.ServiceUser == "" {
		cfg.ServiceUser = "psu"
	}
	if cfg.ServiceWorkDir == "" {
		cfg.ServiceWorkDir = "/opt/psu-controller"
	}
	if cfg.AuxProtection == (Protection{}) {
		cfg.AuxProtection = Protection{Level: 90, DelaySeconds: 10, Enabled: true}
	}
	if cfg.ChannelProtection == (Protection{}) {
		cfg.ChannelProtection = Protection{Level: 70, DelaySeconds: 10, Enabled: true}
	}
}

func (cfg Config) TickInterval() time.Duration {
	return time.Duration(cfg.TickIntervalMillis) * time.Millisecond
}

func (cfg Config) TempPollInterval() time.Duration {
	return time.Duration(cfg.TempPollSeconds) * time.Second
}

func (cfg Config) MinPowerUpDelay() time.Duration {
	return time.Duration(cfg.MinPowerUpDelaySeconds * float64(time.Second))
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.Slots < 1 || cfg.Slots > MaxSlots {
		problems = append(problems, fmt.Sprintf("slots must be between 1 and %d, got %d", MaxSlots, cfg.Slots))
	}
	if cfg.Rail.Line == nil {
		problems = append(problems, "rail.line is required")
	}
	if cfg.Rail.Backend != RailGPIOCdev && cfg.Rail.Backend != RailPinctrl {
		problems = append(problems, fmt.Sprintf("unknown rail.backend %q", cfg.Rail.Backend))
	}

	if n := len(cfg.I2C.EEPROMAddrs); n > 0 && n != cfg.Slots {
		problems = append(problems, fmt.Sprintf("i2c.eeprom_addrs has %d entries for %d slots", n, cfg.Slots))
	}
	usedAddrs := map[uint16]int{}
	for i, addr := range cfg.I2C.EEPROMAddrs {
		if other, exists := usedAddrs[addr]; exists {
			problems = append(problems, fmt.Sprintf("slots %d and %d both use eeprom address 0x%02x", other+1, i+1, addr))
			continue
		}
		usedAddrs[addr] = i
	}

	usedSensors := map[string]string{}
	for _, s := range cfg.TempSensors {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("temp sensor %q has no id", s.Name))
			continue
		}
		if other, exists := usedSensors[s.ID]; exists {
			problems = append(problems, fmt.Sprintf("temp sensors %q and %q share id %s", other, s.Name, s.ID))
			continue
		}
		usedSensors[s.ID] = s.Name
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
