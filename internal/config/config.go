package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("2s", "10m") or bare numbers,
// which are treated as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*d = 0
			return nil
		}
		if v, perr := time.ParseDuration(s); perr == nil {
			*d = Duration(v)
			return nil
		}
	}
	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration %q", value.Value)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	GPS        GPSConfig      `yaml:"gps"`
	GPSNetwork NetworkConfig  `yaml:"gps_network"`
	GPSSerial  SerialConfig   `yaml:"gps_serial"`
	GPSGPSD    GPSDConfig     `yaml:"gps_gpsd"`
	Apps       AppsConfig     `yaml:"applications"`
	Logging    LoggingConfig  `yaml:"logging"`
	Advanced   AdvancedConfig `yaml:"advanced"`
}

type GPSConfig struct {
	Source              string    `yaml:"source"`
	UpdateInterval      Duration  `yaml:"update_interval"`
	StaleAfterIntervals int       `yaml:"stale_after_intervals"`
	MaxRetries          int       `yaml:"max_retries"`
	RetryInterval       Duration  `yaml:"retry_interval"`
	ClockSync           ClockSync `yaml:"clock_sync"`
}

type ClockSync struct {
	Enable      bool     `yaml:"enable"`
	MinInterval Duration `yaml:"min_interval"`
}

type NetworkConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Protocol string   `yaml:"protocol"`
	Timeout  Duration `yaml:"timeout"`
}

type SerialConfig struct {
	Device  string   `yaml:"device"`
	Baud    int      `yaml:"baud"`
	Timeout Duration `yaml:"timeout"`
}

type GPSDConfig struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Timeout Duration `yaml:"timeout"`
}

type AppsConfig struct {
	WSJTXPort        int      `yaml:"wsjtx_port"`
	JS8CallUDPPort   int      `yaml:"js8call_udp_port"`
	JS8CallTCPPort   int      `yaml:"js8call_tcp_port"`
	JS8CallTCPHost   string   `yaml:"js8call_tcp_host"`
	DetectionTimeout Duration `yaml:"detection_timeout"`
	MaxRetries       int      `yaml:"max_retries"`
	RetryInterval    Duration `yaml:"retry_interval"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	KeepLogs   int    `yaml:"keep_logs"`
	EchoStderr bool   `yaml:"echo_stderr"`
}

type AdvancedConfig struct {
	GridPrecision     int      `yaml:"grid_precision"`
	GridEpsilonDeg    float64  `yaml:"grid_epsilon_deg"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	SleepInterval     Duration `yaml:"sleep_interval"`
	StatusAddr        string   `yaml:"status_addr"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "network"
	}
	switch cfg.GPS.Source {
	case "network", "serial", "gpsd":
	default:
		return Config{}, fmt.Errorf("gps.source must be network, serial or gpsd, got %q", cfg.GPS.Source)
	}
	if cfg.GPS.UpdateInterval <= 0 {
		cfg.GPS.UpdateInterval = Duration(2 * time.Second)
	}
	if cfg.GPS.StaleAfterIntervals <= 0 {
		cfg.GPS.StaleAfterIntervals = 3
	}
	if cfg.GPS.MaxRetries <= 0 {
		cfg.GPS.MaxRetries = 3
	}
	if cfg.GPS.RetryInterval <= 0 {
		cfg.GPS.RetryInterval = Duration(5 * time.Second)
	}
	if cfg.GPS.ClockSync.MinInterval <= 0 {
		cfg.GPS.ClockSync.MinInterval = Duration(60 * time.Second)
	}
	if cfg.GPS.ClockSync.Enable && cfg.GPS.ClockSync.MinInterval.Std() < 60*time.Second {
		return Config{}, fmt.Errorf("gps.clock_sync.min_interval must be at least 60s")
	}

	switch cfg.GPS.Source {
	case "network":
		if cfg.GPSNetwork.Host == "" {
			return Config{}, fmt.Errorf("gps_network.host is required when gps.source is network")
		}
		if cfg.GPSNetwork.Port <= 0 || cfg.GPSNetwork.Port > 65535 {
			return Config{}, fmt.Errorf("gps_network.port is required when gps.source is network")
		}
	case "serial":
		if cfg.GPSSerial.Device == "" {
			return Config{}, fmt.Errorf("gps_serial.device is required when gps.source is serial")
		}
	}
	cfg.GPSNetwork.Protocol = strings.ToLower(strings.TrimSpace(cfg.GPSNetwork.Protocol))
	if cfg.GPSNetwork.Protocol == "" {
		cfg.GPSNetwork.Protocol = "tcp"
	}
	if cfg.GPSNetwork.Protocol != "tcp" && cfg.GPSNetwork.Protocol != "udp" {
		return Config{}, fmt.Errorf("gps_network.protocol must be tcp or udp, got %q", cfg.GPSNetwork.Protocol)
	}
	if cfg.GPSNetwork.Timeout <= 0 {
		cfg.GPSNetwork.Timeout = Duration(10 * time.Second)
	}
	if cfg.GPSSerial.Baud <= 0 {
		cfg.GPSSerial.Baud = 9600
	}
	if cfg.GPSSerial.Timeout <= 0 {
		cfg.GPSSerial.Timeout = Duration(5 * time.Second)
	}
	if cfg.GPSGPSD.Host == "" {
		cfg.GPSGPSD.Host = "127.0.0.1"
	}
	if cfg.GPSGPSD.Port <= 0 {
		cfg.GPSGPSD.Port = 2947
	}
	if cfg.GPSGPSD.Timeout <= 0 {
		cfg.GPSGPSD.Timeout = Duration(10 * time.Second)
	}

	if cfg.Apps.WSJTXPort <= 0 {
		cfg.Apps.WSJTXPort = 2237
	}
	if cfg.Apps.JS8CallUDPPort <= 0 {
		cfg.Apps.JS8CallUDPPort = 2242
	}
	if cfg.Apps.JS8CallTCPPort <= 0 {
		cfg.Apps.JS8CallTCPPort = 2442
	}
	if cfg.Apps.JS8CallTCPHost == "" {
		cfg.Apps.JS8CallTCPHost = "127.0.0.1"
	}
	if cfg.Apps.DetectionTimeout <= 0 {
		cfg.Apps.DetectionTimeout = Duration(30 * time.Second)
	}
	if cfg.Apps.MaxRetries <= 0 {
		cfg.Apps.MaxRetries = 3
	}
	if cfg.Apps.RetryInterval <= 0 {
		cfg.Apps.RetryInterval = Duration(5 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.KeepLogs <= 0 {
		cfg.Logging.KeepLogs = 5
	}

	if cfg.Advanced.GridPrecision == 0 {
		cfg.Advanced.GridPrecision = 4
	}
	if cfg.Advanced.GridPrecision != 4 && cfg.Advanced.GridPrecision != 6 {
		return Config{}, fmt.Errorf("advanced.grid_precision must be 4 or 6, got %d", cfg.Advanced.GridPrecision)
	}
	if cfg.Advanced.GridEpsilonDeg <= 0 {
		cfg.Advanced.GridEpsilonDeg = 0.0001
	}
	if cfg.Advanced.HeartbeatInterval <= 0 {
		cfg.Advanced.HeartbeatInterval = Duration(10 * time.Second)
	}
	if cfg.Advanced.SleepInterval <= 0 {
		cfg.Advanced.SleepInterval = Duration(5 * time.Second)
	}

	return cfg, nil
}
