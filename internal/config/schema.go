package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path        string   `yaml:"path,omitempty" env:"DAFORFER_DB_PATH"`
	BusyTimeout Duration `yaml:"busy_timeout" env:"DAFORFER_BUSY_TIMEOUT"`
}

// ExportConfig holds workbook export settings
type ExportConfig struct {
	ValuesSheet string `yaml:"values_sheet" env:"DAFORFER_VALUES_SHEET"`
	OutputPath  string `yaml:"output_path,omitempty"`
}

// LogConfig holds console logging settings
type LogConfig struct {
	Verbose bool `yaml:"verbose" env:"DAFORFER_VERBOSE"`
}

// Duration wraps time.Duration for YAML and environment unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
