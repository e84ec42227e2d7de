// Package config loads the immutable runtime configuration from a YAML file,
// a .env file and SPOTSWITCH_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is built once at startup and passed by value to every component
type Config struct {
	Market        string         `mapstructure:"market" validate:"oneof=at de"`
	Schedule      ScheduleConfig `mapstructure:"schedule"`
	DurationHours int            `mapstructure:"duration_hours" validate:"min=1,max=24"`
	Window        WindowConfig   `mapstructure:"window"`

	// PriceLimit is an optional average price ceiling in cent/kWh
	PriceLimit *float64 `mapstructure:"price_limit"`

	Device     DeviceConfig   `mapstructure:"device"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	InstanceID string         `mapstructure:"instance_id"`
	Timezone   string         `mapstructure:"timezone" validate:"required,timezone"`
	Server     ServerConfig   `mapstructure:"server"`
	DBPath     string         `mapstructure:"db_path" validate:"required"`
	Log        LogConfig      `mapstructure:"log"`

	CancelStaleActions bool `mapstructure:"cancel_stale_actions"`

	loc *time.Location
}

type ScheduleConfig struct {
	// Timespec uses the six field device format: sec min hour dom month dow
	Timespec    string `mapstructure:"timespec" validate:"required,timespec"`
	CallbackURL string `mapstructure:"callback_url" validate:"omitempty,url"`
}

type WindowConfig struct {
	StartHour int `mapstructure:"start_hour" validate:"min=0,max=23"`
	EndHour   int `mapstructure:"end_hour" validate:"min=0,max=23"`
}

type DeviceConfig struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	SwitchID int    `mapstructure:"switch_id" validate:"min=0"`
}

type TelegramConfig struct {
	Active       bool   `mapstructure:"active"`
	Token        string `mapstructure:"token" validate:"required_if=Active true"`
	ChatID       string `mapstructure:"chat_id" validate:"required_if=Active true"`
	SendSchedule bool   `mapstructure:"send_schedule"`
	SendPowerOn  bool   `mapstructure:"send_power_on"`
	SendPowerOff bool   `mapstructure:"send_power_off"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Location returns the time zone used for window boundaries and messages
func (c Config) Location() *time.Location {
	if c.loc != nil {
		return c.loc
	}
	if loc, err := time.LoadLocation(c.Timezone); err == nil && c.Timezone != "" {
		return loc
	}
	return time.Local
}

// WithInstanceID returns a copy of c carrying id
func (c Config) WithInstanceID(id string) Config {
	c.InstanceID = id
	return c
}

// ConfigErrorType categorizes configuration loading failures
type ConfigErrorType string

const (
	ErrReading    ConfigErrorType = "READ_FAILED"
	ErrParsing    ConfigErrorType = "PARSING_FAILED"
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by Load
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
