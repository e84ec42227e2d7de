package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/awaistahir/spotswitch/internal/store"
)

const envPrefix = "SPOTSWITCH"

// keys lists every setting so each can be overridden from the environment
// even when the config file does not mention it
var keys = []string{
	"market",
	"schedule.timespec",
	"schedule.callback_url",
	"duration_hours",
	"window.start_hour",
	"window.end_hour",
	"price_limit",
	"device.name",
	"device.url",
	"device.switch_id",
	"telegram.active",
	"telegram.token",
	"telegram.chat_id",
	"telegram.send_schedule",
	"telegram.send_power_on",
	"telegram.send_power_off",
	"instance_id",
	"timezone",
	"server.addr",
	"db_path",
	"log.level",
	"log.format",
	"cancel_stale_actions",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("market", "at")
	v.SetDefault("schedule.timespec", "0 0 15 * * *")
	v.SetDefault("duration_hours", 4)
	v.SetDefault("window.start_hour", 0)
	v.SetDefault("window.end_hour", 0)
	v.SetDefault("device.name", "spotswitch")
	v.SetDefault("device.switch_id", 0)
	v.SetDefault("telegram.send_schedule", true)
	v.SetDefault("telegram.send_power_on", true)
	v.SetDefault("telegram.send_power_off", true)
	v.SetDefault("timezone", "Europe/Vienna")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cancel_stale_actions", true)
}

// DefaultDir is where the config file and database live unless overridden
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".spotswitch"), nil
}

// Load reads the configuration. An empty path searches for spotswitch.yaml in
// the working directory and DefaultDir; a missing file is not an error there.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	dir, dirErr := DefaultDir()
	if dirErr == nil {
		v.SetDefault("db_path", filepath.Join(dir, "spotswitch.db"))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ConfigError{Type: ErrReading, Message: "reading " + path, Err: err}
		}
	} else {
		v.SetConfigName("spotswitch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dirErr == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, &ConfigError{Type: ErrReading, Message: "reading config file", Err: err}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ConfigError{Type: ErrParsing, Message: "decoding configuration", Err: err}
	}

	if err := newValidator().Struct(cfg); err != nil {
		return Config{}, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, &ConfigError{Type: ErrValidation, Message: "unknown timezone " + cfg.Timezone, Err: err}
	}
	cfg.loc = loc

	return cfg, nil
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("timespec", func(fl validator.FieldLevel) bool {
		return len(strings.Fields(fl.Field().String())) == 6
	})
	return validate
}

// KV is the key-value store holding the generated instance id
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

const instanceKey = "spotswitch-instance-id"

// ResolveInstanceID returns cfg with a stable instance id. A configured id
// wins; otherwise one is read from kv or generated and saved there.
func ResolveInstanceID(ctx context.Context, cfg Config, kv KV) (Config, error) {
	if cfg.InstanceID != "" {
		return cfg, nil
	}

	id, err := kv.Get(ctx, instanceKey)
	if err == nil && id != "" {
		return cfg.WithInstanceID(id), nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return cfg, fmt.Errorf("reading instance id: %w", err)
	}

	id = uuid.NewString()
	if err := kv.Set(ctx, instanceKey, id); err != nil {
		return cfg, fmt.Errorf("saving instance id: %w", err)
	}
	return cfg.WithInstanceID(id), nil
}
