package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaistahir/spotswitch/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spotswitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const fullConfig = `
market: de
schedule:
  timespec: "0 30 14 * * *"
  callback_url: http://192.168.1.10:8080/api/recompute
duration_hours: 3
window:
  start_hour: 20
  end_hour: 6
price_limit: 12.5
device:
  name: Boiler
  url: http://192.168.1.20
  switch_id: 1
telegram:
  active: true
  token: "123:abc"
  chat_id: "42"
  send_power_off: false
timezone: Europe/Berlin
db_path: /tmp/spotswitch-test.db
log:
  level: debug
  format: json
`

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "de", cfg.Market)
	assert.Equal(t, "0 30 14 * * *", cfg.Schedule.Timespec)
	assert.Equal(t, "http://192.168.1.10:8080/api/recompute", cfg.Schedule.CallbackURL)
	assert.Equal(t, 3, cfg.DurationHours)
	assert.Equal(t, 20, cfg.Window.StartHour)
	assert.Equal(t, 6, cfg.Window.EndHour)
	require.NotNil(t, cfg.PriceLimit)
	assert.Equal(t, 12.5, *cfg.PriceLimit)
	assert.Equal(t, "Boiler", cfg.Device.Name)
	assert.Equal(t, 1, cfg.Device.SwitchID)
	assert.True(t, cfg.Telegram.Active)
	assert.True(t, cfg.Telegram.SendSchedule)
	assert.True(t, cfg.Telegram.SendPowerOn)
	assert.False(t, cfg.Telegram.SendPowerOff)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.CancelStaleActions)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "db_path: /tmp/x.db\n"))
	require.NoError(t, err)

	assert.Equal(t, "at", cfg.Market)
	assert.Equal(t, "0 0 15 * * *", cfg.Schedule.Timespec)
	assert.Equal(t, 4, cfg.DurationHours)
	assert.Nil(t, cfg.PriceLimit)
	assert.False(t, cfg.Telegram.Active)
	assert.Equal(t, "Europe/Vienna", cfg.Location().String())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPOTSWITCH_DURATION_HOURS", "6")
	t.Setenv("SPOTSWITCH_WINDOW_START_HOUR", "1")
	t.Setenv("SPOTSWITCH_PRICE_LIMIT", "0.15")
	t.Setenv("SPOTSWITCH_TELEGRAM_CHAT_ID", "99")

	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.DurationHours)
	assert.Equal(t, 1, cfg.Window.StartHour)
	require.NotNil(t, cfg.PriceLimit)
	assert.Equal(t, 0.15, *cfg.PriceLimit)
	assert.Equal(t, "99", cfg.Telegram.ChatID)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "duration zero", body: "duration_hours: 0"},
		{name: "duration too long", body: "duration_hours: 25"},
		{name: "start hour", body: "window:\n  start_hour: 24"},
		{name: "end hour", body: "window:\n  end_hour: -1"},
		{name: "market", body: "market: fr"},
		{name: "timespec fields", body: "schedule:\n  timespec: \"0 15 * * *\""},
		{name: "telegram without token", body: "telegram:\n  active: true\n  chat_id: \"1\""},
		{name: "timezone", body: "timezone: Mars/Olympus"},
		{name: "log format", body: "log:\n  format: xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body+"\ndb_path: /tmp/x.db\n"))

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, ErrValidation, cfgErr.Type)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrReading, cfgErr.Type)
}

type memKV map[string]string

func (m memKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m memKV) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestResolveInstanceID(t *testing.T) {
	ctx := context.Background()

	cfg, err := ResolveInstanceID(ctx, Config{InstanceID: "fixed"}, memKV{})
	require.NoError(t, err)
	assert.Equal(t, "fixed", cfg.InstanceID)

	kv := memKV{}
	first, err := ResolveInstanceID(ctx, Config{}, kv)
	require.NoError(t, err)
	assert.Len(t, first.InstanceID, 36)
	assert.Equal(t, first.InstanceID, kv[instanceKey])

	second, err := ResolveInstanceID(ctx, Config{}, kv)
	require.NoError(t, err)
	assert.Equal(t, first.InstanceID, second.InstanceID)
}
