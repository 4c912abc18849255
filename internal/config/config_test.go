// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "scalpel-ui", cfg.Logger().ServiceName)
	assert.Equal(t, DriverCDP, cfg.Browser().Driver)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 180, cfg.Wait().DefaultConditionTimeout)
	assert.Equal(t, 180*time.Second, cfg.Wait().ConditionTimeout())
	assert.Equal(t, 60*time.Second, cfg.Wait().PageLoadTimeout())
	assert.Equal(t, 300*time.Millisecond, cfg.Wait().PollInterval)
	assert.False(t, cfg.Traffic().Enabled)
	assert.Equal(t, 2*time.Second, cfg.Traffic().LoadTimeLimit)
	assert.Equal(t, "INBOX", cfg.Mail().Folder)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Browser Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		unknown := *cfg
		unknown.BrowserCfg.Driver = "netscape"
		err := unknown.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown driver "netscape"`)

		remote := *cfg
		remote.BrowserCfg.Driver = DriverRemote
		remote.BrowserCfg.RemoteURL = ""
		err = remote.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote_url is required")

		remote.BrowserCfg.RemoteURL = "http://grid:4444/wd/hub"
		assert.NoError(t, remote.Validate())
	})

	t.Run("Wait Validation", func(t *testing.T) {
		valid := WaitConfig{DefaultConditionTimeout: 5, DefaultPageLoadTimeout: 10, PollInterval: 300 * time.Millisecond}
		assert.NoError(t, valid.Validate())

		zeroTimeout := valid
		zeroTimeout.DefaultConditionTimeout = 0
		assert.NoError(t, zeroTimeout.Validate(), "a zero timeout means a single probe and is allowed")

		negative := valid
		negative.DefaultConditionTimeout = -1
		err := negative.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_condition_timeout must not be negative")

		noInterval := valid
		noInterval.PollInterval = 0
		err = noInterval.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_interval must be a positive duration")
	})

	t.Run("Traffic Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetTrafficEnabled(true)
		cfg.SetTrafficLoadTimeLimit(0)
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "traffic.load_time_limit must be a positive duration")

		cfg.SetTrafficEnabled(false)
		assert.NoError(t, cfg.Validate(), "limit is ignored while traffic capture is off")
	})
}

// -- Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
browser:
  driver: remote
  remote_url: http://selenium:4444/wd/hub
  headless: false
wait:
  default_condition_timeout: 15
  poll_interval: 100ms
  troubleshooting: true
traffic:
  enabled: true
  load_time_limit: 750ms
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, DriverRemote, cfg.Browser().Driver)
	assert.Equal(t, "http://selenium:4444/wd/hub", cfg.Browser().RemoteURL)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 15*time.Second, cfg.Wait().ConditionTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Wait().PollInterval)
	assert.True(t, cfg.Wait().Troubleshooting)
	assert.Equal(t, 750*time.Millisecond, cfg.Traffic().LoadTimeLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60, cfg.Wait().DefaultPageLoadTimeout)
	assert.Equal(t, "./reports", cfg.Report().Dir)
}

func TestNewConfigFromViper_InvalidConfig(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("browser.driver", "lynx")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewConfigFromViper_DatabaseURLFromEnv(t *testing.T) {
	t.Setenv("SCALPEL_UI_DATABASE_URL", "postgres://qa:secret@db/app")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://qa:secret@db/app", cfg.Database().URL)
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserDriver(DriverRemote)
	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserStartURL("https://example.test")
	cfg.SetWaitDefaultConditionTimeout(7)
	cfg.SetWaitTroubleshooting(true)

	assert.Equal(t, DriverRemote, cfg.Browser().Driver)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "https://example.test", cfg.Browser().StartURL)
	assert.Equal(t, 7*time.Second, cfg.Wait().ConditionTimeout())
	assert.True(t, cfg.Wait().Troubleshooting)
}
