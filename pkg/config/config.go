// Package config loads the configuration used by the scalpel-ui packages
// from a YAML file and SCALPEL_UI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
)

type (
	Config         = config.Config
	Interface      = config.Interface
	LoggerConfig   = config.LoggerConfig
	BrowserConfig  = config.BrowserConfig
	WaitConfig     = config.WaitConfig
	TrafficConfig  = config.TrafficConfig
	ReportConfig   = config.ReportConfig
	MailConfig     = config.MailConfig
	DatabaseConfig = config.DatabaseConfig
)

const (
	DriverCDP    = config.DriverCDP
	DriverRemote = config.DriverRemote
)

// EnvPrefix prefixes every environment override, e.g. SCALPEL_UI_WAIT_TROUBLESHOOTING.
const EnvPrefix = "SCALPEL_UI"

// NewDefault returns the built-in defaults.
func NewDefault() *Config {
	return config.NewDefaultConfig()
}

// Load layers the YAML file at path and the environment over the defaults
// and validates the result. An empty path reads ./config.yaml when it exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return config.NewConfigFromViper(v)
}
