package cmd

import (
	"github.com/spf13/viper"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	// bug in viper? Need to keep names of fields the same as the serialized names..
	Repo     string `json:"repo" yaml:"repo"`           // Default repository path
	LogLevel string `json:"log-level" yaml:"log-level"` // Default log level
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// setRevstoreParams fills flags left at their zero value from the
// config file.
func (c *CLIConfig) setRevstoreParams(flags *flagsT) {
	if flags.root.repo == "" {
		flags.root.repo = c.Repo
	}
	if flags.root.logLevel == "" {
		flags.root.logLevel = c.LogLevel
	}
	if flags.root.logLevel == "" {
		flags.root.logLevel = "info"
	}
}
