/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the Akaylee Parser commands. Provides configuration loading,
logging setup, grammar and oracle construction, and coloured console output.
*/

package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/kleascm/akaylee-parser/pkg/config"
	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/logging"
	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/kleascm/akaylee-parser/pkg/oracle/openai"
	"github.com/kleascm/akaylee-parser/pkg/oracle/scripted"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	failColor  = color.New(color.FgRed, color.Bold)
	dimColor   = color.New(color.Faint)
)

// appFs is the filesystem used by every command
var appFs = afero.NewOsFs()

// LoadConfig loads configuration from files, environment and flags
func LoadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// SetupLogging creates the logger described by cfg
func SetupLogging(cfg *config.Config) (*logging.Logger, error) {
	lc := cfg.Logging
	lc.Fs = appFs
	return logging.NewLogger(&lc)
}

// setup loads configuration and logging for a command
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := SetupLogging(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, logger, nil
}

// loadStore reads the grammar file and creates the version store
func loadStore(path string, logger logrus.FieldLogger) (*grammar.Store, error) {
	if path == "" {
		return nil, errors.New("no grammar given (use --grammar or the grammar config key)")
	}
	def, err := grammar.LoadDefinition(appFs, path)
	if err != nil {
		return nil, err
	}
	return grammar.NewStore(def, logger)
}

// buildOracle returns the configured oracle, or nil when inference is off
func buildOracle(cfg *config.Config, logger logrus.FieldLogger) (oracle.Oracle, error) {
	switch cfg.Oracle.Kind {
	case config.OracleScripted:
		return scripted.LoadFile(appFs, cfg.Oracle.Script)
	case config.OracleOpenAI:
		return openai.New(cfg.Oracle.OpenAI, logger.WithField("component", "oracle"))
	default:
		return nil, nil
	}
}

// Hint returns advice for a command error, or ""
func Hint(err error) string {
	return core.Hint(err)
}

func printTitle(title string) {
	titleColor.Println(title)
	dimColor.Println("==========================================")
}
