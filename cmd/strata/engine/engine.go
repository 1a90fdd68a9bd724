// Package enginecmder holds the flag wiring and engine construction shared by
// every strata command that opens the storage engine.
package enginecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/orchestrator"
)

// Flags holds the store flag targets. Values reach the engine through
// viper, so the fields only anchor the registered flags.
type Flags struct {
	relationalProvider string
	relationalDSN      string
	sqlitePath         string
	vectorProvider     string
	vectorTarget       string
	embeddingProvider  string
	embeddingTarget    string
	embeddingModel     string
	embeddingDims      uint
	modelPath          string
	logFile            string
}

// AddFlags registers the store flags on cmd.
func (f *Flags) AddFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagRelationalProv, &f.relationalProvider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagRelationalDSN, &f.relationalDSN)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagVectorStoreProv, &f.vectorProvider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagVectorStoreTgt, &f.vectorTarget)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddUintFlag(cmd, config.StoreFlags, config.FlagEmbeddingDims, &f.embeddingDims)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagModelPath, &f.modelPath)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagLogFile, &f.logFile)
}

// Env is a resolved command environment.
type Env struct {
	Config    *config.Config
	ConfigDir string
	Logger    *slog.Logger

	logFile io.Closer
}

// Load resolves configuration for cmd: flags, then STRATA_* variables,
// then config.toml, then defaults. extra lists additional registry keys
// registered on cmd.
func Load(cmd *cobra.Command, extra ...string) (*Env, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	keys := append(append([]string{}, config.StoreFlagKeys...), extra...)
	config.BindRegisteredFlags(v, cmd, config.StoreFlags, keys)

	return fromViper(v, configDir, debug)
}

func fromViper(v *viper.Viper, configDir string, debug bool) (*Env, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	env := &Env{Config: cfg, ConfigDir: configDir}
	debug = debug || cfg.Log.Debug

	console := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithWriter(os.Stderr),
	)

	if cfg.Log.File == "" {
		env.Logger = console
		return env, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	env.logFile = f
	env.Logger = logger.Multi(
		console,
		logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f)),
	)
	return env, nil
}

// Open builds the engine described by the environment.
func (e *Env) Open(ctx context.Context) (*orchestrator.Orchestrator, error) {
	o, err := orchestrator.Open(ctx, e.Config, e.ConfigDir, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage engine: %w", err)
	}
	return o, nil
}

// Close releases the log file, if any.
func (e *Env) Close() error {
	if e.logFile != nil {
		return e.logFile.Close()
	}
	return nil
}
