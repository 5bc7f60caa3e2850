// Command uboss runs a uboss node.
//
// Usage:
//
//	uboss [-config file]
//	uboss file
//
// Without a file the configuration is searched in ., ./config, /etc/uboss
// and $HOME/.uboss, and UBOSS_* environment variables override it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/najoast/uboss/bootstrap"
	"github.com/najoast/uboss/config"
	"github.com/najoast/uboss/logging"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uboss: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "configuration file (yaml, json or toml)")
	flag.Parse()
	if *configFile == "" && flag.NArg() > 0 {
		*configFile = flag.Arg(0)
	}

	// before config defaults read GOMAXPROCS
	undo, err := maxprocs.Set()
	defer undo()
	if err != nil {
		return fmt.Errorf("set GOMAXPROCS: %w", err)
	}

	cfg, err := config.NewLoader().Load(*configFile)
	if err != nil {
		return err
	}

	logger, level, err := logging.New(cfg.Log, logging.Options(cfg)...)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting uboss",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.App.Environment)),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)),
		zap.String("config", *configFile))

	app, err := bootstrap.NewApplicationBuilder().
		WithLogger(logger, &level).
		WithConfig(cfg).
		WithConfigFile(*configFile).
		Build()
	if err != nil {
		return err
	}

	if err := app.Run(context.Background()); err != nil {
		logger.Error("uboss stopped", zap.Error(err))
		return err
	}
	logger.Info("uboss stopped")
	return nil
}
