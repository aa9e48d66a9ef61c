// Command skyfactory builds the master catalog archive described by a YAML
// run configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dd0wney/skyfactory/pkg/config"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/metrics"
	"github.com/dd0wney/skyfactory/pkg/pipeline"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		logging.NewDefaultLogger().Error("invalid configuration", logging.Path(path), logging.Error(err))
		return err
	}
	logger := logging.New(logging.Format(cfg.LogFormat), os.Stderr, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)

	p, err := pipeline.New(cfg, logger, metrics.DefaultRegistry())
	if err != nil {
		logger.Error("failed to prepare run", logging.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		logger.Error("run failed", logging.Error(err))
		return err
	}
	return nil
}
