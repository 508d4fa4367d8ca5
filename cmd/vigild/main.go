package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roadcare/vigil/internal/config"
	"github.com/roadcare/vigil/internal/control"
	"github.com/roadcare/vigil/internal/monitor"
)

func main() {
	configPath := flag.String("config", "", "Path to the agent YAML config (defaults apply when omitted)")
	dev := flag.Bool("dev", false, "Use the development logger")
	flag.Parse()

	logger, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := config.DefaultAgent()
	if *configPath != "" {
		cfg, err = config.LoadAgent(*configPath)
		if err != nil {
			sugar.Fatalw("config load failed", "path", *configPath, "error", err)
		}
		sugar.Infow("config loaded", "path", *configPath)
	} else {
		sugar.Infow("no config file given, using defaults")
	}

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("agent exited with error", "error", err)
	}
}

func run(cfg *config.Agent, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := monitor.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building monitor: %w", err)
	}

	ctl := control.NewServer(cfg.Control.Addr, cfg.InstanceID, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(gctx)
	})
	g.Go(func() error {
		return ctl.Run(gctx)
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if serr := m.Shutdown(shutdownCtx); serr != nil {
		logger.Errorw("shutdown incomplete", "error", serr)
	}
	return err
}

func shutdownTimeout(cfg *config.Agent) time.Duration {
	if t := cfg.ShutdownTimeout(); t > 0 {
		return t
	}
	return 5 * time.Second
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
