package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LdDl/occupancy-go/config"
	"github.com/LdDl/occupancy-go/ingest"
	"github.com/LdDl/occupancy-go/logging"
	"github.com/LdDl/occupancy-go/storage/sqlite"
)

// portOpener opens the coordinator's port
type portOpener func(name string, baud int, timeout time.Duration) (io.ReadWriteCloser, error)

func openSerial(name string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	return ingest.OpenSerial(name, baud, timeout)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr, openSerial))
}

// run returns process exit code. Every opened resource is closed before it returns
func run(args []string, stderr io.Writer, openPort portOpener) int {
	flags := flag.NewFlagSet("occupancy-collect", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "occupancy.yaml", "path to YAML configuration")
	portName := flags.String("port", "", "serial port of the coordinator, overrides link.port")
	dbPath := flags.String("db", "", "path to sqlite database, overrides storage.path")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *portName != "" {
		cfg.Link.Port = *portName
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.Storage.Path, logger)
	if err != nil {
		logger.Error("collect: can't open db", "path", cfg.Storage.Path, "error", err)
		return 1
	}
	defer store.Close()

	port, err := openPort(cfg.Link.Port, cfg.Link.Baud, cfg.Link.ReadTimeout)
	if err != nil {
		logger.Error("collect: can't open serial port", "port", cfg.Link.Port, "error", err)
		return 1
	}
	defer port.Close()
	link := ingest.NewLink(port, cfg.Link.MaxRetries, ingest.WithLinkLogger(logger))

	c, err := newCollector(ctx, link, store, engineCfg.Background, cfg.Link.PollInterval, logger)
	if err != nil {
		logger.Error("collect: can't start", "error", err)
		return 1
	}
	logger.Info("collect: started", "port", cfg.Link.Port, "baud", cfg.Link.Baud, "db", cfg.Storage.Path)
	runErr := c.run(ctx)
	if err = link.Stop(); err != nil {
		logger.Error("collect: can't stop nodes", "error", err)
	}
	stats := c.stats()
	logger.Info("collect: finished", "frames", stats.Frames, "calibrations", stats.Calibrations, "rejected", stats.Rejected)
	if runErr != nil {
		logger.Error("collect: stopped on error", "error", runErr)
		return 1
	}
	return 0
}
