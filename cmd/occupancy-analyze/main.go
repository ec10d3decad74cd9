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
	"github.com/LdDl/occupancy-go/logging"
	"github.com/LdDl/occupancy-go/occupancy"
	"github.com/LdDl/occupancy-go/publish"
	"github.com/LdDl/occupancy-go/storage/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns process exit code. Every opened resource is closed before it returns
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("occupancy-analyze", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "occupancy.yaml", "path to YAML configuration")
	dbPath := flags.String("db", "", "path to sqlite database, overrides storage.path")
	nodeID := flags.Int("node", 0, "node to analyse, 0 means every node having frames")
	fromStr := flags.String("from", "", "start of interval (RFC3339), defaults to 24 hours before -to")
	toStr := flags.String("to", "", "end of interval (RFC3339), defaults to now")
	store := flags.Bool("store", false, "store tracks and events")
	publishEvents := flags.Bool("publish", false, "publish events and tallies to MQTT broker")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}

	to := time.Now().UTC()
	if *toStr != "" {
		if to, err = time.Parse(time.RFC3339, *toStr); err != nil {
			fmt.Fprintf(stderr, "invalid to: %v\n", err)
			return 1
		}
	}
	from := to.Add(-24 * time.Hour)
	if *fromStr != "" {
		if from, err = time.Parse(time.RFC3339, *fromStr); err != nil {
			fmt.Fprintf(stderr, "invalid from: %v\n", err)
			return 1
		}
	}
	if !from.Before(to) {
		fmt.Fprintf(stderr, "from %s must be before to %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
		return 1
	}
	if *publishEvents && cfg.MQTT.Broker == "" {
		fmt.Fprintf(stderr, "-publish requires mqtt.broker in configuration\n")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Storage.Path, logger)
	if err != nil {
		fmt.Fprintf(stderr, "open db: %v\n", err)
		return 1
	}
	defer db.Close()

	var nodes []int
	if *nodeID != 0 {
		nodes = []int{*nodeID}
	}
	result, err := analyze(ctx, db, engineCfg, nodes, from, to, logger)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "interval %s -> %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
	for _, node := range sortedNodes(result) {
		batch := result.Batches[node]
		tally := occupancy.Count(batch.Events)
		fmt.Fprintf(stdout, "node %d: tracks %d, entering %d, leaving %d, skipped frames %d\n", node, len(batch.Tracks), tally.Entering, tally.Leaving, result.Skipped[node])
	}
	total := occupancy.Count(result.Events)
	fmt.Fprintf(stdout, "total: entering %d, leaving %d\n", total.Entering, total.Leaving)

	if *store {
		for _, node := range sortedNodes(result) {
			if err = db.SaveTracks(ctx, node, result.Batches[node].Tracks); err != nil {
				fmt.Fprintf(stderr, "store tracks: %v\n", err)
				return 1
			}
		}
		if err = db.SaveEvents(ctx, result.Events); err != nil {
			fmt.Fprintf(stderr, "store events: %v\n", err)
			return 1
		}
		logger.Info("analyze: results stored", "events", len(result.Events))
	}

	if *publishEvents {
		publisher, err := publish.Connect(ctx, publish.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			fmt.Fprintf(stderr, "mqtt: %v\n", err)
			return 1
		}
		defer publisher.Disconnect()
		if err = publisher.PublishEvents(ctx, result.Events); err != nil {
			fmt.Fprintf(stderr, "publish events: %v\n", err)
			return 1
		}
		for _, node := range sortedNodes(result) {
			if err = publisher.PublishTally(node, from, to, occupancy.Count(result.Batches[node].Events)); err != nil {
				fmt.Fprintf(stderr, "publish tally: %v\n", err)
				return 1
			}
		}
		stats := publisher.Stats()
		logger.Info("analyze: results published", "published", stats.Published, "failed", stats.Failed)
	}
	return 0
}
