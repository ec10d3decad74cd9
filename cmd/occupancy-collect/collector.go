package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/ingest"
	"github.com/LdDl/occupancy-go/thermal"
)

// readingSource is implemented by ingest.Link
type readingSource interface {
	Request(ctx context.Context) error
	Next(ctx context.Context) (ingest.Reading, error)
}

// readingStore is implemented by sqlite.Store
type readingStore interface {
	InsertReading(ctx context.Context, timestamp time.Time, reading ingest.Reading) error
	SaveBackground(ctx context.Context, model thermal.BackgroundModel) error
	LoadBackgrounds(ctx context.Context) ([]thermal.BackgroundModel, error)
}

type collectStats struct {
	Frames       int
	Calibrations int
	Rejected     int
}

// collector stores every received packet and keeps background snapshots of the nodes up to date
type collector struct {
	source       readingSource
	store        readingStore
	models       *thermal.Models
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time
	counters     collectStats
}

func newCollector(ctx context.Context, source readingSource, store readingStore, params thermal.BackgroundParams, pollInterval time.Duration, logger *slog.Logger) (*collector, error) {
	models := thermal.NewModels(params)
	snapshots, err := store.LoadBackgrounds(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Can't load background snapshots")
	}
	for _, model := range snapshots {
		models.Put(model)
	}
	logger.Info("collect: backgrounds loaded", "nodes", models.Nodes())
	return &collector{
		source:       source,
		store:        store,
		models:       models,
		pollInterval: pollInterval,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// run requests sampling and handles packets until ctx is cancelled.
// Link timeouts and malformed packets lead to a new request
func (c *collector) run(ctx context.Context) error {
	if err := c.source.Request(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for {
		reading, err := c.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ingest.ErrNoData) {
				c.logger.Warn("collect: no data from nodes, requesting again")
			} else {
				c.logger.Warn("collect: link failure, requesting again", "error", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.pollInterval):
			}
			if err = c.source.Request(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}
		if err = c.handle(ctx, reading); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle stores the reading. Calibration readings also update node's background.
// Only storage failures are returned
func (c *collector) handle(ctx context.Context, reading ingest.Reading) error {
	timestamp := c.now().UTC()
	if err := c.store.InsertReading(ctx, timestamp, reading); err != nil {
		return err
	}
	c.counters.Frames++
	if reading.Kind == thermal.FrameData {
		c.logger.Debug("collect: frame stored", "node", reading.NodeID, "trigger", reading.Trigger)
		return nil
	}
	model, err := c.models.ApplyCalibration(reading.Frame(timestamp))
	if err != nil {
		c.counters.Rejected++
		c.logger.Warn("collect: calibration sample rejected", "node", reading.NodeID, "kind", reading.Kind, "error", err)
		return nil
	}
	if err = c.store.SaveBackground(ctx, model); err != nil {
		return err
	}
	c.counters.Calibrations++
	c.logger.Info("collect: background updated", "node", reading.NodeID, "kind", reading.Kind, "samples", model.SampleCount)
	return nil
}

func (c *collector) stats() collectStats {
	return c.counters
}
