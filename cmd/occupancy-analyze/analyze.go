package main

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/occupancy"
	"github.com/LdDl/occupancy-go/storage/sqlite"
	"github.com/LdDl/occupancy-go/thermal"
)

// frameStore is implemented by sqlite.Store
type frameStore interface {
	Nodes(ctx context.Context) ([]int, error)
	Frames(ctx context.Context, nodeID int, from, to time.Time) ([]thermal.Frame, error)
	LoadBackground(ctx context.Context, nodeID int) (thermal.BackgroundModel, error)
}

// analysis is result of replaying stored frames
type analysis struct {
	Batches map[int]occupancy.Batch
	Events  []occupancy.Event
	Skipped map[int]int
}

// analyze replays frames of the nodes taken in [from; to]. Node's engine starts from stored background
// snapshot when there is one; calibration frames already folded into the snapshot are not applied twice
func analyze(ctx context.Context, store frameStore, cfg occupancy.Config, nodes []int, from, to time.Time, logger *slog.Logger) (analysis, error) {
	router, err := occupancy.NewRouter(cfg, logger, nil)
	if err != nil {
		return analysis{}, err
	}
	if len(nodes) == 0 {
		if nodes, err = store.Nodes(ctx); err != nil {
			return analysis{}, err
		}
	}
	skipped := make(map[int]int, len(nodes))
	for _, nodeID := range nodes {
		if err = ctx.Err(); err != nil {
			return analysis{}, err
		}
		var appliedUntil time.Time
		model, err := store.LoadBackground(ctx, nodeID)
		switch {
		case err == nil:
			if err = router.SetBackground(model); err != nil {
				return analysis{}, err
			}
			appliedUntil = model.UpdatedAt
		case errors.Is(err, sqlite.ErrNotFound):
			logger.Warn("analyze: no background snapshot, relying on calibration frames", "node", nodeID)
			if _, err = router.Engine(nodeID); err != nil {
				return analysis{}, err
			}
		default:
			return analysis{}, err
		}

		frames, err := store.Frames(ctx, nodeID, from, to)
		if err != nil {
			return analysis{}, err
		}
		for _, frame := range frames {
			if frame.IsCalibration() && !appliedUntil.IsZero() && !frame.Timestamp.After(appliedUntil) {
				continue
			}
			_, err = router.ProcessFrame(frame)
			if err != nil {
				if errors.Is(err, occupancy.ErrNoThreshold) {
					skipped[nodeID]++
					continue
				}
				return analysis{}, errors.Wrapf(err, "node %d", nodeID)
			}
		}
		logger.Info("analyze: node replayed", "node", nodeID, "frames", len(frames), "skipped", skipped[nodeID])
	}
	batches, events := router.Finish()
	return analysis{
		Batches: batches,
		Events:  events,
		Skipped: skipped,
	}, nil
}

// sortedNodes returns analysed nodes in ascending order
func sortedNodes(result analysis) []int {
	nodes := make([]int, 0, len(result.Batches))
	for nodeID := range result.Batches {
		nodes = append(nodes, nodeID)
	}
	sort.Ints(nodes)
	return nodes
}
