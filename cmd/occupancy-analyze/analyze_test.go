package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/occupancy-go/ingest"
	"github.com/LdDl/occupancy-go/mot"
	"github.com/LdDl/occupancy-go/occupancy"
	"github.com/LdDl/occupancy-go/storage/sqlite"
	"github.com/LdDl/occupancy-go/thermal"
)

var baseTime = time.Date(2017, 12, 4, 16, 20, 0, 0, time.UTC)

func testConfig() occupancy.Config {
	return occupancy.Config{
		KSigma:           5,
		Background:       thermal.DefaultBackgroundParams(),
		AcceptanceRadius: 5,
		Matching:         mot.MatchingAlgorithmHungarian,
		Prediction:       mot.PredictionEMA,
		KalmanDt:         1,
		Classifier:       occupancy.NewClassifierDefault(),
	}
}

func ambient() thermal.Grid {
	grid := thermal.Grid{}
	for row := range grid {
		for col := range grid[row] {
			grid[row][col] = 20
		}
	}
	return grid
}

func person(row, col int) thermal.Grid {
	grid := ambient()
	for c := col - 1; c <= col+1; c++ {
		grid[row][c] = 30
	}
	return grid
}

func insert(t *testing.T, store *sqlite.Store, ts time.Time, node int, kind thermal.FrameKind, grid thermal.Grid) {
	t.Helper()
	require.NoError(t, store.InsertReading(context.Background(), ts, ingest.Reading{NodeID: node, Kind: kind, Grid: grid}))
}

func TestAnalyze(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "analyze.db"), nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	// Node 1 has snapshot built from its own calibration frames, node 2 has only the frames
	for _, node := range []int{1, 2} {
		insert(t, store, baseTime.Add(time.Second), node, thermal.FrameInactiveCalibration, ambient())
		insert(t, store, baseTime.Add(2*time.Second), node, thermal.FrameInactiveCalibration, ambient())
	}
	params := thermal.DefaultBackgroundParams()
	snapshot := thermal.NewBackgroundModel(1).UpdateInactive(ambient(), params).UpdateInactive(ambient(), params)
	snapshot.UpdatedAt = baseTime.Add(2 * time.Second)
	require.NoError(t, store.SaveBackground(ctx, snapshot))

	walk := baseTime.Add(time.Minute)
	for i := 0; i < 4; i++ {
		ts := walk.Add(time.Duration(i) * time.Second)
		insert(t, store, ts, 1, thermal.FrameData, person(1+i, 4))
		insert(t, store, ts, 2, thermal.FrameData, person(6-i, 3))
		insert(t, store, ts, 3, thermal.FrameData, person(2, 2))
	}
	insert(t, store, walk.Add(5*time.Second), 1, thermal.FrameData, ambient())

	result, err := analyze(ctx, store, testConfig(), nil, baseTime, baseTime.Add(time.Hour), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, sortedNodes(result))
	assert.Len(t, result.Batches[1].Tracks, 1)
	assert.Len(t, result.Batches[2].Tracks, 1)
	assert.Empty(t, result.Batches[3].Tracks)
	assert.Equal(t, 4, result.Skipped[3])
	assert.Zero(t, result.Skipped[1])

	require.Len(t, result.Events, 2)
	assert.Equal(t, 1, result.Events[0].NodeID)
	assert.Equal(t, occupancy.Leaving, result.Events[0].Direction)
	assert.Equal(t, 2, result.Events[1].NodeID)
	assert.Equal(t, occupancy.Entering, result.Events[1].Direction)

	// Results can be stored and read back
	for _, node := range sortedNodes(result) {
		require.NoError(t, store.SaveTracks(ctx, node, result.Batches[node].Tracks))
	}
	require.NoError(t, store.SaveEvents(ctx, result.Events))
	stored, err := store.Events(ctx, 2, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, result.Events[1].TrackID, stored[0].TrackID)
}

func TestAnalyzeSingleNode(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "analyze.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	insert(t, store, baseTime, 4, thermal.FrameInactiveCalibration, ambient())
	insert(t, store, baseTime.Add(time.Second), 4, thermal.FrameInactiveCalibration, ambient())
	insert(t, store, baseTime.Add(2*time.Second), 4, thermal.FrameData, person(3, 3))
	insert(t, store, baseTime.Add(2*time.Second), 5, thermal.FrameData, person(3, 3))

	result, err := analyze(context.Background(), store, testConfig(), []int{4}, baseTime, baseTime.Add(time.Hour), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, []int{4}, sortedNodes(result))
	assert.Len(t, result.Batches[4].Tracks, 1)
	assert.Empty(t, result.Events)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "analyze.db")
	store, err := sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	insert(t, store, baseTime, 2, thermal.FrameInactiveCalibration, ambient())
	insert(t, store, baseTime.Add(time.Second), 2, thermal.FrameInactiveCalibration, ambient())
	walk := baseTime.Add(time.Minute)
	for i := 0; i < 4; i++ {
		insert(t, store, walk.Add(time.Duration(i)*time.Second), 2, thermal.FrameData, person(6-i, 3))
	}
	require.NoError(t, store.Close())

	configPath := filepath.Join(dir, "occupancy.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("threshold:\n  k_sigma: 5\n"), 0o644))
	args := []string{
		"-config", configPath,
		"-db", dbPath,
		"-from", baseTime.Format(time.RFC3339),
		"-to", baseTime.Add(time.Hour).Format(time.RFC3339),
		"-store",
	}
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(args, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "node 2: tracks 1, entering 1, leaving 0, skipped frames 0")
	assert.Contains(t, stdout.String(), "total: entering 1, leaving 0")

	// Database is closed by run and results are stored
	store, err = sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	defer store.Close()
	events, err := store.Events(context.Background(), 2, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, occupancy.Entering, events[0].Direction)

	reversed := []string{"-config", configPath, "-db", dbPath, "-from", args[7], "-to", args[5]}
	assert.Equal(t, 1, run(reversed, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "must be before")
}
