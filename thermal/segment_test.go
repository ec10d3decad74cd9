package thermal

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/occupancy-go/mot"
)

func TestSegmentSingleCell(t *testing.T) {
	threshold := uniformGrid(25)
	grid := uniformGrid(20)
	grid[5][2] = 30
	blobs := Segment(grid, threshold)
	require.Len(t, blobs, 1)
	blob := blobs[0]
	assert.Equal(t, 1, blob.Size)
	assert.Equal(t, mot.Point{X: 2, Y: 5}, blob.Centroid)
	assert.Equal(t, 30.0, blob.AvgTemp)
	assert.Equal(t, []Cell{{Row: 5, Col: 2, Temp: 30}}, blob.Cells)
	assert.Equal(t, 1, ActiveCells(grid, threshold))
}

func TestSegmentNothingAboveThreshold(t *testing.T) {
	threshold := uniformGrid(25)
	grid := uniformGrid(20)
	// Equal to threshold is not above it
	grid[0][0] = 25
	assert.Empty(t, Segment(grid, threshold))
	assert.Equal(t, 0, ActiveCells(grid, threshold))
}

func TestSegmentDiagonalConnectivity(t *testing.T) {
	threshold := uniformGrid(25)
	grid := uniformGrid(20)
	grid[1][1] = 30
	grid[2][2] = 30
	grid[3][3] = 30
	// Separate blob
	grid[6][6] = 28
	grid[6][7] = 28
	blobs := Segment(grid, threshold)
	require.Len(t, blobs, 2)
	assert.Equal(t, 3, blobs[0].Size)
	assert.Equal(t, mot.Point{X: 2, Y: 2}, blobs[0].Centroid)
	assert.Equal(t, 2, blobs[1].Size)
	assert.Equal(t, mot.Point{X: 6.5, Y: 6}, blobs[1].Centroid)
}

func TestSegmentWeightedCentroid(t *testing.T) {
	threshold := uniformGrid(25)
	grid := uniformGrid(20)
	grid[2][2] = 30
	grid[2][3] = 30
	grid[2][4] = 40
	blobs := Segment(grid, threshold)
	require.Len(t, blobs, 1)
	// Weighted by temperature, not by excess over threshold
	expectedX := (2*30.0 + 3*30.0 + 4*40.0) / 100.0
	assert.InDelta(t, expectedX, blobs[0].Centroid.X, 1e-12)
	assert.InDelta(t, 2.0, blobs[0].Centroid.Y, 1e-12)
	assert.InDelta(t, 100.0/3.0, blobs[0].AvgTemp, 1e-12)
}

func TestSegmentPerCellThreshold(t *testing.T) {
	threshold := uniformGrid(25)
	threshold[0][1] = 35
	grid := uniformGrid(20)
	grid[0][0] = 30
	grid[0][1] = 30
	grid[0][2] = 30
	blobs := Segment(grid, threshold)
	// Middle cell is below its own threshold, so the row splits in two
	require.Len(t, blobs, 2)
	assert.Equal(t, mot.Point{X: 0, Y: 0}, blobs[0].Centroid)
	assert.Equal(t, mot.Point{X: 2, Y: 0}, blobs[1].Centroid)
}

func TestSegmentDeterministic(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	grid, threshold := randomFrame(rnd)
	first := Segment(grid, threshold)
	second := Segment(grid, threshold)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Segmentation is not deterministic (-first +second):\n%s", diff)
	}
}

func TestSegmentPartition(t *testing.T) {
	rnd := rand.New(rand.NewSource(2018))
	for iteration := 0; iteration < 200; iteration++ {
		grid, threshold := randomFrame(rnd)
		blobs := Segment(grid, threshold)

		owner := map[[2]int]int{}
		total := 0
		for b, blob := range blobs {
			require.Equal(t, len(blob.Cells), blob.Size)
			for _, cell := range blob.Cells {
				key := [2]int{cell.Row, cell.Col}
				_, seen := owner[key]
				require.False(t, seen, "cell %v claimed twice", key)
				owner[key] = b
				assert.Equal(t, grid[cell.Row][cell.Col], cell.Temp)
				total++
			}
		}

		expected := make([][2]int, 0)
		for row := 0; row < GridSize; row++ {
			for col := 0; col < GridSize; col++ {
				if grid[row][col] > threshold[row][col] {
					expected = append(expected, [2]int{row, col})
				}
			}
		}
		got := make([][2]int, 0, len(owner))
		for key := range owner {
			got = append(got, key)
		}
		sort.Slice(got, func(i, j int) bool {
			if got[i][0] != got[j][0] {
				return got[i][0] < got[j][0]
			}
			return got[i][1] < got[j][1]
		})
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Fatalf("Blob cells differ from above-threshold cells (-want +got):\n%s", diff)
		}
		assert.Equal(t, len(expected), ActiveCells(grid, threshold))

		// Cells of different blobs are never king-move neighbours
		for key, b := range owner {
			for _, dir := range neighbours {
				neighbour := [2]int{key[0] + dir[0], key[1] + dir[1]}
				if other, ok := owner[neighbour]; ok {
					assert.Equal(t, b, other, "cells %v and %v are adjacent but in different blobs", key, neighbour)
				}
			}
		}
	}
}

func randomFrame(rnd *rand.Rand) (Grid, Grid) {
	grid := Grid{}
	threshold := Grid{}
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			threshold[row][col] = 24 + rnd.Float64()
			grid[row][col] = 20 + rnd.Float64()*8
		}
	}
	return grid, threshold
}

func TestBlobImplementsDetection(t *testing.T) {
	var detection mot.Detection = Blob{Size: 3, Centroid: mot.Point{X: 1, Y: 2}, AvgTemp: 29}
	assert.Equal(t, 3, detection.GetSize())
	assert.Equal(t, mot.Point{X: 1, Y: 2}, detection.GetCenter())
	assert.Equal(t, 29.0, detection.GetAvgTemp())
}
