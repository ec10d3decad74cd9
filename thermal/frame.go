package thermal

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// GridSize is number of rows (and columns) of the sensor
	GridSize = 8
	// CellsCount is number of cells in a single frame
	CellsCount = GridSize * GridSize
)

// Grid is a single 8x8 snapshot of temperature-like values. Indexed as [row][column]
type Grid [GridSize][GridSize]float64

// GridFromSlice builds grid from row-major values
func GridFromSlice(values []float64) (Grid, error) {
	grid := Grid{}
	if len(values) != CellsCount {
		return grid, errors.Wrapf(ErrWrongCellsCount, "got %d values", len(values))
	}
	for i, value := range values {
		grid[i/GridSize][i%GridSize] = value
	}
	return grid, nil
}

// Flatten returns row-major values of the grid
func (grid Grid) Flatten() [CellsCount]float64 {
	flat := [CellsCount]float64{}
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			flat[row*GridSize+col] = grid[row][col]
		}
	}
	return flat
}

// FrameKind is the calibration tag carried with a frame
type FrameKind uint8

const (
	// FrameData is regular sample which should be tracked
	FrameData FrameKind = iota
	// FrameInactiveCalibration is sample of the empty room
	FrameInactiveCalibration
	// FrameActiveCalibration is sample of possibly occupied room used for drift correction
	FrameActiveCalibration
)

func (kind FrameKind) String() string {
	switch kind {
	case FrameData:
		return "data"
	case FrameInactiveCalibration:
		return "inactive"
	case FrameActiveCalibration:
		return "active"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(kind))
	}
}

// ParseFrameKind parses textual representation of FrameKind
func ParseFrameKind(s string) (FrameKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data":
		return FrameData, nil
	case "inactive":
		return FrameInactiveCalibration, nil
	case "active":
		return FrameActiveCalibration, nil
	default:
		return FrameData, fmt.Errorf("unknown frame kind '%s'", s)
	}
}

// Frame is one timestamped snapshot of a node. Frames are passed by value and never modified
type Frame struct {
	NodeID    int
	Timestamp time.Time
	Kind      FrameKind
	Grid      Grid
}

// IsCalibration returns true for frames which update background instead of being tracked
func (frame Frame) IsCalibration() bool {
	return frame.Kind == FrameInactiveCalibration || frame.Kind == FrameActiveCalibration
}
