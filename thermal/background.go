package thermal

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// BackgroundParams holds smoothing factors of the background model
type BackgroundParams struct {
	// Weight of a new empty-room sample in exponential background estimate. Default 0.05
	InactiveAlpha float64
	// Weight of a new drift correction sample. Default 0.01
	ActiveAlpha float64
	// Number of coldest cells used to estimate drift scale. Default 5
	ReferenceCells int
}

// DefaultBackgroundParams returns smoothing factors observed on real deployments
func DefaultBackgroundParams() BackgroundParams {
	return BackgroundParams{
		InactiveAlpha:  0.05,
		ActiveAlpha:    0.01,
		ReferenceCells: 5,
	}
}

// BackgroundModel is per-node estimate of ambient temperature and empty-room variance.
// It is a value: update methods return updated copy and never modify the receiver.
type BackgroundModel struct {
	NodeID int
	// Exponentially weighted ambient temperature per cell (row-major)
	Background [CellsCount]float64
	// Welford statistics of empty-room samples
	Mean        [CellsCount]float64
	SumSqDiff   [CellsCount]float64
	SampleCount int
	// Timestamp of the latest calibration sample
	UpdatedAt time.Time
}

// NewBackgroundModel returns empty model for the node
func NewBackgroundModel(nodeID int) BackgroundModel {
	return BackgroundModel{
		NodeID: nodeID,
	}
}

// HasBackground returns true when the model has seen at least one empty-room sample
func (model BackgroundModel) HasBackground() bool {
	return model.SampleCount > 0
}

// UpdateInactive applies empty-room sample: exponential background update plus Welford statistics.
// The first sample seeds the background
func (model BackgroundModel) UpdateInactive(grid Grid, params BackgroundParams) BackgroundModel {
	flat := grid.Flatten()
	if model.SampleCount == 0 {
		model.Background = flat
		model.Mean = flat
		model.SumSqDiff = [CellsCount]float64{}
		model.SampleCount = 1
		return model
	}
	alpha := params.InactiveAlpha
	model.SampleCount++
	n := float64(model.SampleCount)
	for i, value := range flat {
		model.Background[i] = (1.0-alpha)*model.Background[i] + alpha*value
		delta1 := value - model.Mean[i]
		model.Mean[i] += delta1 / n
		delta2 := value - model.Mean[i]
		model.SumSqDiff[i] += delta1 * delta2
	}
	return model
}

// UpdateActive applies drift correction sample taken while the room may be occupied.
// Background is rescaled by the coldest cells, Welford statistics are untouched
func (model BackgroundModel) UpdateActive(grid Grid, params BackgroundParams) (BackgroundModel, error) {
	if !model.HasBackground() {
		return model, errors.Wrapf(ErrNoBackground, "node %d", model.NodeID)
	}
	flat := grid.Flatten()
	refCells := params.ReferenceCells
	if refCells <= 0 || refCells > CellsCount {
		refCells = DefaultBackgroundParams().ReferenceCells
	}

	indices := make([]int, CellsCount)
	for i := range indices {
		indices[i] = i
	}
	// Coldest cells are the least likely to be covered by a person. Ties go to the lower index
	sort.SliceStable(indices, func(i, j int) bool {
		return flat[indices[i]] < flat[indices[j]]
	})

	scaleSum := 0.0
	used := 0
	for _, idx := range indices[:refCells] {
		if flat[idx] == 0 {
			continue
		}
		scaleSum += model.Background[idx] / flat[idx]
		used++
	}
	if used == 0 {
		return model, errors.Wrapf(ErrDegenerateSample, "node %d", model.NodeID)
	}
	bgScale := scaleSum / float64(used)

	beta := params.ActiveAlpha
	for i, value := range flat {
		model.Background[i] = (1.0-beta)*model.Background[i] + beta*bgScale*value
	}
	return model, nil
}

// StdDev returns sample standard deviation of empty-room temperature per cell
func (model BackgroundModel) StdDev() ([CellsCount]float64, error) {
	stdDev := [CellsCount]float64{}
	if model.SampleCount < 2 {
		return stdDev, errors.Wrapf(ErrNotEnoughSamples, "node %d has %d samples", model.NodeID, model.SampleCount)
	}
	denominator := float64(model.SampleCount - 1)
	for i := range model.SumSqDiff {
		// Welford sum can drift slightly below zero for constant input
		stdDev[i] = math.Sqrt(math.Max(model.SumSqDiff[i], 0) / denominator)
	}
	return stdDev, nil
}

// Threshold returns per-cell cutoff background + kSigma * stdDev. Cells above it are considered occupied
func (model BackgroundModel) Threshold(kSigma float64) (Grid, error) {
	threshold := Grid{}
	stdDev, err := model.StdDev()
	if err != nil {
		return threshold, errors.Wrap(err, "Can't calculate threshold")
	}
	for i := range stdDev {
		threshold[i/GridSize][i%GridSize] = model.Background[i] + kSigma*stdDev[i]
	}
	return threshold, nil
}
