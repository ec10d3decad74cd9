package thermal

import "github.com/pkg/errors"

var (
	// ErrNotEnoughSamples is returned when standard deviation is requested before two empty-room samples have been seen
	ErrNotEnoughSamples = errors.New("insufficient calibration data")
	// ErrNoBackground is returned by drift correction for a node which has never been calibrated
	ErrNoBackground = errors.New("no background for node")
	// ErrDegenerateSample is returned when every reference cell of a drift correction sample reads zero
	ErrDegenerateSample = errors.New("reference cells read zero")
	// ErrWrongCellsCount is returned when grid is built from wrong number of values
	ErrWrongCellsCount = errors.New("wrong number of cells")
	// ErrNotCalibration is returned when data frame is applied to background
	ErrNotCalibration = errors.New("frame is not a calibration sample")
)
