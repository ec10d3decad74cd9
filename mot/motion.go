package mot

import (
	"fmt"
	"strings"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// PredictionMode is for algorithm type for predicting track position on the next frame
type PredictionMode uint16

const (
	// PredictionEMA extrapolates half a step along the bearing using exponentially averaged velocity
	PredictionEMA PredictionMode = iota
	// PredictionKalman uses constant velocity 2D Kalman filter
	PredictionKalman
)

func (mode PredictionMode) String() string {
	switch mode {
	case PredictionEMA:
		return "ema"
	case PredictionKalman:
		return "kalman"
	default:
		return fmt.Sprintf("PredictionMode(%d)", uint16(mode))
	}
}

// ParsePredictionMode parses textual representation of PredictionMode
func ParsePredictionMode(s string) (PredictionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ema":
		return PredictionEMA, nil
	case "kalman":
		return PredictionKalman, nil
	default:
		return PredictionEMA, fmt.Errorf("unknown prediction mode '%s'", s)
	}
}

// motionModel estimates where a track will be seen on the next frame
type motionModel interface {
	// next is called after each accepted measurement. Velocities hold the full history including the newest value
	next(center Point, bearing float64, velocities []float64) (Point, error)
}

func newMotionModel(mode PredictionMode, center Point, dt float64) motionModel {
	switch mode {
	case PredictionKalman:
		return newKalmanMotion(center, dt)
	default:
		return emaMotion{}
	}
}

// emaMotion moves the latest centroid by half of the smoothed velocity along the current bearing
type emaMotion struct{}

func (emaMotion) next(center Point, bearing float64, velocities []float64) (Point, error) {
	return headingStep(center, bearing, ema(velocities)/2.0), nil
}

type kalmanMotion struct {
	tracker *kalman_filter.Kalman2D
}

func newKalmanMotion(center Point, dt float64) *kalmanMotion {
	if dt <= 0 {
		dt = 1.0
	}
	/* Kalman filter props */
	ux := 0.0
	uy := 0.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(center.X, center.Y))
	// Filter always waits for a measurement in predicted state
	kf.Predict()
	return &kalmanMotion{
		tracker: kf,
	}
}

func (motion *kalmanMotion) next(center Point, _ float64, _ []float64) (Point, error) {
	err := motion.tracker.Update(center.X, center.Y)
	if err != nil {
		return Point{}, errors.Wrap(err, "Can't update object tracker")
	}
	motion.tracker.Predict()
	stateX, stateY := motion.tracker.GetState()
	return Point{X: stateX, Y: stateY}, nil
}
