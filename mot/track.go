package mot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// TrackState is lifecycle state of a track. The only transition is TrackActive -> TrackInactive
type TrackState uint8

const (
	TrackActive TrackState = iota
	TrackInactive
)

func (state TrackState) String() string {
	switch state {
	case TrackActive:
		return "active"
	case TrackInactive:
		return "inactive"
	default:
		return fmt.Sprintf("TrackState(%d)", uint8(state))
	}
}

// Track is a detection's identity followed across consecutive frames.
// Centroids, bearings, velocities and predictions always have exactly readings elements.
type Track struct {
	id        uuid.UUID
	state     TrackState
	startTime time.Time
	endTime   time.Time
	times     []time.Time
	readings  int

	centroids   []Point
	bearings    []float64
	velocities  []float64
	predictions []Point

	// Cumulative signed displacement along each axis
	xDis float64
	yDis float64
	// Total travelled path (not displacement)
	displacement float64
	// Seconds between first and latest match
	duration float64

	size    int
	minSize int
	maxSize int
	avgSize float64
	avgTemp float64

	matched bool
	motion  motionModel
}

// NewTrack creates active track from the detection using EMA prediction
func NewTrack(detection Detection, timestamp time.Time) *Track {
	return NewTrackWithMotion(detection, timestamp, PredictionEMA, 1.0)
}

// NewTrackWithMotion creates active track from the detection.
// dt is nominal time between frames and is used by PredictionKalman only
func NewTrackWithMotion(detection Detection, timestamp time.Time, mode PredictionMode, dt float64) *Track {
	center := detection.GetCenter()
	size := detection.GetSize()
	track := Track{
		id:          uuid.New(),
		state:       TrackActive,
		startTime:   timestamp,
		endTime:     timestamp,
		times:       make([]time.Time, 0, 10),
		readings:    1,
		centroids:   make([]Point, 0, 10),
		bearings:    make([]float64, 0, 10),
		velocities:  make([]float64, 0, 10),
		predictions: make([]Point, 0, 10),
		size:        size,
		minSize:     size,
		maxSize:     size,
		avgSize:     float64(size),
		avgTemp:     detection.GetAvgTemp(),
		matched:     true,
		motion:      newMotionModel(mode, center, dt),
	}
	track.times = append(track.times, timestamp)
	track.centroids = append(track.centroids, center)
	// Placeholders: there is no movement yet
	track.bearings = append(track.bearings, 0.0)
	track.velocities = append(track.velocities, 0.0)
	track.predictions = append(track.predictions, center)
	return &track
}

// Update appends the detection to the track and predicts position for the next frame
func (track *Track) Update(detection Detection, timestamp time.Time) error {
	if track.state != TrackActive {
		return errors.Wrapf(ErrTrackInactive, "track %s", track.id)
	}
	if !timestamp.After(track.endTime) {
		return errors.Wrapf(ErrNonPositiveDuration, "track %s: last match at %s, candidate at %s", track.id, track.endTime.Format(time.RFC3339Nano), timestamp.Format(time.RFC3339Nano))
	}
	center := detection.GetCenter()
	prev := track.centroids[len(track.centroids)-1]

	xDis := track.xDis + (center.X - prev.X)
	yDis := track.yDis + (center.Y - prev.Y)
	displacement := track.displacement + euclideanDistance(prev, center)
	duration := timestamp.Sub(track.startTime).Seconds()
	bearing := bearingDegrees(xDis, yDis)
	velocities := append(track.velocities, displacement/duration)

	prediction, err := track.motion.next(center, bearing, velocities)
	if err != nil {
		return errors.Wrapf(err, "Can't predict next position of track %s", track.id)
	}

	track.readings++
	track.endTime = timestamp
	track.times = append(track.times, timestamp)
	track.duration = duration
	track.xDis = xDis
	track.yDis = yDis
	track.displacement = displacement
	track.centroids = append(track.centroids, center)
	track.bearings = append(track.bearings, bearing)
	track.velocities = velocities
	track.predictions = append(track.predictions, prediction)

	// Running means instead of sums
	size := detection.GetSize()
	track.size = size
	if size > track.maxSize {
		track.maxSize = size
	}
	if size < track.minSize {
		track.minSize = size
	}
	n := float64(track.readings)
	track.avgSize += (float64(size) - track.avgSize) / n
	track.avgTemp += (detection.GetAvgTemp() - track.avgTemp) / n
	track.matched = true
	return nil
}

// Deactivate finishes the track. Finished track is never revived
func (track *Track) Deactivate() {
	track.state = TrackInactive
	track.matched = false
}

// GetID returns track's identifier
func (track *Track) GetID() uuid.UUID {
	return track.id
}

// GetState returns track's lifecycle state
func (track *Track) GetState() TrackState {
	return track.state
}

// IsActive returns true while track is followed
func (track *Track) IsActive() bool {
	return track.state == TrackActive
}

// IsMatched returns true if track has been matched (or created) on the latest frame
func (track *Track) IsMatched() bool {
	return track.matched
}

// GetStartTime returns timestamp of the first reading
func (track *Track) GetStartTime() time.Time {
	return track.startTime
}

// GetEndTime returns timestamp of the latest reading
func (track *Track) GetEndTime() time.Time {
	return track.endTime
}

// GetTimes returns timestamps of every reading. Be careful: this is not copy, but reference
func (track *Track) GetTimes() []time.Time {
	return track.times
}

// GetReadings returns number of frames the track has been seen on
func (track *Track) GetReadings() int {
	return track.readings
}

// GetCenter returns latest centroid
func (track *Track) GetCenter() Point {
	return track.centroids[len(track.centroids)-1]
}

// GetPrediction returns position predicted for the next frame
func (track *Track) GetPrediction() Point {
	return track.predictions[len(track.predictions)-1]
}

// GetCentroids returns centroid history. Be careful: this is not copy, but reference
func (track *Track) GetCentroids() []Point {
	return track.centroids
}

// GetBearings returns bearing history in degrees. First element is a placeholder
func (track *Track) GetBearings() []float64 {
	return track.bearings
}

// GetVelocities returns velocity history in cells per second. First element is a placeholder
func (track *Track) GetVelocities() []float64 {
	return track.velocities
}

// GetPredictions returns prediction history. First element is the creation centroid
func (track *Track) GetPredictions() []Point {
	return track.predictions
}

// GetDisplacement returns total travelled distance in cells
func (track *Track) GetDisplacement() float64 {
	return track.displacement
}

// GetDisplacementXY returns cumulative signed displacement along each axis
func (track *Track) GetDisplacementXY() (float64, float64) {
	return track.xDis, track.yDis
}

// GetDuration returns seconds between the first and the latest reading
func (track *Track) GetDuration() float64 {
	return track.duration
}

// GetSize returns size of the latest detection
func (track *Track) GetSize() int {
	return track.size
}

// GetSizeStats returns min, max and average size in cells
func (track *Track) GetSizeStats() (int, int, float64) {
	return track.minSize, track.maxSize, track.avgSize
}

// GetAvgTemp returns average temperature over all readings
func (track *Track) GetAvgTemp() float64 {
	return track.avgTemp
}

// AverageBearing returns mean bearing excluding the creation placeholder.
// Zero is returned for track with single reading
func (track *Track) AverageBearing() float64 {
	if len(track.bearings) < 2 {
		return 0
	}
	return stat.Mean(track.bearings[1:], nil)
}

// AverageVelocity returns exponentially weighted velocity excluding the creation placeholder
func (track *Track) AverageVelocity() float64 {
	if len(track.velocities) < 2 {
		return 0
	}
	return ema(track.velocities[1:])
}
