package mot

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Tracker is frame-to-frame multi-object tracker (MOT) for a handful of objects.
// A track lives while it is matched on every frame: the first frame without a match finishes it for good.
// D is the detection type implementing Detection interface.
type Tracker[D Detection] struct {
	// Pairs with distance (in grid cells) between prediction and detection not less than this are rejected. Default 5.0
	acceptanceRadius float64
	// Algorithm to use for matching when more than one track is active
	algorithm MatchingAlgorithm
	// Motion model for new tracks
	prediction PredictionMode
	// Nominal time between frames for PredictionKalman
	kalmanDt float64
	// Tracks which are still followed, in creation order
	active []*Track
	// Every track ever created, in creation order
	tracks []*Track
}

// TrackerOption configures optional parameters of Tracker
type TrackerOption func(*trackerOptions)

type trackerOptions struct {
	prediction PredictionMode
	kalmanDt   float64
}

// WithPrediction sets motion model for new tracks. dt is nominal time between frames and used by PredictionKalman only
func WithPrediction(mode PredictionMode, dt float64) TrackerOption {
	return func(opts *trackerOptions) {
		opts.prediction = mode
		opts.kalmanDt = dt
	}
}

// NewTrackerDefault creates default instance of Tracker
func NewTrackerDefault[D Detection]() *Tracker[D] {
	return NewTracker[D](5.0, MatchingAlgorithmHungarian)
}

// NewTracker creates new instance of Tracker
func NewTracker[D Detection](acceptanceRadius float64, algorithm MatchingAlgorithm, options ...TrackerOption) *Tracker[D] {
	opts := trackerOptions{
		prediction: PredictionEMA,
		kalmanDt:   1.0,
	}
	for _, option := range options {
		option(&opts)
	}
	return &Tracker[D]{
		acceptanceRadius: acceptanceRadius,
		algorithm:        algorithm,
		prediction:       opts.prediction,
		kalmanDt:         opts.kalmanDt,
		active:           make([]*Track, 0),
		tracks:           make([]*Track, 0),
	}
}

// FrameReport describes what happened to tracks on a single frame.
// Every detection either updated exactly one track or spawned exactly one: len(Updated)+len(Spawned) == number of detections
type FrameReport struct {
	Updated []uuid.UUID
	Spawned []uuid.UUID
	Ended   []uuid.UUID
}

// MatchObjects matches detections of the frame taken at timestamp with active tracks.
// Matched tracks are updated, unmatched tracks finish, unmatched detections start new tracks
func (tracker *Tracker[D]) MatchObjects(timestamp time.Time, detections []D) (FrameReport, error) {
	report := FrameReport{}
	for _, track := range tracker.active {
		track.matched = false
	}

	// Nothing on the frame: everything finishes
	if len(detections) == 0 {
		for _, track := range tracker.active {
			track.Deactivate()
			report.Ended = append(report.Ended, track.GetID())
		}
		tracker.active = make([]*Track, 0)
		return report, nil
	}

	matchedDetections := make([]bool, len(detections))
	if len(tracker.active) > 0 {
		distanceMatrix := tracker.createDistanceMatrix(detections)
		matches := tracker.performMatching(distanceMatrix)
		for _, match := range matches {
			trackIdx := match[0]
			detIdx := match[1]
			if distanceMatrix[trackIdx][detIdx] >= tracker.acceptanceRadius {
				continue
			}
			track := tracker.active[trackIdx]
			err := track.Update(detections[detIdx], timestamp)
			if err != nil {
				if errors.Is(err, ErrNonPositiveDuration) {
					// Duplicate or out-of-order timestamp: treat as non-match
					continue
				}
				return report, errors.Wrapf(err, "Can't update track with id %s", track.GetID())
			}
			matchedDetections[detIdx] = true
			report.Updated = append(report.Updated, track.GetID())
		}
	}

	stillActive := make([]*Track, 0, len(tracker.active)+len(detections))
	for _, track := range tracker.active {
		if track.matched {
			stillActive = append(stillActive, track)
			continue
		}
		track.Deactivate()
		report.Ended = append(report.Ended, track.GetID())
	}
	for j := range detections {
		if matchedDetections[j] {
			continue
		}
		track := NewTrackWithMotion(detections[j], timestamp, tracker.prediction, tracker.kalmanDt)
		stillActive = append(stillActive, track)
		tracker.tracks = append(tracker.tracks, track)
		report.Spawned = append(report.Spawned, track.GetID())
	}
	tracker.active = stillActive
	return report, nil
}

// Finish finishes every active track (e.g. when the frame sequence is over) and returns their identifiers
func (tracker *Tracker[D]) Finish() []uuid.UUID {
	ended := make([]uuid.UUID, 0, len(tracker.active))
	for _, track := range tracker.active {
		track.Deactivate()
		ended = append(ended, track.GetID())
	}
	tracker.active = make([]*Track, 0)
	return ended
}

// Tracks returns every track ever created in creation order
func (tracker *Tracker[D]) Tracks() []*Track {
	tracks := make([]*Track, len(tracker.tracks))
	copy(tracks, tracker.tracks)
	return tracks
}

// ActiveTracks returns tracks which are still followed
func (tracker *Tracker[D]) ActiveTracks() []*Track {
	tracks := make([]*Track, len(tracker.active))
	copy(tracks, tracker.active)
	return tracks
}

// FinishedTracks returns terminal tracks in creation order
func (tracker *Tracker[D]) FinishedTracks() []*Track {
	tracks := make([]*Track, 0, len(tracker.tracks))
	for _, track := range tracker.tracks {
		if track.GetState() == TrackInactive {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// createDistanceMatrix is helper function to create distance matrix: rows = active tracks, columns = detections.
// Distance is measured from the latest prediction of a track, not from its latest centroid
func (tracker *Tracker[D]) createDistanceMatrix(detections []D) [][]float64 {
	distanceMatrix := make([][]float64, len(tracker.active))
	for i, track := range tracker.active {
		prediction := track.GetPrediction()
		row := make([]float64, len(detections))
		for j := range detections {
			row[j] = euclideanDistance(prediction, detections[j].GetCenter())
		}
		distanceMatrix[i] = row
	}
	return distanceMatrix
}

// performMatching is helper function to perform matching using Hungarian or Greedy algorithm.
// A single track is always paired greedily with the nearest detection
func (tracker *Tracker[D]) performMatching(distanceMatrix [][]float64) [][2]int {
	if len(distanceMatrix) == 1 {
		return performGreedyMatching(distanceMatrix)
	}
	switch tracker.algorithm {
	case MatchingAlgorithmHungarian:
		return performHungarianMatching(distanceMatrix)
	case MatchingAlgorithmGreedy:
		return performGreedyMatching(distanceMatrix)
	default:
		return performGreedyMatching(distanceMatrix)
	}
}
