package occupancy

import (
	"time"

	"github.com/google/uuid"

	"github.com/LdDl/occupancy-go/mot"
)

// Event is a single person crossing the monitored area
type Event struct {
	NodeID    int
	Timestamp time.Time
	Direction Direction
	TrackID   uuid.UUID
	// Mean bearing of the track in degrees, creation placeholder excluded
	AvgBearing float64
	// Smoothed velocity of the track in cells per second
	AvgVelocity float64
	Readings    int
}

// Classifier turns finished tracks into occupancy events
type Classifier struct {
	// Tracks with readings not greater than this are treated as noise. Default 2
	MinReadings int
	// Tracks with readings not less than this are treated as stationary objects. Default 10
	MaxReadings int
	// Direction reported for positive average bearing. Depends on sensor orientation. Default Leaving
	PositiveBearing Direction
}

// NewClassifierDefault creates classifier with empirical reading band (2; 10)
func NewClassifierDefault() Classifier {
	return Classifier{
		MinReadings:     2,
		MaxReadings:     10,
		PositiveBearing: Leaving,
	}
}

// Qualifies returns true when finished track is neither noise nor a stationary object
func (classifier Classifier) Qualifies(track *mot.Track) bool {
	if track.IsActive() {
		return false
	}
	readings := track.GetReadings()
	return classifier.MinReadings < readings && readings < classifier.MaxReadings
}

// DirectionOf returns direction for the given average bearing
func (classifier Classifier) DirectionOf(avgBearing float64) Direction {
	if avgBearing > 0 {
		return classifier.PositiveBearing
	}
	return classifier.PositiveBearing.Opposite()
}

// Classify emits one event per qualifying finished track, in order of tracks
func (classifier Classifier) Classify(nodeID int, tracks []*mot.Track) []Event {
	events := make([]Event, 0)
	for _, track := range tracks {
		if !classifier.Qualifies(track) {
			continue
		}
		avgBearing := track.AverageBearing()
		events = append(events, Event{
			NodeID:      nodeID,
			Timestamp:   track.GetStartTime(),
			Direction:   classifier.DirectionOf(avgBearing),
			TrackID:     track.GetID(),
			AvgBearing:  avgBearing,
			AvgVelocity: track.AverageVelocity(),
			Readings:    track.GetReadings(),
		})
	}
	return events
}

// Tally is number of people moved in each direction
type Tally struct {
	Entering int
	Leaving  int
}

// Count sums events by direction
func Count(events []Event) Tally {
	tally := Tally{}
	for _, event := range events {
		switch event.Direction {
		case Entering:
			tally.Entering++
		case Leaving:
			tally.Leaving++
		}
	}
	return tally
}
