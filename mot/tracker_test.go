package mot

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewTrackerDefault(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	if tracker.acceptanceRadius != 5.0 {
		t.Errorf("Expected default acceptance radius 5.0, got %f", tracker.acceptanceRadius)
	}
	if tracker.algorithm != MatchingAlgorithmHungarian {
		t.Errorf("Expected default algorithm %s, got %s", MatchingAlgorithmHungarian, tracker.algorithm)
	}
	if tracker.prediction != PredictionEMA {
		t.Errorf("Expected default prediction %s, got %s", PredictionEMA, tracker.prediction)
	}
}

func TestTrackerTwoFrameScenario(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	if _, err := tracker.MatchObjects(baseTime, []testBlob{newTestBlob(2, 2, 3)}); err != nil {
		t.Fatal(err)
	}
	report, err := tracker.MatchObjects(baseTime.Add(2*time.Second), []testBlob{newTestBlob(2, 5, 3)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 1 || len(report.Spawned) != 0 || len(report.Ended) != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	tracks := tracker.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("Expected 1 track, got %d", len(tracks))
	}
	track := tracks[0]
	if track.GetReadings() != 2 {
		t.Errorf("Expected 2 readings, got %d", track.GetReadings())
	}
	if math.Abs(track.GetBearings()[1]) > eps {
		t.Errorf("Expected bearing 0, got %f", track.GetBearings()[1])
	}
	if math.Abs(track.GetVelocities()[1]-1.5) > eps {
		t.Errorf("Expected velocity 1.5, got %f", track.GetVelocities()[1])
	}
}

func TestTrackerEmptyFrameEndsEverything(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(1, 1, 1), newTestBlob(6, 6, 1)})
	report, err := tracker.MatchObjects(baseTime.Add(time.Second), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Ended) != 2 {
		t.Errorf("Expected 2 ended tracks, got %d", len(report.Ended))
	}
	if len(tracker.ActiveTracks()) != 0 {
		t.Errorf("Expected no active tracks, got %d", len(tracker.ActiveTracks()))
	}
	if len(tracker.FinishedTracks()) != 2 {
		t.Errorf("Expected 2 finished tracks, got %d", len(tracker.FinishedTracks()))
	}
}

func TestTrackerAcceptanceRadius(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(0, 0, 1)})
	// 6 cells away from the prediction
	report, err := tracker.MatchObjects(baseTime.Add(time.Second), []testBlob{newTestBlob(0, 6, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 0 || len(report.Spawned) != 1 || len(report.Ended) != 1 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	tracks := tracker.Tracks()
	if tracks[0].IsActive() || !tracks[1].IsActive() {
		t.Error("Old track should end and new track should start")
	}
}

func TestTrackerSingleTrackTakesNearest(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(3, 3, 2)})
	report, err := tracker.MatchObjects(baseTime.Add(time.Second), []testBlob{
		newTestBlob(0, 7, 1),
		newTestBlob(3, 4, 2),
		newTestBlob(7, 0, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 1 || len(report.Spawned) != 2 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	first := tracker.Tracks()[0]
	if first.GetCenter() != (Point{X: 4, Y: 3}) {
		t.Errorf("Track should follow the nearest detection, got %v", first.GetCenter())
	}
}

func TestTrackerHungarianOptimal(t *testing.T) {
	tracker := NewTracker[testBlob](5.0, MatchingAlgorithmHungarian)
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(0, 0, 1), newTestBlob(0, 2, 1)})
	// Greedy would give (B, 1.5) first and then (A, 4): total 4.5. Optimal is (A, 1.5) + (B, 4): total 3.5
	report, err := tracker.MatchObjects(baseTime.Add(time.Second), []testBlob{newTestBlob(0, 1.5, 1), newTestBlob(0, 4, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 2 || len(report.Spawned) != 0 || len(report.Ended) != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	tracks := tracker.Tracks()
	if tracks[0].GetCenter().X != 1.5 || tracks[1].GetCenter().X != 4 {
		t.Errorf("Wrong assignment: A -> %v, B -> %v", tracks[0].GetCenter(), tracks[1].GetCenter())
	}
}

func TestTrackerHungarianCrossingCandidates(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(6, 6, 1), newTestBlob(3, 5, 1)})
	// A->(4,5) + B->(3,3) costs 2.236+2 = 4.236, the swapped pairing costs 4.243+1 = 5.243
	report, err := tracker.MatchObjects(baseTime.Add(time.Second), []testBlob{newTestBlob(4, 5, 1), newTestBlob(3, 3, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 2 || len(report.Spawned) != 0 || len(report.Ended) != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	tracks := tracker.Tracks()
	if tracks[0].GetCenter() != (Point{X: 5, Y: 4}) || tracks[1].GetCenter() != (Point{X: 3, Y: 3}) {
		t.Errorf("Wrong assignment: A -> %v, B -> %v", tracks[0].GetCenter(), tracks[1].GetCenter())
	}
}

func TestTrackerGreedyMatching(t *testing.T) {
	tracker := NewTracker[testBlob](5.0, MatchingAlgorithmGreedy)
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(0, 0, 1), newTestBlob(0, 2, 1)})
	_, err := tracker.MatchObjects(baseTime.Add(time.Second), []testBlob{newTestBlob(0, 1.5, 1), newTestBlob(0, 4, 1)})
	if err != nil {
		t.Fatal(err)
	}
	tracks := tracker.Tracks()
	if tracks[0].GetCenter().X != 4 || tracks[1].GetCenter().X != 1.5 {
		t.Errorf("Wrong assignment: A -> %v, B -> %v", tracks[0].GetCenter(), tracks[1].GetCenter())
	}
}

func TestTrackerRectangularAssignment(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(0, 0, 1), newTestBlob(4, 4, 1), newTestBlob(7, 7, 1)})
	// More tracks than detections
	report, err := tracker.MatchObjects(baseTime.Add(time.Second), []testBlob{newTestBlob(4, 5, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 1 || len(report.Ended) != 2 || len(report.Spawned) != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	if tracker.Tracks()[1].GetReadings() != 2 {
		t.Error("Middle track should have been updated")
	}
	// More detections than tracks
	report, err = tracker.MatchObjects(baseTime.Add(2*time.Second), []testBlob{newTestBlob(0, 0, 1), newTestBlob(4, 6, 1), newTestBlob(7, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 1 || len(report.Spawned) != 2 || len(report.Ended) != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}
}

func TestTrackerDuplicateTimestamp(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(2, 2, 1)})
	report, err := tracker.MatchObjects(baseTime, []testBlob{newTestBlob(2, 3, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Updated) != 0 || len(report.Spawned) != 1 || len(report.Ended) != 1 {
		t.Fatalf("Pair with zero duration should be a non-match: %+v", report)
	}
}

func TestTrackerConservationAndTermination(t *testing.T) {
	frames := [][]testBlob{
		{newTestBlob(0, 1, 2)},
		{newTestBlob(1, 1, 2), newTestBlob(6, 6, 1)},
		{newTestBlob(2, 1, 3), newTestBlob(6, 5, 1), newTestBlob(0, 7, 1)},
		{},
		{newTestBlob(2, 1, 3)},
		{newTestBlob(3, 1, 3), newTestBlob(3, 2, 1)},
		{newTestBlob(4, 2, 2)},
	}
	tracker := NewTrackerDefault[testBlob]()
	finishedReadings := make(map[uuid.UUID]int)
	totalDetections := 0
	for i, frame := range frames {
		report, err := tracker.MatchObjects(baseTime.Add(time.Duration(i)*time.Second), frame)
		if err != nil {
			t.Fatal(err)
		}
		totalDetections += len(frame)
		if len(report.Updated)+len(report.Spawned) != len(frame) {
			t.Errorf("Frame %d: %d detections, %d updated, %d spawned", i, len(frame), len(report.Updated), len(report.Spawned))
		}
		seen := make(map[uuid.UUID]struct{})
		for _, id := range report.Updated {
			if _, ok := seen[id]; ok {
				t.Errorf("Frame %d: track %s updated twice", i, id)
			}
			seen[id] = struct{}{}
		}
		for _, track := range tracker.Tracks() {
			if track.IsActive() {
				continue
			}
			if readings, ok := finishedReadings[track.GetID()]; ok {
				if readings != track.GetReadings() {
					t.Errorf("Finished track %s has been mutated", track.GetID())
				}
				continue
			}
			finishedReadings[track.GetID()] = track.GetReadings()
		}
	}
	tracker.Finish()
	totalReadings := 0
	for _, track := range tracker.Tracks() {
		if track.IsActive() {
			t.Errorf("Track %s should be finished", track.GetID())
		}
		totalReadings += track.GetReadings()
		checkTrackInvariant(t, track)
	}
	if totalReadings != totalDetections {
		t.Errorf("Every detection should be exactly one reading: %d readings, %d detections", totalReadings, totalDetections)
	}
}

func TestTrackerNotRevived(t *testing.T) {
	tracker := NewTrackerDefault[testBlob]()
	_, _ = tracker.MatchObjects(baseTime, []testBlob{newTestBlob(2, 2, 1)})
	_, _ = tracker.MatchObjects(baseTime.Add(time.Second), nil)
	_, _ = tracker.MatchObjects(baseTime.Add(2*time.Second), []testBlob{newTestBlob(2, 2, 1)})
	tracks := tracker.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("Expected fresh track, got %d tracks", len(tracks))
	}
	if tracks[0].GetReadings() != 1 || tracks[0].IsActive() {
		t.Error("Finished track should stay untouched")
	}
}

func TestTrackerKalmanPrediction(t *testing.T) {
	tracker := NewTracker[testBlob](5.0, MatchingAlgorithmHungarian, WithPrediction(PredictionKalman, 1.0))
	for i := 0; i < 6; i++ {
		_, err := tracker.MatchObjects(baseTime.Add(time.Duration(i)*time.Second), []testBlob{newTestBlob(3, float64(i), 2)})
		if err != nil {
			t.Fatal(err)
		}
	}
	tracks := tracker.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("Expected single track, got %d", len(tracks))
	}
	if tracks[0].GetReadings() != 6 {
		t.Errorf("Expected 6 readings, got %d", tracks[0].GetReadings())
	}
	checkTrackInvariant(t, tracks[0])
}
