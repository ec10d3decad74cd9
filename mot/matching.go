package mot

import (
	"fmt"
	"sort"
	"strings"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("MatchingAlgorithm(%d)", uint16(algorithm))
	}
}

// ParseMatchingAlgorithm parses textual representation of MatchingAlgorithm
func ParseMatchingAlgorithm(s string) (MatchingAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hungarian":
		return MatchingAlgorithmHungarian, nil
	case "greedy":
		return MatchingAlgorithmGreedy, nil
	default:
		return MatchingAlgorithmHungarian, fmt.Errorf("unknown matching algorithm '%s'", s)
	}
}

// performHungarianMatching solves rectangular minimum-cost assignment over distance matrix (rows = tracks, columns = detections).
// Returns: a slice of [2]int, where each element is {trackIndex, detectionIndex}, sorted by track index.
func performHungarianMatching(distanceMatrix [][]float64) [][2]int {
	numTracks := len(distanceMatrix)
	if numTracks == 0 {
		return [][2]int{}
	}
	numDetections := len(distanceMatrix[0])
	if numDetections == 0 {
		return [][2]int{}
	}
	assignments := hungarianAssign(distanceMatrix)
	matches := make([][2]int, 0, min(numTracks, numDetections))
	for trackIndex, detectionIndex := range assignments {
		if detectionIndex < 0 {
			continue
		}
		matches = append(matches, [2]int{trackIndex, detectionIndex})
	}
	return matches
}

// performGreedyMatching pairs tracks and detections by ascending distance. Each track and each detection is used at most once.
// For a single track it picks the nearest detection.
func performGreedyMatching(distanceMatrix [][]float64) [][2]int {
	matches := make([][2]int, 0)
	numTracks := len(distanceMatrix)
	if numTracks == 0 {
		return matches
	}
	numDetections := len(distanceMatrix[0])
	if numDetections == 0 {
		return matches
	}
	priorityQueue := make(distanceHeap, 0, numTracks*numDetections)
	for i := 0; i < numTracks; i++ {
		for j := 0; j < numDetections; j++ {
			priorityQueue.Push(&distanceCandidate{
				trackIdx:     i,
				detectionIdx: j,
				distance:     distanceMatrix[i][j],
			})
		}
	}
	// We need to prevent double use of tracks and detections
	reservedTracks := make(map[int]struct{}, numTracks)
	reservedDetections := make(map[int]struct{}, numDetections)
	for priorityQueue.Len() > 0 && len(reservedTracks) < numTracks && len(reservedDetections) < numDetections {
		candidate := priorityQueue.Pop()
		if _, ok := reservedTracks[candidate.trackIdx]; ok {
			continue
		}
		if _, ok := reservedDetections[candidate.detectionIdx]; ok {
			continue
		}
		reservedTracks[candidate.trackIdx] = struct{}{}
		reservedDetections[candidate.detectionIdx] = struct{}{}
		matches = append(matches, [2]int{candidate.trackIdx, candidate.detectionIdx})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i][0] < matches[j][0]
	})
	return matches
}
