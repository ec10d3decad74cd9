package mot

import "github.com/pkg/errors"

var (
	// ErrNonPositiveDuration is returned when a track is updated with a timestamp which is not after its last match
	ErrNonPositiveDuration = errors.New("non-positive duration since last match")
	// ErrTrackInactive is returned when finished track is asked to be updated
	ErrTrackInactive = errors.New("track is inactive")
)
