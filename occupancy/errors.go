package occupancy

import "github.com/pkg/errors"

var (
	// ErrOutOfOrder is returned for a frame older than the previous frame of the same node
	ErrOutOfOrder = errors.New("frame is older than previous one")
	// ErrNoThreshold is returned for a data frame arriving before the node's threshold could be derived
	ErrNoThreshold = errors.New("threshold is not available")
	// ErrWrongNode is returned when engine receives a frame of another node
	ErrWrongNode = errors.New("frame belongs to another node")
	// ErrBadConfig is returned for invalid engine configuration
	ErrBadConfig = errors.New("bad engine configuration")
)
