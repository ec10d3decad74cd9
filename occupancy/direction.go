package occupancy

import (
	"fmt"
	"strings"
)

// Direction of movement through the doorway
type Direction uint8

const (
	Entering Direction = iota
	Leaving
)

func (direction Direction) String() string {
	switch direction {
	case Entering:
		return "entering"
	case Leaving:
		return "leaving"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(direction))
	}
}

// Opposite returns the other direction
func (direction Direction) Opposite() Direction {
	if direction == Leaving {
		return Entering
	}
	return Leaving
}

// ParseDirection parses textual representation of Direction
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entering", "enter", "in":
		return Entering, nil
	case "leaving", "leave", "out":
		return Leaving, nil
	default:
		return Entering, fmt.Errorf("unknown direction '%s'", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (direction Direction) MarshalText() ([]byte, error) {
	if direction != Entering && direction != Leaving {
		return nil, fmt.Errorf("unknown direction %d", uint8(direction))
	}
	return []byte(direction.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (direction *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*direction = parsed
	return nil
}
