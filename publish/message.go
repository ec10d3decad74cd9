package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LdDl/occupancy-go/occupancy"
)

// EventMessage is JSON payload of single occupancy event
type EventMessage struct {
	NodeID      int                 `json:"node_id"`
	Timestamp   time.Time           `json:"timestamp"`
	Direction   occupancy.Direction `json:"direction"`
	TrackID     string              `json:"track_id"`
	AvgBearing  float64             `json:"avg_bearing"`
	AvgVelocity float64             `json:"avg_velocity"`
	Readings    int                 `json:"readings"`
}

// TallyMessage is JSON payload of counts over analysed interval
type TallyMessage struct {
	NodeID   int       `json:"node_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Entering int       `json:"entering"`
	Leaving  int       `json:"leaving"`
}

// NewEventMessage converts event to its wire form
func NewEventMessage(event occupancy.Event) EventMessage {
	return EventMessage{
		NodeID:      event.NodeID,
		Timestamp:   event.Timestamp.UTC(),
		Direction:   event.Direction,
		TrackID:     event.TrackID.String(),
		AvgBearing:  event.AvgBearing,
		AvgVelocity: event.AvgVelocity,
		Readings:    event.Readings,
	}
}

// EncodeEvent returns JSON payload of the event
func EncodeEvent(event occupancy.Event) ([]byte, error) {
	return json.Marshal(NewEventMessage(event))
}

// EventTopic returns topic for events of the node: <base>/<node>
func EventTopic(base string, nodeID int) string {
	return fmt.Sprintf("%s/%d", base, nodeID)
}

// TallyTopic returns topic for counts of the node: <base>/<node>/tally
func TallyTopic(base string, nodeID int) string {
	return EventTopic(base, nodeID) + "/tally"
}
