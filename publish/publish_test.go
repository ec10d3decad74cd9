package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/occupancy-go/occupancy"
)

type fakeToken struct {
	err      error
	complete bool
}

func (token *fakeToken) Wait() bool                     { return token.complete }
func (token *fakeToken) WaitTimeout(time.Duration) bool { return token.complete }
func (token *fakeToken) Error() error                   { return token.err }
func (token *fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	if token.complete {
		close(done)
	}
	return done
}

type sent struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	connected bool
	fail      error
	timeout   bool
	messages  []sent
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if c.fail == nil && !c.timeout {
		c.messages = append(c.messages, sent{topic: topic, qos: qos, payload: payload.([]byte)})
	}
	return &fakeToken{err: c.fail, complete: !c.timeout}
}
func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) Disconnect(uint)   { c.connected = false }

var testTime = time.Date(2017, 12, 4, 16, 20, 0, 0, time.UTC)

func testEvent(node int, direction occupancy.Direction) occupancy.Event {
	return occupancy.Event{
		NodeID:      node,
		Timestamp:   testTime,
		Direction:   direction,
		TrackID:     uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		AvgBearing:  90,
		AvgVelocity: 1.25,
		Readings:    4,
	}
}

func TestEncodeEvent(t *testing.T) {
	payload, err := EncodeEvent(testEvent(3, occupancy.Leaving))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"node_id": 3,
		"timestamp": "2017-12-04T16:20:00Z",
		"direction": "leaving",
		"track_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"avg_bearing": 90,
		"avg_velocity": 1.25,
		"readings": 4
	}`, string(payload))

	var decoded EventMessage
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, occupancy.Leaving, decoded.Direction)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "occupancy/events/12", EventTopic("occupancy/events", 12))
	assert.Equal(t, "occupancy/events/12/tally", TallyTopic("occupancy/events", 12))
}

func TestPublishEvents(t *testing.T) {
	c := &fakeClient{connected: true}
	publisher := newPublisher(c, Options{Topic: "occupancy/events", QoS: 1}, nil)
	events := []occupancy.Event{testEvent(1, occupancy.Entering), testEvent(2, occupancy.Leaving)}
	require.NoError(t, publisher.PublishEvents(context.Background(), events))
	require.Len(t, c.messages, 2)
	assert.Equal(t, "occupancy/events/1", c.messages[0].topic)
	assert.Equal(t, "occupancy/events/2", c.messages[1].topic)
	assert.Equal(t, byte(1), c.messages[1].qos)

	require.NoError(t, publisher.PublishTally(2, testTime, testTime.Add(time.Hour), occupancy.Count(events)))
	require.Len(t, c.messages, 3)
	assert.Equal(t, "occupancy/events/2/tally", c.messages[2].topic)
	assert.JSONEq(t, `{"node_id":2,"from":"2017-12-04T16:20:00Z","to":"2017-12-04T17:20:00Z","entering":1,"leaving":1}`, string(c.messages[2].payload))
	assert.Equal(t, Stats{Published: 3}, publisher.Stats())

	publisher.Disconnect()
	assert.False(t, c.connected)
}

func TestPublishFailures(t *testing.T) {
	events := []occupancy.Event{testEvent(1, occupancy.Entering)}

	publisher := newPublisher(&fakeClient{}, Options{Topic: "t"}, nil)
	err := publisher.PublishEvents(context.Background(), events)
	assert.True(t, errors.Is(err, ErrNotConnected))

	publisher = newPublisher(&fakeClient{connected: true, timeout: true}, Options{Topic: "t"}, nil)
	err = publisher.PublishEvents(context.Background(), events)
	assert.True(t, errors.Is(err, ErrPublishTimeout))

	broken := errors.New("broker refused")
	publisher = newPublisher(&fakeClient{connected: true, fail: broken}, Options{Topic: "t"}, nil)
	err = publisher.PublishEvents(context.Background(), events)
	assert.True(t, errors.Is(err, broken))
	assert.Equal(t, Stats{Failed: 1}, publisher.Stats())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = publisher.PublishEvents(ctx, events)
	assert.True(t, errors.Is(err, context.Canceled))
}
