package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/occupancy"
)

var (
	ErrNotConnected   = errors.New("mqtt not connected")
	ErrPublishTimeout = errors.New("publish timeout")
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// client is the part of mqtt.Client used for publishing
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Options contains broker settings
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTPublisher publishes occupancy events to MQTT broker
type MQTTPublisher struct {
	opts   Options
	client client
	logger *slog.Logger

	mu        sync.Mutex
	published uint64
	failed    uint64
}

// Stats contains publisher counters
type Stats struct {
	Published uint64
	Failed    uint64
}

// Connect connects to the broker. Broker without scheme is treated as tcp://host:port
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	broker := opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.OnConnect = func(c mqtt.Client) {
		logger.Info("publish: mqtt connection established", "broker", broker, "client_id", opts.ClientID)
	}
	clientOpts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("publish: mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	mqttClient := mqtt.NewClient(clientOpts)
	token := mqttClient.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return nil, errors.Errorf("mqtt connection to %s timed out", broker)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connection to %s failed", broker)
	}
	return newPublisher(mqttClient, opts, logger), nil
}

func newPublisher(c client, opts Options, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTPublisher{
		opts:   opts,
		client: c,
		logger: logger,
	}
}

func (publisher *MQTTPublisher) publish(topic string, payload []byte) error {
	if !publisher.client.IsConnected() {
		publisher.count(false)
		return ErrNotConnected
	}
	token := publisher.client.Publish(topic, publisher.opts.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		publisher.count(false)
		return errors.Wrapf(ErrPublishTimeout, "topic %s", topic)
	}
	if err := token.Error(); err != nil {
		publisher.count(false)
		return errors.Wrapf(err, "Can't publish to %s", topic)
	}
	publisher.count(true)
	publisher.logger.Debug("publish: message sent", "topic", topic, "qos", publisher.opts.QoS, "size", len(payload))
	return nil
}

func (publisher *MQTTPublisher) count(ok bool) {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if ok {
		publisher.published++
	} else {
		publisher.failed++
	}
}

// PublishEvents sends every event to its node topic. Stops at first failure
func (publisher *MQTTPublisher) PublishEvents(ctx context.Context, events []occupancy.Event) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := EncodeEvent(event)
		if err != nil {
			return errors.Wrapf(err, "Can't encode event of track %s", event.TrackID)
		}
		if err = publisher.publish(EventTopic(publisher.opts.Topic, event.NodeID), payload); err != nil {
			return err
		}
	}
	return nil
}

// PublishTally sends counts of the node over [from; to]
func (publisher *MQTTPublisher) PublishTally(nodeID int, from, to time.Time, tally occupancy.Tally) error {
	payload, err := json.Marshal(TallyMessage{
		NodeID:   nodeID,
		From:     from.UTC(),
		To:       to.UTC(),
		Entering: tally.Entering,
		Leaving:  tally.Leaving,
	})
	if err != nil {
		return errors.Wrap(err, "Can't encode tally")
	}
	return publisher.publish(TallyTopic(publisher.opts.Topic, nodeID), payload)
}

// Stats returns publisher counters
func (publisher *MQTTPublisher) Stats() Stats {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return Stats{
		Published: publisher.published,
		Failed:    publisher.failed,
	}
}

// Disconnect closes broker connection
func (publisher *MQTTPublisher) Disconnect() {
	if publisher.client.IsConnected() {
		publisher.client.Disconnect(250)
		publisher.logger.Info("publish: mqtt disconnected")
	}
}
