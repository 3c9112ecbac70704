package alerter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// eventBus publishes restart lifecycle events to an MQTT broker for
// external observers. It is entirely optional: with no broker configured
// it is a no-op, and publish failures never affect the restart state
// machine they describe.
type eventBus struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

type lifecycleEvent struct {
	Node      string `json:"node"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

func newEventBus(broker, clusterID string, log *slog.Logger) *eventBus {
	if broker == "" {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("xrootdrestart-%s", clusterID))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	bus := &eventBus{
		client: client,
		topic:  fmt.Sprintf("xrootdrestart/%s/events", clusterID),
		log:    log,
	}

	if token := client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Warn("mqtt event bus connect failed", "broker", broker, "error", token.Error())
	}
	return bus
}

func (b *eventBus) publish(node, kind string) {
	if b == nil || b.client == nil || !b.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(lifecycleEvent{
		Node:      node,
		Kind:      kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	token := b.client.Publish(b.topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(2*time.Second) && token.Error() != nil {
			b.log.Debug("mqtt publish failed", "topic", b.topic, "error", token.Error())
		}
	}()
}

func (b *eventBus) close() {
	if b == nil || b.client == nil {
		return
	}
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}
