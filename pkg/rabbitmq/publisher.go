package rabbitmq

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends payloads on the shared client with a fixed QoS.
type Publisher struct {
	client mqtt.Client
	qos    byte
}

func NewPublisher(client mqtt.Client, qos byte) *Publisher {
	return &Publisher{client: client, qos: qos}
}

// Publish returns once the broker acknowledged the message (QoS >= 1) or it
// was written to the socket (QoS 0).
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: %w", topic, mqtt.ErrNotConnected)
	}
	if err := wait(ctx, p.client.Publish(topic, p.qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Connected() bool {
	return p.client.IsConnectionOpen()
}
