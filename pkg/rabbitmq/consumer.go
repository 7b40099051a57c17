package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Handler func(topic string, msg mqtt.Message) error

// Consumer subscribes one topic and hands every message to its handler.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	log     *slog.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, log: log}
}

// ConsumeMessage subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	tok := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := c.handler(msg.Topic(), msg); err != nil {
			c.log.Warn("error handling message", "topic", msg.Topic(), "err", err)
		}
	})
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	c.log.Info("subscribed", "topic", c.topic)

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
