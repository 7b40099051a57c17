package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/pkg/dedup"
)

// Controller is the part of App the relay drives.
type Controller interface {
	Control(ctx context.Context, cmd string) (ControlResult, error)
}

// RemoteCommand is the JSON form accepted on the command topic. A bare
// command string ("RELAY_ON") is accepted too.
type RemoteCommand struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// CommandRelay forwards commands received over MQTT to the device.
type CommandRelay struct {
	ctrl    Controller
	seen    *dedup.Deduper
	timeout time.Duration
	log     *slog.Logger
}

func NewCommandRelay(ctrl Controller, log *slog.Logger) *CommandRelay {
	if log == nil {
		log = slog.Default()
	}
	return &CommandRelay{
		ctrl:    ctrl,
		seen:    dedup.New(2*time.Minute, 1000),
		timeout: 10 * time.Second,
		log:     log.With("component", "command-relay"),
	}
}

// CommandTopic is where commands for identity are published.
func CommandTopic(identity string) string {
	return "commands/" + model.NormalizeIdentity(identity)
}

// Handle matches rabbitmq.Handler.
func (c *CommandRelay) Handle(topic string, msg mqtt.Message) error {
	payload := msg.Payload()
	cmd, err := parseRemoteCommand(payload)
	if err != nil {
		return fmt.Errorf("topic %s: %w", topic, err)
	}
	if !c.seen.ShouldProcess(messageKey(cmd.ID, msg.MessageID(), payload)) {
		c.log.Debug("duplicate command dropped", "topic", topic, "cmd", cmd.Command)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	res, err := c.ctrl.Control(ctx, cmd.Command)
	if err != nil {
		return err
	}
	c.log.Info("remote command", "cmd", cmd.Command, "sent", res.Sent, "outcome", res.Outcome)
	return nil
}

func parseRemoteCommand(payload []byte) (RemoteCommand, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return RemoteCommand{}, fmt.Errorf("empty command")
	}
	if !strings.HasPrefix(raw, "{") {
		return RemoteCommand{Command: raw}, nil
	}
	var rc RemoteCommand
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return RemoteCommand{}, fmt.Errorf("decode command: %w", err)
	}
	if strings.TrimSpace(rc.Command) == "" {
		return RemoteCommand{}, fmt.Errorf("empty command")
	}
	return rc, nil
}

// messageKey prefers the publisher's id. Without one, a redelivery carries
// the same packet id and payload, a new publish does not. QoS 0 messages have
// no packet id and are never redelivered.
func messageKey(id string, packetID uint16, payload []byte) string {
	if id != "" {
		return "id:" + id
	}
	if packetID == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("pkt:%d:%s", packetID, hex.EncodeToString(sum[:8]))
}
