package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

type message struct {
	topic   string
	id      uint16
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return m.id }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type controlLog struct {
	mu   sync.Mutex
	cmds []string
	err  error
}

func (c *controlLog) Control(_ context.Context, cmd string) (ControlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return ControlResult{Command: cmd}, c.err
}

func TestCommandRelayForwardsAndDedups(t *testing.T) {
	t.Parallel()
	ctrl := &controlLog{}
	relay := NewCommandRelay(ctrl, nil)
	topic := CommandTopic("alice")

	require.NoError(t, relay.Handle(topic, message{topic: topic, id: 7, payload: []byte("RELAY_ON\n")}))
	// redelivery of the same packet
	require.NoError(t, relay.Handle(topic, message{topic: topic, id: 7, payload: []byte("RELAY_ON\n")}))
	// a new publish of the same command
	require.NoError(t, relay.Handle(topic, message{topic: topic, id: 8, payload: []byte("RELAY_ON\n")}))

	require.NoError(t, relay.Handle(topic, message{topic: topic, id: 9, payload: []byte(`{"id":"c-1","command":"ALARM_OFF"}`)}))
	require.NoError(t, relay.Handle(topic, message{topic: topic, id: 10, payload: []byte(`{"id":"c-1","command":"ALARM_OFF"}`)}))

	// QoS 0: no packet id, never treated as a duplicate
	require.NoError(t, relay.Handle(topic, message{topic: topic, payload: []byte("RELAY_ON")}))
	require.NoError(t, relay.Handle(topic, message{topic: topic, payload: []byte("RELAY_ON")}))

	assert.Equal(t, []string{
		model.CmdRelayOn, model.CmdRelayOn, model.CmdAlarmOff, model.CmdRelayOn, model.CmdRelayOn,
	}, ctrl.cmds)
}

func TestCommandRelayRejectsBadPayloads(t *testing.T) {
	t.Parallel()
	ctrl := &controlLog{}
	relay := NewCommandRelay(ctrl, nil)

	for _, p := range []string{"", "   ", `{"id":"x"}`, `{bad json`} {
		assert.Error(t, relay.Handle("commands/alice", message{id: 1, payload: []byte(p)}), p)
	}
	assert.Empty(t, ctrl.cmds)
}

func TestCommandRelayReturnsControlError(t *testing.T) {
	t.Parallel()
	ctrl := &controlLog{err: errors.New("storage down")}
	relay := NewCommandRelay(ctrl, nil)

	err := relay.Handle("commands/alice", message{id: 1, payload: []byte("RELAY_ON")})
	assert.EqualError(t, err, "storage down")
}

func TestCommandTopic(t *testing.T) {
	assert.Equal(t, "commands/alice", CommandTopic("alice"))
	assert.Equal(t, "commands/TEMP_GUEST", CommandTopic(""))
	assert.Equal(t, "commands/TEMP_GUEST", CommandTopic("  "))
}
