package rabbitmq

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient is an in-memory mqtt.Client.
type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	published    []published
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true, handlers: map[string]mqtt.MessageHandler{}}
}

func (f *fakeClient) IsConnected() bool      { return f.connected }
func (f *fakeClient) IsConnectionOpen() bool { return f.connected }
func (f *fakeClient) Connect() mqtt.Token    { return newToken(nil) }
func (f *fakeClient) Disconnect(uint)        { f.connected = false }

func (f *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return newToken(f.publishErr)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(nil)
}

func (f *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = cb
	return newToken(nil)
}

func (f *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(nil)
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return newToken(nil)
}

func (f *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (f *fakeClient) deliver(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.handlers[topic]
	f.mu.Unlock()
	cb(f, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
