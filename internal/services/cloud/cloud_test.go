package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

var sample = model.Reading{Timestamp: 1718000000123, Value: 12, EventTag: model.TagNormal, SyncState: model.SyncOnline}

func TestInfluxStoreWritesLineProtocol(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var bodies []string
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "sensorlink", r.URL.Query().Get("org"))
		assert.Equal(t, "readings", r.URL.Query().Get("bucket"))
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":"internal error","message":"disk full"}`))
			return
		}
		bodies = append(bodies, string(b))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s, err := NewInfluxStore(InfluxConfig{URL: srv.URL, Token: "t", Org: "sensorlink", Bucket: "readings"})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Push(context.Background(), "alice", sample))
	mu.Lock()
	require.Len(t, bodies, 1)
	line := strings.TrimSpace(bodies[0])
	mu.Unlock()
	assert.True(t, strings.HasPrefix(line, "smoke_reading,estado=ONLINE,evento=NORMAL,identity=alice lecturaHumo=12i,push_id="), line)
	assert.True(t, strings.HasSuffix(line, " 1718000000123000000"), line)

	mu.Lock()
	fail = true
	mu.Unlock()
	assert.True(t, s.Connected())
	err = s.Push(context.Background(), "alice", sample)
	assert.Error(t, err)
	assert.Less(t, s.LastErrorAge(), time.Minute)
	assert.False(t, s.Connected(), "last write failed")

	mu.Lock()
	fail = false
	mu.Unlock()
	require.NoError(t, s.Push(context.Background(), "alice", sample))
	assert.True(t, s.Connected(), "recovered after a good write")
}

func TestInfluxStoreConfig(t *testing.T) {
	t.Parallel()
	_, err := NewInfluxStore(InfluxConfig{URL: "http://x"})
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, "smoke_reading_v2", sanitizeMeasurement("smoke reading/v2"))
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) Connected() bool { return f.err == nil }

func TestMQTTStorePublishesCloudRecord(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	s := NewMQTTStore(pub, "/readings/")

	require.NoError(t, s.Push(context.Background(), "alice", sample))
	require.NoError(t, s.Push(context.Background(), "alice", sample))
	assert.Equal(t, []string{"readings/alice", "readings/alice"}, pub.topics)

	var a, b model.CloudRecord
	require.NoError(t, json.Unmarshal(pub.payloads[0], &a))
	require.NoError(t, json.Unmarshal(pub.payloads[1], &b))
	assert.Equal(t, "alice", a.Identity)
	assert.Equal(t, 12, a.Value)
	assert.Equal(t, model.SyncOnline, a.SyncState)
	assert.NotEmpty(t, a.PushID)
	assert.NotEqual(t, a.PushID, b.PushID)
	assert.Contains(t, string(pub.payloads[0]), `"lecturaHumo":12`)

	pub.err = errors.New("offline")
	assert.Error(t, s.Push(context.Background(), "alice", sample))
	assert.False(t, s.Connected())
}

type fakeKafka struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error { return nil }

func TestKafkaStoreKeysByIdentity(t *testing.T) {
	t.Parallel()
	w := &fakeKafka{}
	s := newKafkaStore(w)

	r := sample
	r.SyncState = model.SyncOfflineSynced
	require.NoError(t, s.Push(context.Background(), "bob", r))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "bob", string(w.msgs[0].Key))
	assert.Equal(t, r.Timestamp, w.msgs[0].Time.UnixMilli())

	var rec model.CloudRecord
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &rec))
	assert.Equal(t, model.SyncOfflineSynced, rec.SyncState)
	assert.Equal(t, rec.PushID, string(w.msgs[0].Headers[0].Value))

	assert.True(t, s.Connected())
	w.err = errors.New("leader not available")
	assert.ErrorContains(t, s.Push(context.Background(), "bob", r), "leader not available")
	assert.False(t, s.Connected())

	_, err := NewKafkaStore(KafkaConfig{})
	assert.ErrorIs(t, err, ErrConfig)
}

type countingStore struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (c *countingStore) Push(ctx context.Context, _ string, _ model.Reading) error {
	c.mu.Lock()
	c.calls++
	block, err := c.block, c.err
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	next := &countingStore{err: errors.New("503")}
	s := NewBreakerStore(next, BreakerConfig{Failures: 2, OpenFor: time.Hour})

	assert.Error(t, s.Push(context.Background(), "a", sample))
	assert.Error(t, s.Push(context.Background(), "a", sample))
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err := s.Push(context.Background(), "a", sample)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 2, next.calls, "open breaker does not call the backend")
	assert.False(t, s.Connected())
}

func TestBreakerAppliesPushTimeout(t *testing.T) {
	t.Parallel()
	next := &countingStore{block: true}
	s := NewBreakerStore(next, BreakerConfig{PushTimeout: 20 * time.Millisecond})

	start := time.Now()
	err := s.Push(context.Background(), "a", sample)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	t.Parallel()
	next := &countingStore{}
	s := NewBreakerStore(next, BreakerConfig{})
	require.NoError(t, s.Push(context.Background(), "a", sample))
	assert.Equal(t, gobreaker.StateClosed, s.State())
	assert.True(t, s.Connected())
}
