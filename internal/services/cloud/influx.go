package cloud

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string // default smoke_reading
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxStore writes one point per reading through the blocking write API.
// Identity, tag and sync state are tags, so a re-pushed duplicate lands on the
// same series and timestamp and overwrites instead of adding a row.
type InfluxStore struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
	tracker     *writeTracker
}

func NewInfluxStore(cfg InfluxConfig) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: influx needs url, token, org and bucket", ErrConfig)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := newInfluxStore(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement)
	s.client = client
	return s, nil
}

func newInfluxStore(w pointWriter, measurement string) *InfluxStore {
	if measurement == "" {
		measurement = "smoke_reading"
	}
	return &InfluxStore{
		writer:      w,
		measurement: sanitizeMeasurement(measurement),
		tracker:     newWriteTracker(),
	}
}

func (s *InfluxStore) Push(ctx context.Context, identity string, r model.Reading) error {
	tags := map[string]string{
		"identity": identity,
		"evento":   r.EventTag,
		"estado":   string(r.SyncState),
	}
	fields := map[string]interface{}{
		"lecturaHumo": r.Value,
		"push_id":     newPushID(),
	}
	point := influxdb2.NewPoint(s.measurement, tags, fields, time.UnixMilli(r.Timestamp))

	err := s.writer.WritePoint(ctx, point)
	s.tracker.observe(err)
	if err != nil {
		return fmt.Errorf("influx write %s: %w", r.Key(), err)
	}
	return nil
}

func (s *InfluxStore) Connected() bool { return s.tracker.reachable() }

func (s *InfluxStore) LastErrorAge() time.Duration { return s.tracker.LastErrorAge() }

func (s *InfluxStore) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
