package cloud

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/internal/observability"
)

type BreakerConfig struct {
	Name        string
	Failures    uint32        // consecutive failures that open the breaker
	OpenFor     time.Duration // time spent open before a probe
	PushTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// BreakerStore bounds every push with a timeout and stops calling a backend
// that keeps failing, so callers fall back to the local queue immediately.
type BreakerStore struct {
	next    Store
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	name    string
	metrics *observability.Metrics
}

var ErrBreakerOpen = errors.New("cloud store unavailable")

func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "cloud"
	}
	if cfg.Failures == 0 {
		cfg.Failures = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &BreakerStore{next: next, timeout: cfg.PushTimeout, name: cfg.Name, metrics: cfg.Metrics}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "target", name, "from", from.String(), "to", to.String())
			cfg.Metrics.SetBreakerState(name, int(to))
		},
	})
	return s
}

func (s *BreakerStore) Push(ctx context.Context, identity string, r model.Reading) error {
	start := time.Now()
	_, err := s.cb.Execute(func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return nil, s.next.Push(pctx, identity, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = errors.Join(ErrBreakerOpen, err)
	}
	s.metrics.CloudPush(s.name, time.Since(start), err)
	return err
}

func (s *BreakerStore) State() gobreaker.State { return s.cb.State() }

func (s *BreakerStore) Connected() bool {
	if h, ok := s.next.(Health); ok {
		return h.Connected() && s.cb.State() != gobreaker.StateOpen
	}
	return s.cb.State() != gobreaker.StateOpen
}

func (s *BreakerStore) LastErrorAge() time.Duration {
	if h, ok := s.next.(Health); ok {
		return h.LastErrorAge()
	}
	return 99999 * time.Hour
}
