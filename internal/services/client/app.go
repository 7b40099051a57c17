// Package client is the host of the device session: it turns what the session
// observes into recorded readings and exposes control and status surfaces.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/internal/observability"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/cloud"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/connectivity"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/coordinator"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/session"
)

// HealthService is the gRPC health service name that tracks the device link.
const HealthService = "sensorlink.Device"

const (
	NoticeAlert          coordinator.NoticeKind = "ALERT"
	NoticeInvalidAddress coordinator.NoticeKind = "INVALID_ADDRESS"
)

const (
	recordBuffer = 256
	keepNotices  = 20
)

type Deps struct {
	Store    cloud.Store
	Queue    coordinator.Queue
	Probe    connectivity.Probe
	Identity string
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	Session      session.Options
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

type App struct {
	session *session.Session
	coord   *coordinator.Coordinator
	queue   coordinator.Queue
	store   cloud.Store
	probe   connectivity.Probe
	health  *health.Server
	clock   *model.Clock
	log     *slog.Logger
	metrics *observability.Metrics

	identity  string
	lastValue atomic.Int64
	records   chan model.Reading

	mu      sync.Mutex
	notices []coordinator.Notice
}

func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Session.Clock == nil {
		d.Session.Clock = model.NewClock()
	}
	if d.Session.Logger == nil {
		d.Session.Logger = d.Logger
	}
	if d.Session.Metrics == nil {
		d.Session.Metrics = d.Metrics
	}

	a := &App{
		queue:    d.Queue,
		store:    d.Store,
		probe:    d.Probe,
		health:   health.NewServer(),
		clock:    d.Session.Clock,
		log:      d.Logger.With("component", "client"),
		metrics:  d.Metrics,
		identity: model.NormalizeIdentity(d.Identity),
		records:  make(chan model.Reading, recordBuffer),
	}
	a.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	a.coord = coordinator.New(d.Store, d.Queue, d.Probe, coordinator.Options{
		Identity:     a.identity,
		Notifier:     a,
		Logger:       d.Logger,
		Metrics:      d.Metrics,
		PollInterval: d.PollInterval,
		MaxBackoff:   d.MaxBackoff,
	})
	a.session = session.New(a, d.Session)
	return a
}

// Run records incoming readings and keeps the queue draining until ctx is
// done. The device session is closed, and its read loop finished, before the
// last buffered readings are flushed.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.coord.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			a.session.Close()
			wg.Wait()
			a.flush()
			return nil
		case r := <-a.records:
			a.record(ctx, r)
		}
	}
}

// flush buffers what is still waiting so nothing read from the device is lost
// on shutdown.
func (a *App) flush() {
	for {
		select {
		case r := <-a.records:
			a.record(context.Background(), r)
		default:
			return
		}
	}
}

func (a *App) record(ctx context.Context, r model.Reading) {
	if _, err := a.coord.Record(ctx, r); err != nil {
		a.log.Error("reading lost: local storage failed", "key", r.Key(), "err", err)
	}
}

// ===== session.Listener =====

func (a *App) OnStatusChanged(st model.Status) {
	a.log.Info("device status", "state", st.State, "reason", st.Reason, "msg", st.Message)
	if st.State == model.StateAuthenticated {
		a.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
		a.coord.Trigger()
		return
	}
	a.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
}

func (a *App) OnReadingReceived(r model.Reading) {
	a.lastValue.Store(int64(r.Value))
	a.enqueue(r)
}

func (a *App) OnAlert(al model.Alert) {
	a.log.Warn("device alert", "kind", al.Kind, "msg", al.Message())
	a.Notify(coordinator.Notice{Kind: NoticeAlert, Message: al.Message()})
	a.enqueue(al.Reading())
}

// enqueue hands r to the record worker. When the worker is behind, r is
// recorded on the caller's goroutine so the device read loop slows down
// instead of dropping data.
func (a *App) enqueue(r model.Reading) {
	select {
	case a.records <- r:
	default:
		a.record(context.Background(), r)
	}
}

// ===== coordinator.Notifier =====

func (a *App) Notify(n coordinator.Notice) {
	a.log.Debug("notice", "kind", n.Kind, "msg", n.Message)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notices = append(a.notices, n)
	if len(a.notices) > keepNotices {
		a.notices = a.notices[len(a.notices)-keepNotices:]
	}
}

// ===== Operations =====

// Connect parses "host:port" and opens the device session.
func (a *App) Connect(ctx context.Context, address string) error {
	host, port, err := session.ParseAddress(address)
	if err != nil {
		a.Notify(coordinator.Notice{Kind: NoticeInvalidAddress, Message: err.Error()})
		return err
	}
	return a.session.Connect(ctx, host, port)
}

func (a *App) Disconnect() { a.session.Disconnect() }

type ControlResult struct {
	Command string              `json:"command"`
	Sent    bool                `json:"sent"`
	Outcome coordinator.Outcome `json:"outcome"`
	Reading model.Reading       `json:"reading"`
}

// Control sends cmd to the device and records the control event with the last
// seen smoke value. The event is recorded even when the device is not
// connected.
func (a *App) Control(ctx context.Context, cmd string) (ControlResult, error) {
	sendErr := a.session.SendCommand(cmd)
	if errors.Is(sendErr, session.ErrInvalidCommand) {
		return ControlResult{}, sendErr
	}
	if sendErr != nil {
		a.log.Warn("command not delivered", "cmd", cmd, "err", sendErr)
	}

	r := model.Reading{
		Timestamp: a.clock.Next(),
		Value:     int(a.lastValue.Load()),
		EventTag:  model.CommandTag(cmd),
	}
	out, err := a.coord.Record(ctx, r)
	if err != nil {
		return ControlResult{}, fmt.Errorf("record control event: %w", err)
	}
	r.SyncState = model.SyncOnline
	if out == coordinator.OutcomeBuffered {
		r.SyncState = model.SyncOfflinePending
	}
	return ControlResult{Command: cmd, Sent: sendErr == nil, Outcome: out, Reading: r}, nil
}

func (a *App) SyncNow(ctx context.Context) (coordinator.Report, error) {
	return a.coord.SyncPending(ctx)
}

type Status struct {
	Identity  string               `json:"identity"`
	Device    model.Status         `json:"device"`
	Online    bool                 `json:"online"`
	Pending   int                  `json:"pending"`
	LastValue int                  `json:"last_value"`
	Notices   []coordinator.Notice `json:"notices"`
}

func (a *App) Status() (Status, error) {
	pending, err := a.queue.Len()
	if err != nil {
		return Status{}, err
	}
	a.mu.Lock()
	notices := append([]coordinator.Notice(nil), a.notices...)
	a.mu.Unlock()
	return Status{
		Identity:  a.identity,
		Device:    a.session.Status(),
		Online:    a.probe.HasInternet(),
		Pending:   pending,
		LastValue: int(a.lastValue.Load()),
		Notices:   notices,
	}, nil
}

// HealthServer is registered on the gRPC server by the caller.
func (a *App) HealthServer() *health.Server { return a.health }
