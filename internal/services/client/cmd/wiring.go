package main

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/sensorlink/internal/config"
	"github.com/LeonardoBeccarini/sensorlink/internal/logging"
	"github.com/LeonardoBeccarini/sensorlink/internal/observability"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/client"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/cloud"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/connectivity"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/localqueue"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/session"
	"github.com/LeonardoBeccarini/sensorlink/pkg/rabbitmq"
)

func setup(g *globalFlags) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.logLevel != "" {
		if err := cfg.SetLogLevel(g.logLevel); err != nil {
			return config.Config{}, nil, err
		}
	}
	log := logging.New(cfg, version, "sensorlink")
	slog.SetDefault(log)
	return cfg, log, nil
}

// env is everything a command needs, built from the configuration.
type env struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *observability.Metrics
	db      *localqueue.DB
	queue   *localqueue.Queue
	store   cloud.Store
	app     *client.App
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newEnv(ctx context.Context, g *globalFlags) (*env, error) {
	cfg, log, err := setup(g)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, metrics: observability.NewMetrics(nil)}

	e.db, err = localqueue.Open(cfg.Queue.Path, log)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { _ = e.db.Close() })
	e.queue = e.db.Namespace(cfg.Identity)

	next, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closeStore)
	e.store = cloud.NewBreakerStore(next, cloud.BreakerConfig{
		Name:        cfg.Cloud.Backend,
		Failures:    cfg.Cloud.BreakerFails,
		OpenFor:     cfg.Cloud.BreakerTimeout,
		PushTimeout: cfg.Cloud.PushTimeout,
		Logger:      log,
		Metrics:     e.metrics,
	})

	probe, err := connectivity.FromMode(cfg.Connectivity.Mode)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.app = client.New(client.Deps{
		Store:    e.store,
		Queue:    e.queue,
		Probe:    probe,
		Identity: cfg.Identity,
		Logger:   log,
		Metrics:  e.metrics,
		Session: session.Options{
			Secret:      cfg.Device.Secret,
			DialTimeout: cfg.Device.DialTimeout,
		},
		PollInterval: cfg.Sync.PollInterval,
		MaxBackoff:   cfg.Sync.MaxBackoff,
	})
	return e, nil
}

func buildStore(ctx context.Context, cfg config.Config, log *slog.Logger) (cloud.Store, func(), error) {
	switch cfg.Cloud.Backend {
	case "influx":
		s, err := cloud.NewInfluxStore(cloud.InfluxConfig{
			URL:         cfg.Influx.URL,
			Token:       cfg.Influx.Token,
			Org:         cfg.Influx.Org,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "mqtt":
		c, err := connectMQTT(ctx, cfg, cfg.MQTT.ClientID, log)
		if err != nil {
			return nil, nil, err
		}
		s := cloud.NewMQTTStore(rabbitmq.NewPublisher(c, 1), cfg.MQTT.TopicPrefix)
		return s, func() { rabbitmq.CloseRabbitMQConn(c) }, nil

	case "kafka":
		s, err := cloud.NewKafkaStore(cloud.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("kafka writer close", "err", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown cloud backend %q", cfg.Cloud.Backend)
}

func connectMQTT(ctx context.Context, cfg config.Config, clientID string, log *slog.Logger) (mqtt.Client, error) {
	return rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		User:     cfg.MQTT.User,
		Password: cfg.MQTT.Password,
		ClientID: clientID,
		Logger:   log,
	})
}
