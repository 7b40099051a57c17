package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the client configuration. Values come from an optional YAML file,
// then environment variables override single fields.
type Config struct {
	AppEnv      string     `yaml:"app_env"`
	LogLevelStr string     `yaml:"log_level"`
	LogLevel    slog.Level `yaml:"-"`

	// Identity namespaces the local queue and the cloud records.
	// Empty means guest.
	Identity string `yaml:"identity"`

	Device       DeviceConfig       `yaml:"device"`
	Queue        QueueConfig        `yaml:"queue"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	Cloud        CloudConfig        `yaml:"cloud"`
	Influx       InfluxConfig       `yaml:"influx"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Kafka        KafkaConfig        `yaml:"kafka"`

	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

type DeviceConfig struct {
	Address     string        `yaml:"address"`
	Secret      string        `yaml:"secret"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type QueueConfig struct {
	Path string `yaml:"path"`
}

type ConnectivityConfig struct {
	Mode string `yaml:"mode"` // auto | online | offline
}

type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

type CloudConfig struct {
	Backend        string        `yaml:"backend"` // influx | mqtt | kafka
	PushTimeout    time.Duration `yaml:"push_timeout"`
	BreakerFails   uint32        `yaml:"breaker_failures"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
}

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

type MQTTConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	TopicPrefix  string `yaml:"topic_prefix"`
	CommandRelay bool   `yaml:"command_relay"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Default() Config {
	return Config{
		AppEnv:      "dev",
		LogLevelStr: "info",
		LogLevel:    slog.LevelInfo,
		Device: DeviceConfig{
			Secret:      "CLAVE_SEGURA_TI3042",
			DialTimeout: 10 * time.Second,
		},
		Queue:        QueueConfig{Path: "sensorlink.db"},
		Connectivity: ConnectivityConfig{Mode: "auto"},
		Sync: SyncConfig{
			PollInterval: 5 * time.Second,
			MaxBackoff:   2 * time.Minute,
		},
		Cloud: CloudConfig{
			Backend:        "influx",
			PushTimeout:    5 * time.Second,
			BreakerFails:   3,
			BreakerTimeout: 30 * time.Second,
		},
		Influx: InfluxConfig{
			URL:         "http://localhost:8086",
			Org:         "sensorlink",
			Bucket:      "readings",
			Measurement: "smoke_reading",
		},
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			ClientID:    "sensorlink-client",
			TopicPrefix: "readings",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "smoke-readings",
		},
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
	}
}

// Load reads path (skipped when empty), applies env overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, fmt.Errorf("error reading config file %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv is Load without a file.
func LoadFromEnv() (Config, error) {
	return Load("")
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	return yaml.NewDecoder(file).Decode(c)
}

func getenv(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func (c *Config) applyEnv() error {
	if v, ok := getenv("APP_ENV"); ok {
		c.AppEnv = v
	}
	if v, ok := getenv("LOG_LEVEL"); ok {
		c.LogLevelStr = v
	}
	if v, ok := getenv("IDENTITY"); ok {
		c.Identity = v
	}
	if v, ok := getenv("DEVICE_ADDRESS"); ok {
		c.Device.Address = v
	}
	if v, ok := getenv("DEVICE_SECRET"); ok {
		c.Device.Secret = v
	}
	if v, ok := getenv("QUEUE_PATH"); ok {
		c.Queue.Path = v
	}
	if v, ok := getenv("CONNECTIVITY_MODE"); ok {
		c.Connectivity.Mode = v
	}
	if v, ok := getenv("CLOUD_BACKEND"); ok {
		c.Cloud.Backend = v
	}
	if v, ok := getenv("CLOUD_PUSH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CLOUD_PUSH_TIMEOUT %q: %w", v, err)
		}
		c.Cloud.PushTimeout = d
	}
	if v, ok := getenv("INFLUX_URL"); ok {
		c.Influx.URL = v
	}
	if v, ok := getenv("INFLUX_TOKEN"); ok {
		c.Influx.Token = v
	}
	if v, ok := getenv("INFLUX_ORG"); ok {
		c.Influx.Org = v
	}
	if v, ok := getenv("INFLUX_BUCKET"); ok {
		c.Influx.Bucket = v
	}
	if v, ok := getenv("INFLUX_MEASUREMENT"); ok {
		c.Influx.Measurement = v
	}
	if v, ok := getenv("MQTT_HOST"); ok {
		c.MQTT.Host = v
	}
	if v, ok := getenv("MQTT_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PORT %q: %w", v, err)
		}
		c.MQTT.Port = p
	}
	if v, ok := getenv("MQTT_USER"); ok {
		c.MQTT.User = v
	}
	if v, ok := getenv("MQTT_PASSWORD"); ok {
		c.MQTT.Password = v
	}
	if v, ok := getenv("MQTT_CLIENT_ID"); ok {
		c.MQTT.ClientID = v
	}
	if v, ok := getenv("MQTT_TOPIC_PREFIX"); ok {
		c.MQTT.TopicPrefix = v
	}
	if v, ok := getenv("MQTT_COMMAND_RELAY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MQTT_COMMAND_RELAY %q: %w", v, err)
		}
		c.MQTT.CommandRelay = b
	}
	if v, ok := getenv("KAFKA_BROKERS"); ok {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Kafka.Brokers = brokers
	}
	if v, ok := getenv("KAFKA_TOPIC"); ok {
		c.Kafka.Topic = v
	}
	if v, ok := getenv("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := getenv("GRPC_ADDR"); ok {
		c.GRPCAddr = v
	}
	return nil
}

func (c *Config) validate() error {
	c.AppEnv = strings.TrimSpace(c.AppEnv)
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", c.AppEnv)
	}

	level, err := parseLogLevel(c.LogLevelStr)
	if err != nil {
		return err
	}
	c.LogLevel = level

	c.Connectivity.Mode = strings.ToLower(strings.TrimSpace(c.Connectivity.Mode))
	switch c.Connectivity.Mode {
	case "auto", "online", "offline":
	default:
		return fmt.Errorf("invalid CONNECTIVITY_MODE %q (allowed: auto, online, offline)", c.Connectivity.Mode)
	}

	c.Cloud.Backend = strings.ToLower(strings.TrimSpace(c.Cloud.Backend))
	switch c.Cloud.Backend {
	case "influx":
		if c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			return errors.New("influx backend requires INFLUX_URL, INFLUX_ORG and INFLUX_BUCKET")
		}
	case "mqtt":
		if c.MQTT.Host == "" || c.MQTT.Port <= 0 {
			return errors.New("mqtt backend requires MQTT_HOST and MQTT_PORT")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka backend requires KAFKA_BROKERS and KAFKA_TOPIC")
		}
	default:
		return fmt.Errorf("invalid CLOUD_BACKEND %q (allowed: influx, mqtt, kafka)", c.Cloud.Backend)
	}

	if c.Queue.Path == "" {
		return errors.New("QUEUE_PATH must not be empty")
	}
	if c.Device.Secret == "" {
		return errors.New("DEVICE_SECRET must not be empty")
	}
	if c.Device.DialTimeout <= 0 {
		c.Device.DialTimeout = 10 * time.Second
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("invalid sync poll interval %s", c.Sync.PollInterval)
	}
	if c.Cloud.PushTimeout <= 0 {
		return fmt.Errorf("invalid CLOUD_PUSH_TIMEOUT %s", c.Cloud.PushTimeout)
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

// SetLogLevel overrides the configured level, e.g. from a command line flag.
func (c *Config) SetLogLevel(s string) error {
	lvl, err := parseLogLevel(s)
	if err != nil {
		return err
	}
	c.LogLevelStr, c.LogLevel = s, lvl
	return nil
}
