package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/sensorlink/internal/config"
	simulator "github.com/LeonardoBeccarini/sensorlink/internal/device-simulator"
	"github.com/LeonardoBeccarini/sensorlink/internal/logging"
)

var version = "dev"

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	secret := flag.String("secret", "CLAVE_SEGURA_TI3042", "shared secret expected as first line")
	interval := flag.Duration("interval", time.Second, "GAS frame interval")
	rise := flag.Float64("rise", 5, "smoke level increase per second without ventilation")
	seed := flag.Int64("seed", time.Now().UnixNano(), "generator seed")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg, version, "device-simulator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := simulator.New(simulator.Config{
		Secret:   *secret,
		Interval: *interval,
		Logger:   log,
	}, simulator.NewSmokeGenerator(*seed, *rise))

	bound, err := sim.Listen(*addr)
	if err != nil {
		log.Error("listen failed", "err", err)
		os.Exit(1)
	}
	log.Info("device simulator listening", "addr", bound.String())
	if err := sim.Serve(ctx); err != nil {
		log.Error("serve failed", "err", err)
		os.Exit(1)
	}
}
