package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/sensorlink/internal/services/client"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/localqueue"
	"github.com/LeonardoBeccarini/sensorlink/pkg/rabbitmq"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ===== run =====

func runCommand(g *globalFlags) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "connect to the device and serve the status API until interrupted",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEnv(ctx, g)
			if err != nil {
				return err
			}
			defer e.Close()
			return serve(ctx, stop, e)
		},
	}
}

func serve(ctx context.Context, stop context.CancelFunc, e *env) error {
	log, cfg := e.log, e.cfg
	errCh := make(chan error, 3)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	var relay *rabbitmq.Consumer
	if cfg.MQTT.CommandRelay {
		mc, err := connectMQTT(ctx, cfg, cfg.MQTT.ClientID+"-commands", log)
		if err != nil {
			_ = lis.Close()
			return err
		}
		relay = rabbitmq.NewConsumer(mc, client.CommandTopic(cfg.Identity), 1, client.NewCommandRelay(e.app, log).Handle, log)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, client.NewRouter(e.app, e.metrics))),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, e.app.HealthServer())
	go func() {
		log.Info("grpc health listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	if relay != nil {
		go func() {
			if err := relay.ConsumeMessage(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	if cfg.Device.Address != "" {
		go func() {
			if err := e.app.Connect(ctx, cfg.Device.Address); err != nil {
				log.Warn("device connect failed", "addr", cfg.Device.Address, "err", err)
			}
		}()
	}

	runDone := make(chan error, 1)
	go func() { runDone <- e.app.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", "err", runErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if err := <-runDone; err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// ===== sync =====

func syncCommand(g *globalFlags) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "upload every pending reading once and print the report",
		Action: func(c *cli.Context) error {
			e, err := newEnv(c.Context, g)
			if err != nil {
				return err
			}
			defer e.Close()

			rep, err := e.app.SyncNow(c.Context)
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
}

// ===== send =====

func sendCommand(g *globalFlags) *cli.Command {
	var address string
	return &cli.Command{
		Name:      "send",
		Usage:     "connect, send one command to the device and record the control event",
		ArgsUsage: "RELAY_ON|ALARM_OFF",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Destination: &address, Usage: "device `HOST:PORT`, defaults to the configured one"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("send needs exactly one command", 2)
			}
			e, err := newEnv(c.Context, g)
			if err != nil {
				return err
			}
			defer e.Close()
			if address == "" {
				address = e.cfg.Device.Address
			}

			ctx, cancel := context.WithCancel(c.Context)
			runDone := make(chan error, 1)
			go func() { runDone <- e.app.Run(ctx) }()
			defer func() {
				cancel()
				<-runDone
			}()

			if err := e.app.Connect(ctx, address); err != nil {
				e.log.Warn("device not reachable, recording the command only", "err", err)
			}
			res, err := e.app.Control(ctx, c.Args().First())
			e.app.Disconnect()
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

// ===== pending =====

func pendingCommand(g *globalFlags) *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "list the readings waiting for upload",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(g)
			if err != nil {
				return err
			}
			db, err := localqueue.Open(cfg.Queue.Path, log)
			if err != nil {
				return err
			}
			defer db.Close()
			q := db.Namespace(cfg.Identity)

			entries, err := q.DrainAll()
			if err != nil {
				return err
			}
			n := 0
			for key, r := range entries {
				fmt.Printf("%s\t%d\t%s\n", key, r.Value, r.EventTag)
				n++
			}
			fmt.Printf("%d pending in %s\n", n, q.Namespace())
			return nil
		},
	}
}
