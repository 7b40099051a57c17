// Package device_simulator plays the sensor node side of the line protocol
// over TCP, for local runs and for tests.
package device_simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/pkg/codec"
)

const (
	rejectToken = "ERR_AUTH"
	ventFor     = 30 * time.Second
)

type Config struct {
	Secret   string
	AckToken string
	Interval time.Duration // between GAS frames
	Logger   *slog.Logger
}

type Simulator struct {
	cfg Config
	gen *SmokeGenerator
	log *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	clients  map[*client]struct{}
	commands []string
	wg       sync.WaitGroup
}

type client struct {
	conn    net.Conn
	writeMu sync.Mutex
	alarm   bool // ALERTA:HUMO already sent for the current episode
	muted   bool // ALARM_OFF received
}

func (c *client) send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	return err
}

func New(cfg Config, gen *SmokeGenerator) *Simulator {
	if cfg.Secret == "" {
		cfg.Secret = "CLAVE_SEGURA_TI3042"
	}
	if cfg.AckToken == "" {
		cfg.AckToken = "OK_AUTH"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if gen == nil {
		gen = NewSmokeGenerator(time.Now().UnixNano(), 5)
	}
	return &Simulator{
		cfg:     cfg,
		gen:     gen,
		log:     cfg.Logger.With("component", "device-simulator"),
		clients: make(map[*client]struct{}),
	}
}

// Listen binds addr ("127.0.0.1:0" picks a free port) and returns the bound address.
func (s *Simulator) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts clients until ctx is done, then closes every connection.
func (s *Simulator) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("simulator not listening")
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Simulator) ListenAndServe(ctx context.Context, addr string) error {
	if _, err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Simulator) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.With("remote", conn.RemoteAddr().String())

	sc := bufio.NewScanner(conn)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if !sc.Scan() {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &client{conn: conn}
	if strings.TrimSpace(sc.Text()) != s.cfg.Secret {
		log.Warn("client rejected: bad secret")
		_ = c.send(rejectToken)
		return
	}
	if err := c.send(s.cfg.AckToken); err != nil {
		return
	}
	log.Info("client authenticated")

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.stream(cctx, c)

	for sc.Scan() {
		s.command(c, strings.TrimSpace(sc.Text()))
	}
	log.Info("client gone")
}

// stream sends one GAS frame per interval and ALERTA:HUMO on each upward
// crossing of the danger threshold.
func (s *Simulator) stream(ctx context.Context, c *client) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			v := s.gen.Next()
			if err := c.send(fmt.Sprintf("GAS:%d", codec.Encode(v))); err != nil {
				return
			}
			s.mu.Lock()
			fire := false
			switch {
			case v > model.DangerThreshold && !c.alarm:
				c.alarm = true
				fire = !c.muted
			case v <= model.DangerThreshold:
				c.alarm, c.muted = false, false
			}
			s.mu.Unlock()
			if fire {
				_ = c.send("ALERTA:HUMO")
			}
		}
	}
}

func (s *Simulator) command(c *client, cmd string) {
	if cmd == "" {
		return
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	if cmd == model.CmdAlarmOff {
		c.muted = true
	}
	s.mu.Unlock()

	switch cmd {
	case model.CmdRelayOn:
		s.gen.Ventilate(ventFor)
		s.log.Info("relay on, ventilating", "for", ventFor)
	case model.CmdAlarmOff:
		s.log.Info("alarm silenced")
	default:
		s.log.Info("unknown command", "cmd", cmd)
	}
}

// Emit sends a raw line to every authenticated client, e.g. ALERTA:RUIDO.
func (s *Simulator) Emit(line string) {
	s.mu.Lock()
	cs := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		cs = append(cs, c)
	}
	s.mu.Unlock()
	for _, c := range cs {
		_ = c.send(line)
	}
}

// Commands returns the commands received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Simulator) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Drop closes every client connection, simulating a device reset.
func (s *Simulator) Drop() { s.closeAll() }

func (s *Simulator) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}
