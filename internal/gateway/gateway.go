// Package gateway wires MeshMonitor's subsystems together:
//   - transport.Manager  — TCP / HTTP long-poll / serial link
//   - session.Session    — device FSM, handshake, serialized sends
//   - ingest.Pipeline    — portnum dispatch into the store
//   - store.DB + Writer  — single-writer SQLite
//   - eventbus.Bus       — WebSocket fan-out
//   - scheduler + automation — periodic and event-driven jobs
//   - api.NewRouter      — the HTTP/JSON surface
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/api"
	"github.com/meshmonitor/meshmonitor/internal/automation"
	"github.com/meshmonitor/meshmonitor/internal/config"
	"github.com/meshmonitor/meshmonitor/internal/eventbus"
	"github.com/meshmonitor/meshmonitor/internal/ingest"
	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/scheduler"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
	"github.com/meshmonitor/meshmonitor/internal/transport"
)

// defaultTCPPort is the Meshtastic firmware's stream API port.
const defaultTCPPort = 4403

// Service is the long-lived gateway process: one radio, one store, one
// HTTP surface.
type Service struct {
	cfg       *config.Config
	db        *store.DB
	writer    *store.Writer
	bus       *eventbus.Bus
	transport transport.Manager
	session   *session.Session
	pipeline  *ingest.Pipeline
	engine    *automation.Engine
	sched     *scheduler.Scheduler
	apiServer *http.Server
	log       *zap.Logger

	runCtx context.Context
}

// New constructs a Service but does not start it. The database is opened
// and migrated here so a failure surfaces before any goroutine spawns.
func New(cfg *config.Config, log *zap.Logger) (*Service, error) {
	db, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := seedRetentionSettings(context.Background(), db, cfg.Retention); err != nil {
		db.Close()
		return nil, err
	}

	g := &Service{
		cfg:    cfg,
		db:     db,
		writer: store.NewWriter(db, log),
		bus:    eventbus.New(),
		log:    log,
	}

	tr, err := buildTransport(cfg.Radio, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	g.transport = tr

	g.session = session.New(tr, log, g.onFrame, g.onStateChange)

	g.engine, err = automation.New(cfg.Automation, 0, g.session, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	g.pipeline = ingest.New(db, g.writer, log, 0, g.channelKey, g.session, g.bus, g.engine)

	g.sched = scheduler.New(g.session, log)
	for _, j := range scheduler.BuildDefaultJobs(cfg.Scheduler, cfg.Automation, db, g.session, g.session.LocalNode, log) {
		g.sched.Add(j)
	}

	router := api.NewRouter(api.Deps{
		DB:          db,
		Session:     g.session,
		Bus:         g.bus,
		Scheduler:   g.sched,
		LocalNode:   g.session.LocalNode,
		CORSOrigins: cfg.HTTP.CORS,
		Log:         log,
	})

	handler := http.Handler(router)
	if prefix := strings.TrimSuffix(cfg.HTTP.BaseURL, "/"); prefix != "" {
		handler = http.StripPrefix(prefix, router)
	}

	g.apiServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return g, nil
}

// Start launches all subsystems and blocks until ctx is cancelled or the
// HTTP server fails.
func (g *Service) Start(ctx context.Context) error {
	g.runCtx = ctx

	go g.writer.Run(ctx)
	go g.sched.Run(ctx)

	if err := g.session.Start(ctx); err != nil {
		// Non-fatal: the transport's own reconnect loop keeps retrying.
		g.log.Warn("gateway: initial connect failed, will retry", zap.Error(err))
	}

	ln, err := net.Listen("tcp", g.apiServer.Addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.apiServer.Addr, err)
	}
	g.log.Info("HTTP gateway listening", zap.String("addr", ln.Addr().String()))

	srvErr := make(chan error, 1)
	go func() {
		if err := g.apiServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		g.log.Info("gateway: shutting down")
		g.transport.Disconnect() //nolint:errcheck
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := g.apiServer.Shutdown(shutCtx)
		g.db.Close()
		return err
	case err := <-srvErr:
		g.db.Close()
		return err
	}
}

// onFrame feeds every decoded FromRadio frame from the session into the
// ingest pipeline, synchronously, preserving arrival order.
func (g *Service) onFrame(payload []byte) {
	ctx := g.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	g.pipeline.HandleFrame(ctx, payload)
}

// onStateChange propagates session transitions: leaving Connected cancels
// job-issued in-flight commands; entering Connected hands
// the freshly-learned local node number to the automation engine.
func (g *Service) onStateChange(old, new session.State) {
	g.log.Info("session state", zap.String("from", old.String()), zap.String("to", new.String()))
	if old == session.Connected && new != session.Connected {
		g.sched.CancelInFlight()
	}
	if new == session.Connected {
		g.engine.SetLocalNode(g.session.LocalNode())
	}
}

// channelKey resolves a channel index to its decryption key; unknown or
// unset PSKs fall back to the default public key.
func (g *Service) channelKey(channel int32) []byte {
	ctx := g.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := g.db.GetChannel(ctx, int(channel))
	if err != nil || c == nil || c.PSK == "" {
		return meshproto.DefaultKey
	}
	key, err := meshproto.ResolveChannelKey(c.PSK)
	if err != nil {
		g.log.Warn("gateway: bad channel psk, using default key", zap.Int32("channel", channel), zap.Error(err))
		return meshproto.DefaultKey
	}
	return key
}

// buildTransport picks the concrete link per config.
func buildTransport(cfg config.RadioConfig, log *zap.Logger) (transport.Manager, error) {
	switch cfg.Transport {
	case "tcp":
		addr := cfg.NodeIP
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, strconv.Itoa(defaultTCPPort))
		}
		return transport.NewTCP(addr, log), nil
	case "http":
		return transport.NewHTTP(cfg.NodeIP, cfg.UseTLS, time.Second, log), nil
	case "serial":
		return transport.NewSerial(cfg.SerialDev, cfg.BaudRate, log), nil
	default:
		return nil, fmt.Errorf("gateway: unknown transport %q", cfg.Transport)
	}
}

// seedRetentionSettings writes the configured horizons into settings on
// first boot so the sweep job reads one authoritative place and the
// /api/settings endpoints can tune them at runtime.
func seedRetentionSettings(ctx context.Context, db *store.DB, r config.RetentionConfig) error {
	seed := map[string]time.Duration{
		"retention.telemetry":        r.Telemetry,
		"retention.messages":         r.Messages,
		"retention.position_history": r.PositionHist,
		"retention.neighbor_info":    r.NeighborInfo,
	}
	for key, d := range seed {
		if _, ok, err := db.GetSetting(ctx, key); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := db.SetSetting(ctx, key, d.String()); err != nil {
			return err
		}
	}
	return nil
}
