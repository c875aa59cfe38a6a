package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-valve/internal/auth"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Commands applies valve commands. *command.Handler satisfies it.
type Commands interface {
	Route(ctx context.Context, channel string, payload []byte) error
	Submit(channel string, r valve.RequestedControl)
	SubmitControl(ctx context.Context, channel string, cfg valve.ControlConfig) error
	HandleLocalBasic(ctx context.Context, payload []byte) error
}

// Broker reports broker connectivity. *mqtt.Client satisfies it.
type Broker interface {
	IsConnected() bool
}

// LoopStatus reports whether an actuation is in flight. *control.Loop satisfies it.
type LoopStatus interface {
	Actuating() bool
}

// ScheduleStatus lists upcoming schedule firings. *schedule.Runner satisfies it.
type ScheduleStatus interface {
	NextRuns() []time.Time
}

// DBStats exposes connection pool statistics. *database.DB satisfies it.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
// Broker, Loop, Schedule, History, Database and Gatherer are optional.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	DeviceID string
	Version  string

	Store    *valve.Store
	Commands Commands
	Auth     *auth.Authenticator
	History  valve.HistoryRepository

	Broker   Broker
	Loop     LoopStatus
	Schedule ScheduleStatus
	Database DBStats
	Gatherer prometheus.Gatherer
}

// Server is the HTTP API and local websocket server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	deviceID string
	version  string

	store    *valve.Store
	commands Commands
	auth     *auth.Authenticator
	history  valve.HistoryRepository

	broker   Broker
	loop     LoopStatus
	schedule ScheduleStatus
	db       DBStats
	gatherer prometheus.Gatherer

	now       func() time.Time
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The websocket hub exists from New onwards so telemetry can broadcast to it
// before the listener starts.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("valve store is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command handler is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		deviceID:  deps.DeviceID,
		version:   deps.Version,
		store:     deps.Store,
		commands:  deps.Commands,
		auth:      deps.Auth,
		history:   deps.History,
		broker:    deps.Broker,
		loop:      deps.Loop,
		schedule:  deps.Schedule,
		db:        deps.Database,
		gatherer:  gatherer,
		now:       time.Now,
		startTime: time.Now(),
		hub:       NewHub(deps.Logger),
	}, nil
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
// A bind failure (port in use, bad address) is returned directly.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stops the hub, which disconnects websocket clients.
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
