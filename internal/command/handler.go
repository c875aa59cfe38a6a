package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-valve/internal/protocol"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// Channels a command can arrive on. Used as a metrics label.
const (
	ChannelMQTT      = "mqtt"
	ChannelWebSocket = "websocket"
	ChannelHTTP      = "http"
)

// Scheduler re-arms timetable jobs from a configuration.
// *schedule.Runner satisfies it.
type Scheduler interface {
	Apply(cfg valve.ControlConfig) error
}

// Metrics counts handled commands. *metrics.Recorder satisfies it.
type Metrics interface {
	IncCommand(channel, event string, err error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithRepository persists each applied configuration.
func WithRepository(r valve.ConfigRepository) Option {
	return func(h *Handler) { h.repo = r }
}

// WithScheduler re-arms the schedule whenever the configuration changes.
func WithScheduler(s Scheduler) Option {
	return func(h *Handler) { h.sched = s }
}

// WithMetrics sets the command counter.
func WithMetrics(m Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l valve.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// Handler decodes commands and writes them into a valve.Store.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent basic
// commands overwrite each other and the last one wins.
type Handler struct {
	deviceID string
	store    *valve.Store
	repo     valve.ConfigRepository
	sched    Scheduler
	metrics  Metrics
	logger   valve.Logger
}

// New returns a handler for the device identified by deviceID.
func New(deviceID string, store *valve.Store, opts ...Option) *Handler {
	h := &Handler{
		deviceID: deviceID,
		store:    store,
		metrics:  nopMetrics{},
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Route dispatches payload by its event field.
func (h *Handler) Route(ctx context.Context, channel string, payload []byte) error {
	env, err := protocol.PeekEvent(payload)
	if err != nil {
		h.reject(channel, "", err)
		return err
	}

	switch env.Event {
	case protocol.EventSetValveBasic:
		return h.HandleBasic(ctx, channel, payload)
	case protocol.EventSetValveControl:
		return h.HandleControl(ctx, channel, payload)
	case protocol.EventSetValveWifi:
		err = fmt.Errorf("%w: %s", ErrUnsupported, env.Event)
	default:
		err = fmt.Errorf("%w: %q", protocol.ErrUnknownEvent, env.Event)
	}
	h.reject(channel, env.Event, err)
	return err
}

// HandleBasic applies a set_valve_basic payload from the broker or API.
func (h *Handler) HandleBasic(_ context.Context, channel string, payload []byte) error {
	cmd, err := protocol.DecodeBasic(payload)
	if err == nil {
		err = cmd.CheckDevice(h.deviceID)
	}
	if err != nil {
		h.reject(channel, protocol.EventSetValveBasic, err)
		return err
	}

	h.ApplyBasic(cmd.Requested())
	h.metrics.IncCommand(channel, protocol.EventSetValveBasic, nil)
	return nil
}

// HandleLocalBasic applies a set_valve_basic payload from an authorised
// websocket client. Local commands always clear both automatic modes.
// A message without valve_data changes nothing.
func (h *Handler) HandleLocalBasic(_ context.Context, payload []byte) error {
	r, ok, err := protocol.DecodeLocalBasic(payload)
	if err != nil {
		h.reject(ChannelWebSocket, protocol.EventSetValveBasic, err)
		return err
	}
	if ok {
		h.ApplyBasic(r)
	}
	h.metrics.IncCommand(ChannelWebSocket, protocol.EventSetValveBasic, nil)
	return nil
}

// HandleControl applies a set_valve_control payload.
func (h *Handler) HandleControl(ctx context.Context, channel string, payload []byte) error {
	cmd, err := protocol.DecodeControl(payload)
	if err == nil {
		err = cmd.CheckDevice(h.deviceID)
	}
	if err != nil {
		h.reject(channel, protocol.EventSetValveControl, err)
		return err
	}

	return h.SubmitControl(ctx, channel, cmd.Config())
}

// Submit applies a RequestedControl that arrived already decoded.
func (h *Handler) Submit(channel string, r valve.RequestedControl) {
	h.ApplyBasic(r)
	h.metrics.IncCommand(channel, protocol.EventSetValveBasic, nil)
}

// SubmitControl applies a ControlConfig that arrived already decoded.
func (h *Handler) SubmitControl(ctx context.Context, channel string, cfg valve.ControlConfig) error {
	err := h.ApplyControl(ctx, cfg)
	h.metrics.IncCommand(channel, protocol.EventSetValveControl, err)
	return err
}

// ApplyBasic overwrites RequestedControl.
func (h *Handler) ApplyBasic(r valve.RequestedControl) {
	h.store.SetRequested(r)
	h.logger.Info("valve request updated",
		"schedule", r.ScheduleMode,
		"sensor", r.SensorMode,
		"set_angle", r.SetAngle,
		"angle", r.Angle,
	)
}

// ApplyControl replaces ControlConfig, persists it and re-arms the schedule.
//
// The in-memory configuration is updated even when saving fails, so the
// device behaves as commanded until the next restart. Schedule entries that
// could not be parsed are logged; the rest stay armed.
func (h *Handler) ApplyControl(ctx context.Context, cfg valve.ControlConfig) error {
	cfg = cfg.Clone()
	if cfg.TrimSchedule() {
		h.logger.Warn("schedule truncated", "max_entries", valve.MaxScheduleEntries)
	}
	h.store.SetConfig(cfg)

	var err error
	if h.repo != nil {
		if saveErr := h.repo.SaveConfig(ctx, cfg); saveErr != nil {
			err = fmt.Errorf("%w: %w", ErrPersist, saveErr)
			h.logger.Error("saving control config failed", "error", saveErr)
		}
	}

	h.arm(cfg)

	h.logger.Info("control config updated",
		"schedule", cfg.ScheduleMode,
		"sensor", cfg.SensorMode,
		"set_schedule", cfg.ApplySchedule,
		"entries", len(cfg.Schedule),
		"upper_limit", cfg.SensorUpper,
		"lower_limit", cfg.SensorLower,
	)
	return err
}

// Restore loads the persisted configuration into the store and arms the
// schedule. A device that has never been configured keeps the defaults.
func (h *Handler) Restore(ctx context.Context) error {
	if h.repo == nil {
		return nil
	}

	cfg, err := h.repo.LoadConfig(ctx)
	if errors.Is(err, valve.ErrConfigNotFound) {
		h.logger.Info("no stored control config, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading control config: %w", err)
	}

	h.store.SetConfig(cfg)
	h.arm(cfg)
	h.logger.Info("control config restored", "entries", len(cfg.Schedule), "schedule", cfg.ScheduleMode)
	return nil
}

func (h *Handler) arm(cfg valve.ControlConfig) {
	if h.sched == nil {
		return
	}
	if err := h.sched.Apply(cfg); err != nil {
		h.logger.Warn("schedule applied with errors", "error", err)
	}
}

func (h *Handler) reject(channel, event string, err error) {
	if event == "" {
		event = "unknown"
	}
	h.metrics.IncCommand(channel, event, err)
	h.logger.Warn("command dropped", "channel", channel, "event", event, "error", err)
}

type nopMetrics struct{}

func (nopMetrics) IncCommand(string, string, error) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
