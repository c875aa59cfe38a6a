package telemetry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-valve/internal/protocol"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// DefaultInterval is the time between publications.
const DefaultInterval = 5 * time.Second

// Sink names used as a metrics label.
const (
	SinkMQTT      = "mqtt"
	SinkInfluxDB  = "influxdb"
	SinkWebSocket = "websocket"
)

// Publisher sends JSON documents to the broker. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
	IsConnected() bool
	Topics() mqtt.Topics
}

// Series stores state snapshots. *influxdb.Client satisfies it.
type Series interface {
	WriteValveState(deviceID string, s valve.ObservedState, at time.Time)
}

// Broadcaster pushes a document to local websocket clients.
type Broadcaster interface {
	Broadcast(v any) int
}

// Metrics mirrors state into gauges. *metrics.Recorder satisfies it.
type Metrics interface {
	SetObserved(angle int, openKnown, closeKnown bool)
	IncPublish(sink string, err error)
}

// Link is the connectivity indicator. *valve.Indicator satisfies it.
type Link interface {
	On() error
	Off() error
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock sets the clock driving the publish ticker.
func WithClock(c clockwork.Clock) Option {
	return func(r *Reporter) { r.clock = c }
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMQTT publishes to the broker.
func WithMQTT(p Publisher) Option {
	return func(r *Reporter) { r.mqtt = p }
}

// WithSeries writes InfluxDB points.
func WithSeries(s Series) Option {
	return func(r *Reporter) { r.series = s }
}

// WithBroadcaster pushes valve_data to websocket clients.
func WithBroadcaster(b Broadcaster) Option {
	return func(r *Reporter) { r.hub = b }
}

// WithMetrics sets the gauge recorder.
func WithMetrics(m Metrics) Option {
	return func(r *Reporter) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLink drives lamp from the broker connection state.
func WithLink(lamp Link) Option {
	return func(r *Reporter) { r.link = lamp }
}

// WithLogger sets the logger.
func WithLogger(l valve.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reporter periodically publishes ObservedState snapshots.
type Reporter struct {
	deviceID string
	store    *valve.Store
	clock    clockwork.Clock
	interval time.Duration

	mqtt    Publisher
	series  Series
	hub     Broadcaster
	metrics Metrics
	link    Link
	logger  valve.Logger

	linkUp *bool
}

// New returns a reporter for deviceID reading from store.
func New(deviceID string, store *valve.Store, opts ...Option) *Reporter {
	r := &Reporter{
		deviceID: deviceID,
		store:    store,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		metrics:  nopMetrics{},
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run publishes immediately and then every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("telemetry started", "interval", r.interval)
	r.Publish()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("telemetry stopped")
			return nil
		case <-ticker.Chan():
			r.Publish()
		}
	}
}

// Publish sends one snapshot to every sink. It is called from Run and must
// not be called concurrently with it.
func (r *Reporter) Publish() {
	s := r.store.Observed()
	now := r.clock.Now()

	r.metrics.SetObserved(s.Angle, s.OpenLimit.Known, s.CloseLimit.Known)
	r.publishMQTT(s, now)

	if r.series != nil {
		r.series.WriteValveState(r.deviceID, s, now)
		r.metrics.IncPublish(SinkInfluxDB, nil)
	}

	if r.hub != nil {
		n := r.hub.Broadcast(protocol.NewValveData(r.deviceID, now, s))
		r.metrics.IncPublish(SinkWebSocket, nil)
		r.logger.Debug("valve data broadcast", "clients", n)
	}
}

func (r *Reporter) publishMQTT(s valve.ObservedState, now time.Time) {
	if r.mqtt == nil {
		return
	}

	up := r.mqtt.IsConnected()
	r.setLink(up)
	if !up {
		r.metrics.IncPublish(SinkMQTT, mqtt.ErrNotConnected)
		return
	}

	topics := r.mqtt.Topics()
	docs := []struct {
		topic string
		doc   any
	}{
		{topics.StateData(), protocol.NewBasicData(r.deviceID, now, s)},
		{topics.Status(), protocol.NewStatus(r.deviceID, now, protocol.StatusOnline)},
		{topics.Error(), protocol.NewError(r.deviceID, now, s)},
	}
	for _, d := range docs {
		err := r.mqtt.PublishJSON(d.topic, d.doc)
		r.metrics.IncPublish(SinkMQTT, err)
		if err != nil {
			r.logger.Warn("telemetry publish failed", "topic", d.topic, "error", err)
		}
	}
}

// setLink updates the indicator only when the link state changes.
func (r *Reporter) setLink(up bool) {
	if r.link == nil || (r.linkUp != nil && *r.linkUp == up) {
		return
	}

	var err error
	if up {
		err = r.link.On()
	} else {
		err = r.link.Off()
	}
	if err != nil {
		r.logger.Warn("link indicator write failed", "error", err)
		return
	}
	r.linkUp = &up
	r.logger.Info("broker link changed", "connected", up)
}

type nopMetrics struct{}

func (nopMetrics) SetObserved(int, bool, bool) {}
func (nopMetrics) IncPublish(string, error)    {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
