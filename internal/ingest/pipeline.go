package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// Logger defines the logging interface used by the Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the MQTT side of the pipeline. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registry resolves hardware addresses. *device.Registry satisfies it.
type Registry interface {
	FindByAddress(ctx context.Context, kind device.Kind, address string) (*device.Device, error)
}

// EventStore appends events. *telemetry.Store satisfies it.
type EventStore interface {
	Append(ctx context.Context, ev telemetry.Event, key string) (bool, error)
}

// Mirror receives every newly stored event along with the hardware
// addresses of its device and relaying core. *influxdb.Client satisfies it.
type Mirror interface {
	WriteEvent(ev telemetry.Event, device, core string)
}

// Config tunes the pipeline.
type Config struct {
	// QueueSize is the buffer of each stream.
	QueueSize int

	// RetryDelay is the fixed wait between subscribe attempts, both at
	// start and after a reconnect.
	RetryDelay time.Duration

	// QoS is the subscription quality of service.
	QoS byte

	// Deduplicate derives each idempotency key from the message content.
	Deduplicate bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		RetryDelay:  2 * time.Second,
		QoS:         1,
		Deduplicate: true,
	}
}

// messageNamespace scopes the name-based keys of deduplicated messages.
var messageNamespace = uuid.MustParse("6f1c3c52-8d0e-4a55-9a4f-3f0f2b7f4c1e")

// MessageKey returns the idempotency key of a message.
func MessageKey(topic string, payload []byte) string {
	name := make([]byte, 0, len(topic)+1+len(payload))
	name = append(name, topic...)
	name = append(name, 0)
	name = append(name, payload...)
	return uuid.NewSHA1(messageNamespace, name).String()
}

// StreamStats is a snapshot of one stream's counters.
//
// Every received message ends up in exactly one of Stored, Duplicates,
// Dropped or Ignored, or is still queued.
type StreamStats struct {
	Stream     string `json:"stream"`
	Topic      string `json:"topic"`
	Subscribed bool   `json:"subscribed"`
	Received   uint64 `json:"received"`
	Stored     uint64 `json:"stored"`
	Duplicates uint64 `json:"duplicates"`
	Dropped    uint64 `json:"dropped"`
	Ignored    uint64 `json:"ignored"`
}

type message struct {
	topic   string
	payload []byte
}

// record is a decoded message ready to store.
type record struct {
	event  telemetry.Event
	device string
	core   string
}

type decodeFunc func(ctx context.Context, address string, payload []byte) (record, error)

type stream struct {
	name    string
	pattern string
	decode  decodeFunc
	queue   chan message

	// resubscribe wakes the stream goroutine after a reconnect.
	resubscribe chan struct{}

	subscribed atomic.Bool
	received   atomic.Uint64
	stored     atomic.Uint64
	duplicates atomic.Uint64
	dropped    atomic.Uint64
	ignored    atomic.Uint64
}

// discard empties the queue, counting each message as dropped, and clears a
// pending resubscribe.
func (s *stream) discard() int {
	select {
	case <-s.resubscribe:
	default:
	}
	n := 0
	for {
		select {
		case <-s.queue:
			s.dropped.Add(1)
			n++
		default:
			return n
		}
	}
}

func (s *stream) stats() StreamStats {
	return StreamStats{
		Stream:     s.name,
		Topic:      s.pattern,
		Subscribed: s.subscribed.Load(),
		Received:   s.received.Load(),
		Stored:     s.stored.Load(),
		Duplicates: s.duplicates.Load(),
		Dropped:    s.dropped.Load(),
		Ignored:    s.ignored.Load(),
	}
}

// Pipeline subscribes to the gateway topics and stores what arrives.
type Pipeline struct {
	subscriber Subscriber
	registry   Registry
	store      EventStore
	cfg        Config
	validate   *validator.Validate
	streams    []*stream

	mirror Mirror
	logger Logger
	now    func() time.Time

	// gate orders handler sends against Stop so nothing lands in a queue
	// after it has been drained.
	gate    sync.RWMutex
	running bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped pipeline. Zero Config fields take their defaults.
func New(subscriber Subscriber, registry Registry, store EventStore, cfg Config) *Pipeline {
	defaults := DefaultConfig()
	if cfg.QueueSize < 1 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}

	p := &Pipeline{
		subscriber: subscriber,
		registry:   registry,
		store:      store,
		cfg:        cfg,
		validate:   newValidator(),
		logger:     noopLogger{},
		now:        time.Now,
	}

	topics := mqtt.Topics{}
	p.streams = []*stream{
		p.newStream(telemetry.KindCoreTelemetry, topics.AllCoreTelemetry(), p.decodeCore),
		p.newStream(telemetry.KindNodeTelemetry, topics.AllNodeTelemetry(), p.decodeNode),
		p.newStream(telemetry.KindImpactAlert, topics.AllNodeAlerts(string(telemetry.AlertImpact)), p.decodeAlert(telemetry.AlertImpact)),
		p.newStream(telemetry.KindLiquidAlert, topics.AllNodeAlerts(string(telemetry.AlertLiquid)), p.decodeAlert(telemetry.AlertLiquid)),
	}
	return p
}

func (p *Pipeline) newStream(kind telemetry.Kind, pattern string, decode decodeFunc) *stream {
	return &stream{
		name:        string(kind),
		pattern:     pattern,
		decode:      decode,
		queue:       make(chan message, p.cfg.QueueSize),
		resubscribe: make(chan struct{}, 1),
	}
}

// SetMirror sets the destination that receives each stored event.
func (p *Pipeline) SetMirror(m Mirror) {
	p.mirror = m
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Start launches one goroutine per stream. Each subscribes, retrying until
// it succeeds or ctx is cancelled, then drains its queue.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.setRunning(true)
	for _, s := range p.streams {
		p.wg.Add(1)
		go p.run(ctx, s)
	}

	p.logger.Info("ingest pipeline started", "streams", len(p.streams))
	return nil
}

// Stop cancels the streams, waits for the message in flight on each to
// finish and removes the subscriptions. Messages still queued are
// discarded and counted as dropped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.setRunning(false)
	p.wg.Wait()
	p.cancel = nil

	for _, s := range p.streams {
		if n := s.discard(); n > 0 {
			p.logger.Warn("discarded queued messages", "stream", s.name, "count", n)
		}
	}

	for _, s := range p.streams {
		if !s.subscribed.Swap(false) {
			continue
		}
		if err := p.subscriber.Unsubscribe(s.pattern); err != nil {
			p.logger.Warn("unsubscribe failed", "stream", s.name, "topic", s.pattern, "error", err)
		}
	}

	p.logger.Info("ingest pipeline stopped")
}

// Resubscribe makes every stream subscribe again, retrying on RetryDelay.
// Call it from the MQTT OnConnect callback: a clean session loses its
// subscriptions with the link. It does nothing while the pipeline is stopped.
func (p *Pipeline) Resubscribe() {
	if !p.isRunning() {
		return
	}
	for _, s := range p.streams {
		s.subscribed.Store(false)
		select {
		case s.resubscribe <- struct{}{}:
		default:
		}
	}
}

// Disconnected marks every stream unsubscribed. Call it from the MQTT
// OnDisconnect callback.
func (p *Pipeline) Disconnected() {
	for _, s := range p.streams {
		s.subscribed.Store(false)
	}
}

func (p *Pipeline) setRunning(running bool) {
	p.gate.Lock()
	p.running = running
	p.gate.Unlock()
}

func (p *Pipeline) isRunning() bool {
	p.gate.RLock()
	defer p.gate.RUnlock()
	return p.running
}

// Stats returns a snapshot of every stream's counters.
func (p *Pipeline) Stats() []StreamStats {
	out := make([]StreamStats, len(p.streams))
	for i, s := range p.streams {
		out[i] = s.stats()
	}
	return out
}

func (p *Pipeline) run(ctx context.Context, s *stream) {
	defer p.wg.Done()

	if !p.subscribe(ctx, s) {
		return
	}

	// Work on a message is not interrupted by Stop.
	work := context.WithoutCancel(ctx)
	for {
		// Stop wins over a non-empty queue.
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.resubscribe:
			if !p.subscribe(ctx, s) {
				return
			}
		case m := <-s.queue:
			p.process(work, s, m)
		}
	}
}

// subscribe retries on a fixed cadence. It returns false when ctx is
// cancelled first.
func (p *Pipeline) subscribe(ctx context.Context, s *stream) bool {
	for {
		err := p.subscriber.Subscribe(s.pattern, p.cfg.QoS, p.enqueue(s))
		if err == nil {
			s.subscribed.Store(true)
			p.logger.Info("subscribed", "stream", s.name, "topic", s.pattern)
			return true
		}

		p.logger.Warn("subscribe failed, retrying",
			"stream", s.name,
			"topic", s.pattern,
			"error", err,
			"retry_in", p.cfg.RetryDelay,
		)

		timer := time.NewTimer(p.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// enqueue returns the MQTT handler of s. It never blocks: the MQTT client
// delivers every subscription on one goroutine.
func (p *Pipeline) enqueue(s *stream) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		p.gate.RLock()
		defer p.gate.RUnlock()
		if !p.running {
			return nil
		}
		s.received.Add(1)
		select {
		case s.queue <- message{topic: topic, payload: payload}:
		default:
			s.dropped.Add(1)
			p.logger.Warn("dropping message", "stream", s.name, "topic", topic, "error", ErrQueueFull)
		}
		return nil
	}
}

// process stores one message. Nothing that happens here stops the stream.
func (p *Pipeline) process(ctx context.Context, s *stream, m message) {
	defer func() {
		if r := recover(); r != nil {
			s.dropped.Add(1)
			p.logger.Error("panic processing message", "stream", s.name, "topic", m.topic, "panic", r)
		}
	}()

	address, ok := mqtt.DeviceAddress(s.pattern, m.topic)
	if !ok {
		s.ignored.Add(1)
		return
	}

	rec, err := s.decode(ctx, address, m.payload)
	if err != nil {
		p.drop(s, m, err)
		return
	}

	key := uuid.NewString()
	if p.cfg.Deduplicate {
		key = MessageKey(m.topic, m.payload)
	}

	inserted, err := p.store.Append(ctx, rec.event, key)
	if err != nil {
		p.drop(s, m, err)
		return
	}
	if !inserted {
		s.duplicates.Add(1)
		p.logger.Debug("duplicate message", "stream", s.name, "topic", m.topic)
		return
	}

	s.stored.Add(1)
	if p.mirror != nil {
		p.mirror.WriteEvent(rec.event, rec.device, rec.core)
	}
}

func (p *Pipeline) drop(s *stream, m message, err error) {
	s.dropped.Add(1)
	p.logger.Warn("dropping message", "stream", s.name, "topic", m.topic, "error", err)
}

func (p *Pipeline) decodeCore(ctx context.Context, address string, payload []byte) (record, error) {
	var body corePayload
	if err := decode(p.validate, payload, &body); err != nil {
		return record{}, err
	}
	eventTime, err := telemetry.ParseTime(body.EventTime)
	if err != nil {
		return record{}, fmt.Errorf("%w: event_time: %w", ErrInvalidPayload, err)
	}
	position, err := coordinate(body.Latitude, body.Longitude)
	if err != nil {
		return record{}, err
	}

	core, err := p.resolve(ctx, device.KindCore, address)
	if err != nil {
		return record{}, err
	}

	return record{
		event: &telemetry.CoreEvent{
			CoreID:     core.ID,
			Coordinate: position,
			EventTime:  eventTime,
			ReceivedAt: p.now().UTC(),
		},
		device: core.Address,
		core:   core.Address,
	}, nil
}

func (p *Pipeline) decodeNode(ctx context.Context, address string, payload []byte) (record, error) {
	var body nodePayload
	if err := decode(p.validate, payload, &body); err != nil {
		return record{}, err
	}
	eventTime, coreReceivedAt, err := relayedTimes(body.EventTime, body.CoreReceivedAt)
	if err != nil {
		return record{}, err
	}
	position, err := coordinate(body.Latitude, body.Longitude)
	if err != nil {
		return record{}, err
	}

	node, core, err := p.resolvePair(ctx, address, body.CoreAddress)
	if err != nil {
		return record{}, err
	}

	return record{
		event: &telemetry.NodeEvent{
			NodeID:         node.ID,
			CoreID:         core.ID,
			Temperature:    body.Temperature,
			Humidity:       body.Humidity,
			Coordinate:     position,
			CoreReceivedAt: coreReceivedAt,
			EventTime:      eventTime,
			ReceivedAt:     p.now().UTC(),
		},
		device: node.Address,
		core:   core.Address,
	}, nil
}

func (p *Pipeline) decodeAlert(kind telemetry.AlertKind) decodeFunc {
	return func(ctx context.Context, address string, payload []byte) (record, error) {
		var body alertPayload
		if err := decode(p.validate, payload, &body); err != nil {
			return record{}, err
		}
		eventTime, coreReceivedAt, err := relayedTimes(body.EventTime, body.CoreReceivedAt)
		if err != nil {
			return record{}, err
		}
		position, err := coordinate(body.Latitude, body.Longitude)
		if err != nil {
			return record{}, err
		}

		node, core, err := p.resolvePair(ctx, address, body.CoreAddress)
		if err != nil {
			return record{}, err
		}

		return record{
			event: &telemetry.AlertEvent{
				AlertKind:      kind,
				NodeID:         node.ID,
				CoreID:         core.ID,
				Coordinate:     position,
				CoreReceivedAt: coreReceivedAt,
				EventTime:      eventTime,
				ReceivedAt:     p.now().UTC(),
			},
			device: node.Address,
			core:   core.Address,
		}, nil
	}
}

// resolvePair resolves the node a message is about and the core that relayed it.
func (p *Pipeline) resolvePair(ctx context.Context, nodeAddress, coreAddress string) (node, core *device.Device, err error) {
	if node, err = p.resolve(ctx, device.KindNode, nodeAddress); err != nil {
		return nil, nil, err
	}
	if core, err = p.resolve(ctx, device.KindCore, coreAddress); err != nil {
		return nil, nil, err
	}
	return node, core, nil
}

// resolve looks up a live device. Deleted devices no longer report.
func (p *Pipeline) resolve(ctx context.Context, kind device.Kind, address string) (*device.Device, error) {
	d, err := p.registry.FindByAddress(ctx, kind, address)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownDevice, kind, address)
	case errors.Is(err, device.ErrInvalidAddress):
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	case err != nil:
		return nil, fmt.Errorf("resolving %s %s: %w", kind, address, err)
	}
	if d.Deleted {
		return nil, fmt.Errorf("%w: %s %s", device.ErrDeviceDeleted, kind, address)
	}
	return d, nil
}
