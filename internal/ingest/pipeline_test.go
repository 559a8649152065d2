package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/database"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
	"github.com/nerrad567/coldtag-core/migrations"
)

const (
	coreAddr  = "C0:C0:C0:C0:C0:01"
	nodeAddr  = "AA:AA:AA:AA:AA:01"
	eventTime = "2026-10-15T09:00:00Z"
)

// fakeSubscriber captures handlers instead of talking to a broker.
type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	failures     int
	attempts     int
	unsubscribed []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return mqtt.ErrNotConnected
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// deliver hands a message to the handler subscribed under pattern.
func (f *fakeSubscriber) deliver(t *testing.T, pattern, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[pattern]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %q", pattern)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%q) error = %v", topic, err)
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) find(level, msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// arg returns the value logged under key.
func (e logEntry) arg(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}

type mirrored struct {
	kind   telemetry.Kind
	device string
	core   string
}

type fakeMirror struct {
	mu     sync.Mutex
	points []mirrored
}

func (m *fakeMirror) WriteEvent(ev telemetry.Event, device, core string) {
	m.mu.Lock()
	m.points = append(m.points, mirrored{kind: ev.Kind(), device: device, core: core})
	m.mu.Unlock()
}

type fixture struct {
	pipeline *Pipeline
	sub      *fakeSubscriber
	store    *telemetry.Store
	registry *device.Registry
	logger   *recordingLogger
	mirror   *fakeMirror
	core     *device.Device
	node     *device.Device
}

func setupPipeline(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	ctx := context.Background()
	registry := device.NewRegistry(device.NewSQLiteRepository(db), nil)
	core, err := registry.Register(ctx, device.KindCore, coreAddr, nil)
	if err != nil {
		t.Fatalf("Register(core) error = %v", err)
	}
	node, err := registry.Register(ctx, device.KindNode, nodeAddr, nil)
	if err != nil {
		t.Fatalf("Register(node) error = %v", err)
	}

	f := &fixture{
		sub:      newFakeSubscriber(),
		store:    telemetry.NewStore(db),
		registry: registry,
		logger:   &recordingLogger{},
		mirror:   &fakeMirror{},
		core:     core,
		node:     node,
	}
	f.pipeline = New(f.sub, registry, f.store, cfg)
	f.pipeline.SetLogger(f.logger)
	f.pipeline.SetMirror(f.mirror)
	f.pipeline.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 5, 0, time.UTC) }
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(f.pipeline.Stop)
	waitFor(t, "all streams subscribed", func() bool { return f.sub.count() == 4 })
}

// settled reports whether every received message on stream i has an outcome.
func (f *fixture) settled(i int) bool {
	s := f.pipeline.Stats()[i]
	return s.Received == s.Stored+s.Duplicates+s.Dropped+s.Ignored
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nodeJSON(core string, temperature float64) string {
	return fmt.Sprintf(`{"core_mac_address":%q,"temperature":%v,"humidity":55.5,`+
		`"latitude":51.5,"longitude":-0.12,"core_coldtag_received_time":%q,"event_time":%q}`,
		core, temperature, eventTime, eventTime)
}

func alertJSON(core string) string {
	return fmt.Sprintf(`{"core_mac_address":%q,"core_coldtag_received_time":%q,"event_time":%q}`,
		core, eventTime, eventTime)
}

const (
	streamCore = iota
	streamNode
	streamImpact
	streamLiquid
)

func TestPipeline_StoresEveryStream(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	f.start(t)
	topics := mqtt.Topics{}

	f.sub.deliver(t, topics.AllCoreTelemetry(), topics.CoreTelemetry(coreAddr),
		`{"event_time":"2026-10-15T09:00:00Z","latitude":51.5,"longitude":-0.12}`)
	f.sub.deliver(t, topics.AllNodeTelemetry(), topics.NodeTelemetry(nodeAddr), nodeJSON(coreAddr, 4.5))
	f.sub.deliver(t, topics.AllNodeAlerts("impact"), topics.NodeAlert(nodeAddr, "impact"), alertJSON(coreAddr))
	f.sub.deliver(t, topics.AllNodeAlerts("liquid"), topics.NodeAlert(nodeAddr, "liquid"), alertJSON(coreAddr))

	waitFor(t, "four stored events", func() bool {
		var stored uint64
		for _, s := range f.pipeline.Stats() {
			stored += s.Stored
		}
		return stored == 4
	})

	ctx := context.Background()
	cores, err := f.store.CoreEvents(ctx, f.core.ID, telemetry.Query{})
	if err != nil || len(cores) != 1 {
		t.Fatalf("CoreEvents() = %d events, %v; want 1", len(cores), err)
	}
	if cores[0].Coordinate == nil || cores[0].Coordinate.Latitude != 51.5 {
		t.Errorf("core coordinate = %+v, want latitude 51.5", cores[0].Coordinate)
	}

	nodes, err := f.store.NodeEvents(ctx, f.node.ID, telemetry.Query{})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("NodeEvents() = %d events, %v; want 1", len(nodes), err)
	}
	got := nodes[0]
	if got.CoreID != f.core.ID {
		t.Errorf("CoreID = %d, want %d", got.CoreID, f.core.ID)
	}
	if got.Temperature == nil || *got.Temperature != 4.5 {
		t.Errorf("Temperature = %v, want 4.5", got.Temperature)
	}
	if want := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC); !got.EventTime.Equal(want) {
		t.Errorf("EventTime = %v, want %v", got.EventTime, want)
	}

	for _, kind := range []telemetry.AlertKind{telemetry.AlertImpact, telemetry.AlertLiquid} {
		alerts, err := f.store.AlertEvents(ctx, f.node.ID, kind, telemetry.Query{})
		if err != nil || len(alerts) != 1 {
			t.Errorf("AlertEvents(%s) = %d events, %v; want 1", kind, len(alerts), err)
		}
	}

	f.mirror.mu.Lock()
	defer f.mirror.mu.Unlock()
	if len(f.mirror.points) != 4 {
		t.Fatalf("mirrored %d events, want 4", len(f.mirror.points))
	}
	for _, p := range f.mirror.points {
		if p.core != coreAddr {
			t.Errorf("mirrored %s core = %q, want %q", p.kind, p.core, coreAddr)
		}
		if p.kind != telemetry.KindCoreTelemetry && p.device != nodeAddr {
			t.Errorf("mirrored %s device = %q, want %q", p.kind, p.device, nodeAddr)
		}
	}
}

func TestPipeline_UnknownCoreDropped(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	f.start(t)
	topics := mqtt.Topics{}
	topic := topics.NodeTelemetry(nodeAddr)

	f.sub.deliver(t, topics.AllNodeTelemetry(), topic, nodeJSON("C0:C0:C0:C0:C0:99", 1))
	f.sub.deliver(t, topics.AllNodeTelemetry(), topic, nodeJSON(coreAddr, 2))
	waitFor(t, "node stream settled", func() bool {
		s := f.pipeline.Stats()[streamNode]
		return s.Received == 2 && f.settled(streamNode)
	})

	stats := f.pipeline.Stats()[streamNode]
	if stats.Dropped != 1 || stats.Stored != 1 {
		t.Errorf("stats = %+v, want 1 dropped and 1 stored", stats)
	}

	events, err := f.store.NodeEvents(context.Background(), f.node.ID, telemetry.Query{})
	if err != nil {
		t.Fatalf("NodeEvents() error = %v", err)
	}
	if len(events) != 1 || *events[0].Temperature != 2 {
		t.Errorf("stored events = %+v, want only the reading from the known core", events)
	}

	drops := f.logger.find("warn", "dropping message")
	if len(drops) != 1 {
		t.Fatalf("logged %d drops, want 1", len(drops))
	}
	if drops[0].arg("topic") != topic {
		t.Errorf("logged topic = %v, want %q", drops[0].arg("topic"), topic)
	}
	if drops[0].arg("stream") != string(telemetry.KindNodeTelemetry) {
		t.Errorf("logged stream = %v, want %q", drops[0].arg("stream"), telemetry.KindNodeTelemetry)
	}
	err, _ = drops[0].arg("error").(error)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("logged error = %v, want ErrUnknownDevice", err)
	}
}

func TestPipeline_Deduplicate(t *testing.T) {
	tests := []struct {
		name        string
		deduplicate bool
		wantStored  uint64
		wantDupes   uint64
	}{
		{"enabled", true, 1, 1},
		{"disabled", false, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Deduplicate = tt.deduplicate
			f := setupPipeline(t, cfg)
			s := f.pipeline.streams[streamNode]
			msg := message{topic: mqtt.Topics{}.NodeTelemetry(nodeAddr), payload: []byte(nodeJSON(coreAddr, 3))}

			f.pipeline.process(context.Background(), s, msg)
			f.pipeline.process(context.Background(), s, msg)

			stats := s.stats()
			if stats.Stored != tt.wantStored || stats.Duplicates != tt.wantDupes {
				t.Errorf("stored = %d, duplicates = %d; want %d, %d",
					stats.Stored, stats.Duplicates, tt.wantStored, tt.wantDupes)
			}
			f.mirror.mu.Lock()
			defer f.mirror.mu.Unlock()
			if uint64(len(f.mirror.points)) != tt.wantStored {
				t.Errorf("mirrored %d events, want %d", len(f.mirror.points), tt.wantStored)
			}
		})
	}
}

func TestPipeline_DropsBadMessages(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	ctx := context.Background()
	if _, err := f.registry.Register(ctx, device.KindNode, "AA:AA:AA:AA:AA:02", nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	deleted, err := f.registry.Register(ctx, device.KindNode, "AA:AA:AA:AA:AA:03", nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := f.registry.SoftDelete(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"not json", mqtt.Topics{}.NodeTelemetry(nodeAddr), `{"temperature":`, ErrInvalidPayload},
		{"missing core", mqtt.Topics{}.NodeTelemetry(nodeAddr), `{"event_time":"2026-10-15T09:00:00Z","core_coldtag_received_time":"2026-10-15T09:00:00Z"}`, ErrInvalidPayload},
		{"offset timestamp", mqtt.Topics{}.NodeTelemetry(nodeAddr), strings.Replace(nodeJSON(coreAddr, 1), `"event_time":"2026-10-15T09:00:00Z"`, `"event_time":"2026-10-15T09:00:00+02:00"`, 1), ErrInvalidPayload},
		{"unknown node", mqtt.Topics{}.NodeTelemetry("AA:AA:AA:AA:AA:99"), nodeJSON(coreAddr, 1), ErrUnknownDevice},
		{"core address as node", mqtt.Topics{}.NodeTelemetry(coreAddr), nodeJSON(coreAddr, 1), ErrUnknownDevice},
		{"malformed address", mqtt.Topics{}.NodeTelemetry("not-a-mac"), nodeJSON(coreAddr, 1), ErrInvalidTopic},
		{"deleted node", mqtt.Topics{}.NodeTelemetry("AA:AA:AA:AA:AA:03"), nodeJSON(coreAddr, 1), device.ErrDeviceDeleted},
	}

	s := f.pipeline.streams[streamNode]
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			address, ok := mqtt.DeviceAddress(s.pattern, tt.topic)
			if !ok {
				t.Fatalf("topic %q does not match stream", tt.topic)
			}
			if _, err := s.decode(ctx, address, []byte(tt.payload)); !errors.Is(err, tt.wantErr) {
				t.Errorf("decode() error = %v, want %v", err, tt.wantErr)
			}

			f.pipeline.process(ctx, s, message{topic: tt.topic, payload: []byte(tt.payload)})
			if got := s.dropped.Load(); got != uint64(i+1) {
				t.Errorf("dropped = %d, want %d", got, i+1)
			}
		})
	}

	events, err := f.store.NodeEventsInRange(ctx, telemetry.Query{})
	if err != nil {
		t.Fatalf("NodeEventsInRange() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("stored %d events, want 0", len(events))
	}
}

func TestPipeline_IgnoresForeignTopic(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	s := f.pipeline.streams[streamImpact]

	f.pipeline.process(context.Background(), s, message{
		topic:   "node_event/" + nodeAddr + "/alert/impact/extra",
		payload: []byte(alertJSON(coreAddr)),
	})

	if got := s.ignored.Load(); got != 1 {
		t.Errorf("ignored = %d, want 1", got)
	}
	if len(f.logger.find("warn", "dropping message")) != 0 {
		t.Error("foreign topic was logged as a drop")
	}
}

type panickingStore struct {
	EventStore
	calls int
}

func (p *panickingStore) Append(ctx context.Context, ev telemetry.Event, key string) (bool, error) {
	p.calls++
	if p.calls == 1 {
		panic("disk on fire")
	}
	return p.EventStore.Append(ctx, ev, key)
}

func TestPipeline_RecoversPanic(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	f.pipeline.store = &panickingStore{EventStore: f.store}
	s := f.pipeline.streams[streamNode]
	topic := mqtt.Topics{}.NodeTelemetry(nodeAddr)

	f.pipeline.process(context.Background(), s, message{topic: topic, payload: []byte(nodeJSON(coreAddr, 1))})
	f.pipeline.process(context.Background(), s, message{topic: topic, payload: []byte(nodeJSON(coreAddr, 2))})

	if s.dropped.Load() != 1 || s.stored.Load() != 1 {
		t.Errorf("stats = %+v, want 1 dropped and 1 stored", s.stats())
	}
	if len(f.logger.find("error", "panic processing message")) != 1 {
		t.Error("panic was not logged")
	}
}

func TestPipeline_SubscribeRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	f := setupPipeline(t, cfg)
	f.sub.failures = 3

	f.start(t)

	if got := len(f.logger.find("warn", "subscribe failed, retrying")); got != 3 {
		t.Errorf("logged %d retries, want 3", got)
	}
	for _, s := range f.pipeline.Stats() {
		if !s.Subscribed {
			t.Errorf("stream %s not subscribed", s.Stream)
		}
	}
}

func TestPipeline_StopWhileRetrying(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Hour
	f := setupPipeline(t, cfg)
	f.sub.failures = 100

	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.pipeline.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() blocked on the retry delay")
	}
	if len(f.sub.unsubscribed) != 0 {
		t.Errorf("unsubscribed %v, want nothing", f.sub.unsubscribed)
	}
}

func (f *fakeSubscriber) failNext(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

func (f *fakeSubscriber) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fixture) allSubscribed(want bool) bool {
	for _, s := range f.pipeline.Stats() {
		if s.Subscribed != want {
			return false
		}
	}
	return true
}

func TestPipeline_ResubscribesAfterReconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	f := setupPipeline(t, cfg)
	f.start(t)
	waitFor(t, "streams subscribed", func() bool { return f.allSubscribed(true) })

	f.pipeline.Disconnected()
	if !f.allSubscribed(false) {
		t.Fatalf("stats after disconnect = %+v, want every stream unsubscribed", f.pipeline.Stats())
	}

	// The broker rejects the first two SUBSCRIBEs after the link returns.
	f.sub.failNext(2)
	f.pipeline.Resubscribe()
	waitFor(t, "streams resubscribed", func() bool { return f.allSubscribed(true) })

	if got := len(f.logger.find("warn", "subscribe failed, retrying")); got != 2 {
		t.Errorf("logged %d retries, want 2", got)
	}
	if got := f.sub.attemptCount(); got != 10 {
		t.Errorf("subscribe attempts = %d, want 4 initial + 4 resubscribes + 2 retries", got)
	}

	topics := mqtt.Topics{}
	f.sub.deliver(t, topics.AllNodeTelemetry(), topics.NodeTelemetry(nodeAddr), nodeJSON(coreAddr, 6))
	waitFor(t, "reading stored after reconnect", func() bool {
		return f.pipeline.Stats()[streamNode].Stored == 1
	})
}

func TestPipeline_ResubscribeWhileStopped(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())

	f.pipeline.Resubscribe()

	for _, s := range f.pipeline.streams {
		if len(s.resubscribe) != 0 {
			t.Errorf("stream %s has a pending resubscribe while stopped", s.name)
		}
	}
	if f.sub.attemptCount() != 0 {
		t.Errorf("subscribe attempts = %d while stopped, want 0", f.sub.attemptCount())
	}
}

// blockingStore holds the first Append until release is closed.
type blockingStore struct {
	EventStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Append(ctx context.Context, ev telemetry.Event, key string) (bool, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.EventStore.Append(ctx, ev, key)
}

func TestPipeline_StopDiscardsQueued(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	store := &blockingStore{
		EventStore: f.store,
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	f.pipeline.store = store
	f.start(t)

	topics := mqtt.Topics{}
	for i := 0; i < 3; i++ {
		f.sub.deliver(t, topics.AllNodeTelemetry(), topics.NodeTelemetry(nodeAddr), nodeJSON(coreAddr, float64(i)))
	}
	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first message never reached the store")
	}

	stopped := make(chan struct{})
	go func() {
		f.pipeline.Stop()
		close(stopped)
	}()
	waitFor(t, "pipeline cancelled", func() bool { return !f.pipeline.isRunning() })
	close(store.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}

	stats := f.pipeline.Stats()[streamNode]
	if stats.Received != 3 || stats.Stored != 1 || stats.Dropped != 2 {
		t.Errorf("stats = %+v, want 3 received, 1 stored and 2 dropped", stats)
	}
	discarded := f.logger.find("warn", "discarded queued messages")
	if len(discarded) != 1 || discarded[0].arg("count") != 2 {
		t.Errorf("discard log = %+v, want one entry with count 2", discarded)
	}

	// A restart must not replay what the previous run left behind.
	f.start(t)
	time.Sleep(50 * time.Millisecond)
	events, err := f.store.NodeEvents(context.Background(), f.node.ID, telemetry.Query{})
	if err != nil {
		t.Fatalf("NodeEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("stored %d events after restart, want 1", len(events))
	}
}

func TestPipeline_StartStop(t *testing.T) {
	f := setupPipeline(t, DefaultConfig())
	f.start(t)

	if err := f.pipeline.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	f.pipeline.Stop()
	f.pipeline.Stop()

	if len(f.sub.unsubscribed) != 4 {
		t.Errorf("unsubscribed %v, want all four streams", f.sub.unsubscribed)
	}

	// A stopped pipeline ignores late deliveries.
	h := f.pipeline.enqueue(f.pipeline.streams[streamCore])
	if err := h(mqtt.Topics{}.CoreTelemetry(coreAddr), []byte(`{}`)); err != nil {
		t.Errorf("handler error = %v", err)
	}
	if got := f.pipeline.Stats()[streamCore].Received; got != 0 {
		t.Errorf("received = %d after Stop, want 0", got)
	}

	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Errorf("restart error = %v", err)
	}
}

func TestPipeline_QueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	f := setupPipeline(t, cfg)
	f.pipeline.setRunning(true)

	s := f.pipeline.streams[streamLiquid]
	h := f.pipeline.enqueue(s)
	topic := mqtt.Topics{}.NodeAlert(nodeAddr, "liquid")
	for i := 0; i < 3; i++ {
		if err := h(topic, []byte(alertJSON(coreAddr))); err != nil {
			t.Fatalf("handler error = %v", err)
		}
	}

	stats := s.stats()
	if stats.Received != 3 || stats.Dropped != 2 {
		t.Errorf("stats = %+v, want 3 received and 2 dropped", stats)
	}
	if len(s.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(s.queue))
	}
	for _, e := range f.logger.find("warn", "dropping message") {
		if err, _ := e.arg("error").(error); !errors.Is(err, ErrQueueFull) {
			t.Errorf("logged error = %v, want ErrQueueFull", err)
		}
	}
}

func TestStreamTopics(t *testing.T) {
	p := New(newFakeSubscriber(), nil, nil, Config{})

	tests := []struct {
		stream int
		topic  string
		want   string
	}{
		{streamCore, "core_event/C0:C0:C0:C0:C0:01/telementry", "C0:C0:C0:C0:C0:01"},
		{streamCore, "core_event/C0:C0:C0:C0:C0:01/telemetry", ""},
		{streamCore, "core_event//telementry", ""},
		{streamNode, "node_event/aa-aa-aa-aa-aa-01/telementry", "aa-aa-aa-aa-aa-01"},
		{streamNode, "node_event/a/b/telementry", ""},
		{streamImpact, "node_event/AA:AA:AA:AA:AA:01/alert/impact", "AA:AA:AA:AA:AA:01"},
		{streamImpact, "node_event/AA:AA:AA:AA:AA:01/alert/liquid", ""},
		{streamLiquid, "node_event/AA:AA:AA:AA:AA:01/alert/liquid", "AA:AA:AA:AA:AA:01"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, _ := mqtt.DeviceAddress(p.streams[tt.stream].pattern, tt.topic)
			if got != tt.want {
				t.Errorf("address = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageKey(t *testing.T) {
	topic := mqtt.Topics{}.CoreTelemetry(coreAddr)
	a := MessageKey(topic, []byte(`{"event_time":"2026-10-15T09:00:00Z"}`))

	if b := MessageKey(topic, []byte(`{"event_time":"2026-10-15T09:00:00Z"}`)); a != b {
		t.Errorf("same message keys differ: %s, %s", a, b)
	}
	if b := MessageKey(topic, []byte(`{"event_time":"2026-10-15T09:00:01Z"}`)); a == b {
		t.Error("different payloads share a key")
	}
	if b := MessageKey(mqtt.Topics{}.CoreTelemetry("C0:C0:C0:C0:C0:02"), []byte(`{"event_time":"2026-10-15T09:00:00Z"}`)); a == b {
		t.Error("different topics share a key")
	}
}
