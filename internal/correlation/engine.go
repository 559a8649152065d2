package correlation

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/coldtag-core/internal/routecycle"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// EventSource is the read side of the event store used by the Engine.
// *telemetry.Store satisfies it.
type EventSource interface {
	NearestCoreEvent(ctx context.Context, coreID int64, t time.Time) (telemetry.CoreEvent, bool, error)
	NodeEvents(ctx context.Context, nodeID int64, q telemetry.Query) ([]telemetry.NodeEvent, error)
	AlertEvents(ctx context.Context, nodeID int64, kind telemetry.AlertKind, q telemetry.Query) ([]telemetry.AlertEvent, error)
}

// Engine computes correlated and cycle-scoped views.
type Engine struct {
	events EventSource
}

// NewEngine creates a correlation engine over events.
func NewEngine(events EventSource) *Engine {
	return &Engine{events: events}
}

// CoreCoordinate returns the coordinate of the reporting core's event
// nearest in time to ev. The result is nil, without error, when the core has
// never reported or its nearest report carries no position.
func (e *Engine) CoreCoordinate(ctx context.Context, ev telemetry.Correlatable) (*telemetry.Coordinate, error) {
	nearest, ok, err := e.events.NearestCoreEvent(ctx, ev.ReportingCoreID(), ev.OccurredAt())
	if err != nil {
		return nil, fmt.Errorf("correlating %s event: %w", ev.Kind(), err)
	}
	if !ok || nearest.Coordinate == nil {
		return nil, nil
	}
	c := *nearest.Coordinate
	return &c, nil
}

// Locate returns the event's own coordinate, falling back to CoreCoordinate.
func (e *Engine) Locate(ctx context.Context, ev telemetry.Correlatable) (*telemetry.Coordinate, error) {
	if own := ev.Position(); own != nil {
		c := *own
		return &c, nil
	}
	return e.CoreCoordinate(ctx, ev)
}

// CycleTelemetry returns the node readings inside the cycle's active window,
// newest first. A cycle that has not started fails with
// routecycle.ErrInvalidState.
func (e *Engine) CycleTelemetry(ctx context.Context, c *routecycle.Cycle) ([]telemetry.NodeEvent, error) {
	window, err := c.ActiveWindow()
	if err != nil {
		return nil, err
	}
	events, err := e.events.NodeEvents(ctx, c.NodeID, telemetry.Query{Range: window})
	if err != nil {
		return nil, fmt.Errorf("loading telemetry for cycle %d: %w", c.ID, err)
	}
	return events, nil
}

// CycleAlerts returns the node's alerts of one kind inside the active window.
func (e *Engine) CycleAlerts(ctx context.Context, c *routecycle.Cycle, kind telemetry.AlertKind) ([]telemetry.AlertEvent, error) {
	window, err := c.ActiveWindow()
	if err != nil {
		return nil, err
	}
	events, err := e.events.AlertEvents(ctx, c.NodeID, kind, telemetry.Query{Range: window})
	if err != nil {
		return nil, fmt.Errorf("loading %s alerts for cycle %d: %w", kind, c.ID, err)
	}
	return events, nil
}

// TemperatureAlerts returns in-window readings at or above the cycle's
// temperature threshold.
func (e *Engine) TemperatureAlerts(ctx context.Context, c *routecycle.Cycle) ([]telemetry.NodeEvent, error) {
	events, err := e.CycleTelemetry(ctx, c)
	if err != nil {
		return nil, err
	}
	return TemperatureBreaches(events, c.TemperatureAlertThreshold), nil
}

// HumidityAlerts returns in-window readings at or above the cycle's
// humidity threshold.
func (e *Engine) HumidityAlerts(ctx context.Context, c *routecycle.Cycle) ([]telemetry.NodeEvent, error) {
	events, err := e.CycleTelemetry(ctx, c)
	if err != nil {
		return nil, err
	}
	return HumidityBreaches(events, c.HumidityAlertThreshold), nil
}

// TemperatureBreaches keeps events whose temperature is at least threshold.
// A nil threshold never breaches.
func TemperatureBreaches(events []telemetry.NodeEvent, threshold *float64) []telemetry.NodeEvent {
	return breaches(events, threshold, func(ev telemetry.NodeEvent) *float64 { return ev.Temperature })
}

// HumidityBreaches keeps events whose humidity is at least threshold.
// A nil threshold never breaches.
func HumidityBreaches(events []telemetry.NodeEvent, threshold *float64) []telemetry.NodeEvent {
	return breaches(events, threshold, func(ev telemetry.NodeEvent) *float64 { return ev.Humidity })
}

func breaches(events []telemetry.NodeEvent, threshold *float64, reading func(telemetry.NodeEvent) *float64) []telemetry.NodeEvent {
	out := []telemetry.NodeEvent{}
	if threshold == nil {
		return out
	}
	for _, ev := range events {
		if v := reading(ev); v != nil && *v >= *threshold {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, newestFirst)
	return out
}

func newestFirst(a, b telemetry.NodeEvent) int {
	if c := b.EventTime.Compare(a.EventTime); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
