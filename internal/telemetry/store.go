package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/coldtag-core/internal/infrastructure/database"
)

// Store is the append-only SQLite event store.
type Store struct {
	db *database.DB
}

// NewStore creates an event store over db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Append persists one event. ev must be a *CoreEvent, *NodeEvent or
// *AlertEvent; its ID is filled in on insert.
//
// key is the idempotency key. An event whose key is already stored is not
// written again and Append returns false. An empty key is replaced with a
// random one, so the event is always stored.
func (s *Store) Append(ctx context.Context, ev Event, key string) (bool, error) {
	if ev.OccurredAt().IsZero() {
		return false, ErrMissingEventTime
	}
	if key == "" {
		key = uuid.NewString()
	}

	var (
		query string
		args  []any
	)

	switch e := ev.(type) {
	case *CoreEvent:
		if err := validatePosition(e.Coordinate); err != nil {
			return false, err
		}
		lat, lon := coordinateArgs(e.Coordinate)
		query = `
			INSERT INTO core_events (core_id, latitude, longitude, event_time, received_at, message_key)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(message_key) DO NOTHING`
		args = []any{e.CoreID, lat, lon, FormatTime(e.EventTime), formatReceived(e.ReceivedAt), key}

	case *NodeEvent:
		if err := validatePosition(e.Coordinate); err != nil {
			return false, err
		}
		lat, lon := coordinateArgs(e.Coordinate)
		query = `
			INSERT INTO node_events (node_id, core_id, temperature, humidity, latitude, longitude,
				core_received_at, event_time, received_at, message_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(message_key) DO NOTHING`
		args = []any{
			e.NodeID, e.CoreID, nullableFloat(e.Temperature), nullableFloat(e.Humidity), lat, lon,
			FormatTime(e.CoreReceivedAt), FormatTime(e.EventTime), formatReceived(e.ReceivedAt), key,
		}

	case *AlertEvent:
		if !e.AlertKind.Valid() {
			return false, fmt.Errorf("%w: %q", ErrInvalidAlertKind, e.AlertKind)
		}
		if err := validatePosition(e.Coordinate); err != nil {
			return false, err
		}
		lat, lon := coordinateArgs(e.Coordinate)
		query = `
			INSERT INTO alert_events (kind, node_id, core_id, latitude, longitude,
				core_received_at, event_time, received_at, message_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(message_key) DO NOTHING`
		args = []any{
			string(e.AlertKind), e.NodeID, e.CoreID, lat, lon,
			FormatTime(e.CoreReceivedAt), FormatTime(e.EventTime), formatReceived(e.ReceivedAt), key,
		}

	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("appending %s event: %w", ev.Kind(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading event id: %w", err)
	}
	switch e := ev.(type) {
	case *CoreEvent:
		e.ID = id
	case *NodeEvent:
		e.ID = id
	case *AlertEvent:
		e.ID = id
	}
	return true, nil
}

const (
	coreEventColumns  = `id, core_id, latitude, longitude, event_time, received_at`
	nodeEventColumns  = `id, node_id, core_id, temperature, humidity, latitude, longitude, core_received_at, event_time, received_at`
	alertEventColumns = `id, kind, node_id, core_id, latitude, longitude, core_received_at, event_time, received_at`
)

// CoreEvents lists a core's events, newest first.
func (s *Store) CoreEvents(ctx context.Context, coreID int64, q Query) ([]CoreEvent, error) {
	where, args := rangeClause(q.Range, "core_id = ?", coreID)
	return s.queryCoreEvents(ctx, where+orderAndLimit(q.Limit), args)
}

// CoreEventsInRange lists events from every core, newest first.
func (s *Store) CoreEventsInRange(ctx context.Context, q Query) ([]CoreEvent, error) {
	where, args := rangeClause(q.Range, "")
	return s.queryCoreEvents(ctx, where+orderAndLimit(q.Limit), args)
}

// NodeEvents lists a node's readings, newest first.
func (s *Store) NodeEvents(ctx context.Context, nodeID int64, q Query) ([]NodeEvent, error) {
	where, args := rangeClause(q.Range, "node_id = ?", nodeID)
	return s.queryNodeEvents(ctx, where, args, q.Limit)
}

// NodeEventsInRange lists readings from every node, newest first.
func (s *Store) NodeEventsInRange(ctx context.Context, q Query) ([]NodeEvent, error) {
	where, args := rangeClause(q.Range, "")
	return s.queryNodeEvents(ctx, where, args, q.Limit)
}

// AlertEvents lists a node's alerts of one kind, newest first.
func (s *Store) AlertEvents(ctx context.Context, nodeID int64, kind AlertKind, q Query) ([]AlertEvent, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlertKind, kind)
	}
	where, args := rangeClause(q.Range, "node_id = ? AND kind = ?", nodeID, string(kind))

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertEventColumns+` FROM alert_events`+where+orderAndLimit(q.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("querying alert events: %w", err)
	}
	defer rows.Close()

	var events []AlertEvent
	for rows.Next() {
		var e AlertEvent
		var kindStr, coreReceived, eventTime, received string
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &kindStr, &e.NodeID, &e.CoreID, &lat, &lon,
			&coreReceived, &eventTime, &received); err != nil {
			return nil, fmt.Errorf("scanning alert event: %w", err)
		}
		e.AlertKind = AlertKind(kindStr)
		e.Coordinate = scanCoordinate(lat, lon)
		e.CoreReceivedAt = parseStored(coreReceived)
		e.EventTime = parseStored(eventTime)
		e.ReceivedAt = parseStored(received)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert events: %w", err)
	}
	return events, nil
}

// NearestCoreEvent finds the core's event whose event time is closest to t,
// over the core's whole history. ok is false when the core has no events.
//
// It seeks the latest event at or before t and the earliest after t on the
// (core_id, event_time) index and keeps the closer one. Equal distances go
// to the lower id.
func (s *Store) NearestCoreEvent(ctx context.Context, coreID int64, t time.Time) (ev CoreEvent, ok bool, err error) {
	at := FormatTime(t)

	before, err := s.queryCoreEvents(ctx,
		" WHERE core_id = ? AND event_time <= ? ORDER BY event_time DESC, id ASC LIMIT 1",
		[]any{coreID, at})
	if err != nil {
		return CoreEvent{}, false, err
	}
	after, err := s.queryCoreEvents(ctx,
		" WHERE core_id = ? AND event_time > ? ORDER BY event_time ASC, id ASC LIMIT 1",
		[]any{coreID, at})
	if err != nil {
		return CoreEvent{}, false, err
	}

	nearest := pickNearest(t, first(before), first(after))
	if nearest == nil {
		return CoreEvent{}, false, nil
	}
	return *nearest, true, nil
}

// pickNearest returns whichever candidate is closer to t. Either may be nil.
func pickNearest(t time.Time, before, after *CoreEvent) *CoreEvent {
	switch {
	case before == nil:
		return after
	case after == nil:
		return before
	}
	dBefore := absDuration(t.Sub(before.EventTime))
	dAfter := absDuration(after.EventTime.Sub(t))
	switch {
	case dBefore < dAfter:
		return before
	case dAfter < dBefore:
		return after
	case after.ID < before.ID:
		return after
	default:
		return before
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func first(events []CoreEvent) *CoreEvent {
	if len(events) == 0 {
		return nil
	}
	return &events[0]
}

// LatestCoreEventTime returns the newest event time reported by a core.
func (s *Store) LatestCoreEventTime(ctx context.Context, coreID int64) (*time.Time, error) {
	return s.latestTime(ctx, `SELECT MAX(event_time) FROM core_events WHERE core_id = ?`, coreID)
}

// LatestNodeEventTime returns the newest event time across a node's readings and alerts.
func (s *Store) LatestNodeEventTime(ctx context.Context, nodeID int64) (*time.Time, error) {
	return s.latestTime(ctx, `
		SELECT MAX(event_time) FROM (
			SELECT event_time FROM node_events WHERE node_id = ?1
			UNION ALL
			SELECT event_time FROM alert_events WHERE node_id = ?1
		)`, nodeID)
}

func (s *Store) latestTime(ctx context.Context, query string, args ...any) (*time.Time, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		return nil, fmt.Errorf("querying latest event time: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := parseStored(latest.String)
	return &t, nil
}

// queryCoreEvents runs a core_events SELECT; tail holds WHERE, ORDER BY and LIMIT.
func (s *Store) queryCoreEvents(ctx context.Context, tail string, args []any) ([]CoreEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+coreEventColumns+` FROM core_events`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("querying core events: %w", err)
	}
	defer rows.Close()

	var events []CoreEvent
	for rows.Next() {
		var e CoreEvent
		var eventTime, received string
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.CoreID, &lat, &lon, &eventTime, &received); err != nil {
			return nil, fmt.Errorf("scanning core event: %w", err)
		}
		e.Coordinate = scanCoordinate(lat, lon)
		e.EventTime = parseStored(eventTime)
		e.ReceivedAt = parseStored(received)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating core events: %w", err)
	}
	return events, nil
}

func (s *Store) queryNodeEvents(ctx context.Context, where string, args []any, limit int) ([]NodeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeEventColumns+` FROM node_events`+where+orderAndLimit(limit), args...)
	if err != nil {
		return nil, fmt.Errorf("querying node events: %w", err)
	}
	defer rows.Close()

	var events []NodeEvent
	for rows.Next() {
		var e NodeEvent
		var coreReceived, eventTime, received string
		var temperature, humidity, lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.NodeID, &e.CoreID, &temperature, &humidity, &lat, &lon,
			&coreReceived, &eventTime, &received); err != nil {
			return nil, fmt.Errorf("scanning node event: %w", err)
		}
		if temperature.Valid {
			e.Temperature = &temperature.Float64
		}
		if humidity.Valid {
			e.Humidity = &humidity.Float64
		}
		e.Coordinate = scanCoordinate(lat, lon)
		e.CoreReceivedAt = parseStored(coreReceived)
		e.EventTime = parseStored(eventTime)
		e.ReceivedAt = parseStored(received)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node events: %w", err)
	}
	return events, nil
}

// rangeClause builds a WHERE clause from a fixed predicate and a time range.
func rangeClause(r TimeRange, predicate string, args ...any) (string, []any) {
	var conds []string
	if predicate != "" {
		conds = append(conds, predicate)
	}
	if r.From != nil {
		conds = append(conds, "event_time >= ?")
		args = append(args, FormatTime(*r.From))
	}
	if r.To != nil {
		conds = append(conds, "event_time <= ?")
		args = append(args, FormatTime(*r.To))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderAndLimit(limit int) string {
	s := " ORDER BY event_time DESC, id DESC"
	if limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s
}

func validatePosition(c *Coordinate) error {
	if c == nil {
		return nil
	}
	return c.Validate()
}

func coordinateArgs(c *Coordinate) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Latitude, Valid: true}, sql.NullFloat64{Float64: c.Longitude, Valid: true}
}

func scanCoordinate(lat, lon sql.NullFloat64) *Coordinate {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// formatReceived stores server receipt times with full precision.
func formatReceived(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStored(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
