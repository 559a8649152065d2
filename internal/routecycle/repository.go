package routecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/coldtag-core/internal/infrastructure/database"
	"github.com/nerrad567/coldtag-core/internal/optional"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// Transition names a lifecycle flag flip.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

// transitionSQL holds the SET list and the guard for each transition.
// A set list ending in a placeholder takes the transition timestamp.
var transitionSQL = map[Transition]struct {
	set     string
	guard   string
	stamped bool
}{
	TransitionStart: {
		set:     "started = 1, dispatch_time = ?",
		guard:   "started = 0 AND completed = 0 AND canceled = 0",
		stamped: true,
	},
	TransitionComplete: {
		set:     "completed = 1, completion_time = ?",
		guard:   "started = 1 AND completed = 0 AND canceled = 0",
		stamped: true,
	},
	TransitionCancel: {
		set:   "canceled = 1",
		guard: "completed = 0 AND canceled = 0",
	},
}

// Repository defines route cycle persistence.
type Repository interface {
	// Create inserts c unless the node's latest cycle is still active, in
	// which case it returns ErrNodeOccupied.
	Create(ctx context.Context, c *Cycle) error

	GetByID(ctx context.Context, id int64) (*Cycle, error)

	// GetLatestByNode returns the node's cycle with the highest id.
	GetLatestByNode(ctx context.Context, nodeID int64) (*Cycle, error)

	// List returns matching cycles, newest first.
	List(ctx context.Context, filter ListFilter) ([]Cycle, error)

	// Update writes the set fields of a non-terminal cycle.
	Update(ctx context.Context, id int64, update Update, now time.Time) (*Cycle, error)

	// Transition flips a lifecycle flag if the guard holds at write time.
	Transition(ctx context.Context, id int64, t Transition, now time.Time) (*Cycle, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed route cycle repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const cycleColumns = `id, node_id, identifier, description, owner_name, placed_at,
	departure_latitude, departure_longitude, destination_latitude, destination_longitude,
	temperature_alert_threshold, humidity_alert_threshold,
	started, completed, canceled, dispatch_time, completion_time, created_at, updated_at`

// Create inserts a new placed cycle after checking the node's latest cycle.
func (r *SQLiteRepository) Create(ctx context.Context, c *Cycle) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var completed, canceled int
		err := tx.QueryRowContext(ctx, `
			SELECT completed, canceled FROM route_cycles
			WHERE node_id = ? ORDER BY id DESC LIMIT 1`, c.NodeID,
		).Scan(&completed, &canceled)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("querying latest cycle: %w", err)
		case completed == 0 && canceled == 0:
			return ErrNodeOccupied
		}

		depLat, depLon := coordinateArgs(c.Departure)
		dstLat, dstLon := coordinateArgs(c.Destination)
		stamp := telemetry.FormatTime(c.CreatedAt)
		result, err := tx.ExecContext(ctx, `
			INSERT INTO route_cycles (node_id, identifier, description, owner_name, placed_at,
				departure_latitude, departure_longitude, destination_latitude, destination_longitude,
				temperature_alert_threshold, humidity_alert_threshold, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.NodeID,
			nullableString(c.Identifier),
			nullableString(c.Description),
			nullableString(c.OwnerName),
			nullableString(c.PlacedAt),
			depLat, depLon, dstLat, dstLon,
			nullableFloat(c.TemperatureAlertThreshold),
			nullableFloat(c.HumidityAlertThreshold),
			stamp, stamp,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrNodeOccupied
			}
			return fmt.Errorf("inserting route cycle: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading route cycle id: %w", err)
		}
		c.ID = id
		return nil
	})
}

// GetByID retrieves a cycle by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Cycle, error) {
	c, err := scanCycle(r.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM route_cycles WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCycleNotFound
		}
		return nil, fmt.Errorf("querying route cycle: %w", err)
	}
	return c, nil
}

// GetLatestByNode retrieves the node's most recent cycle.
func (r *SQLiteRepository) GetLatestByNode(ctx context.Context, nodeID int64) (*Cycle, error) {
	c, err := scanCycle(r.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM route_cycles WHERE node_id = ? ORDER BY id DESC LIMIT 1`, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCycleNotFound
		}
		return nil, fmt.Errorf("querying latest route cycle: %w", err)
	}
	return c, nil
}

// List retrieves cycles matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Cycle, error) {
	var where []string
	var args []any
	if filter.NodeID != nil {
		where = append(where, "node_id = ?")
		args = append(args, *filter.NodeID)
	}
	if filter.Active {
		where = append(where, "completed = 0 AND canceled = 0")
	}

	query := `SELECT ` + cycleColumns + ` FROM route_cycles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying route cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route cycle: %w", err)
		}
		cycles = append(cycles, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating route cycles: %w", err)
	}
	return cycles, nil
}

// Update writes the set fields in one conditional UPDATE.
func (r *SQLiteRepository) Update(ctx context.Context, id int64, update Update, now time.Time) (*Cycle, error) {
	var sets []string
	var args []any
	setString := func(column string, v optional.Value[string]) {
		if v.IsSet() {
			sets = append(sets, column+" = ?")
			args = append(args, nullableString(v.Ptr()))
		}
	}
	setString("identifier", update.Identifier)
	setString("description", update.Description)
	setString("owner_name", update.OwnerName)
	setString("placed_at", update.PlacedAt)

	if update.Departure.IsSet() {
		lat, lon := coordinateArgs(update.Departure.Ptr())
		sets = append(sets, "departure_latitude = ?", "departure_longitude = ?")
		args = append(args, lat, lon)
	}
	if update.Destination.IsSet() {
		lat, lon := coordinateArgs(update.Destination.Ptr())
		sets = append(sets, "destination_latitude = ?", "destination_longitude = ?")
		args = append(args, lat, lon)
	}
	if update.TemperatureAlertThreshold.IsSet() {
		sets = append(sets, "temperature_alert_threshold = ?")
		args = append(args, nullableFloat(update.TemperatureAlertThreshold.Ptr()))
	}
	if update.HumidityAlertThreshold.IsSet() {
		sets = append(sets, "humidity_alert_threshold = ?")
		args = append(args, nullableFloat(update.HumidityAlertThreshold.Ptr()))
	}
	if len(sets) == 0 {
		return nil, ErrNoChange
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, telemetry.FormatTime(now), id)

	query := `UPDATE route_cycles SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND completed = 0 AND canceled = 0`
	if err := r.conditionalUpdate(ctx, id, query, args, ErrCycleTerminal); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Transition applies t with its guard in the WHERE clause.
func (r *SQLiteRepository) Transition(ctx context.Context, id int64, t Transition, now time.Time) (*Cycle, error) {
	rule, ok := transitionSQL[t]
	if !ok {
		return nil, fmt.Errorf("unknown transition %q", t)
	}
	stamp := telemetry.FormatTime(now)

	var args []any
	if rule.stamped {
		args = append(args, stamp)
	}
	args = append(args, stamp, id)

	query := `UPDATE route_cycles SET ` + rule.set + `, updated_at = ? WHERE id = ? AND ` + rule.guard
	if err := r.conditionalUpdate(ctx, id, query, args, ErrInvalidState); err != nil {
		return nil, fmt.Errorf("%s cycle %d: %w", t, id, err)
	}
	return r.GetByID(ctx, id)
}

// conditionalUpdate runs a guarded UPDATE. When no row matches it returns
// ErrCycleNotFound if the id does not exist and guardErr otherwise.
func (r *SQLiteRepository) conditionalUpdate(ctx context.Context, id int64, query string, args []any, guardErr error) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating route cycle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM route_cycles WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCycleNotFound
	}
	if err != nil {
		return fmt.Errorf("querying route cycle: %w", err)
	}
	return guardErr
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(scanner rowScanner) (*Cycle, error) {
	var c Cycle
	var identifier, description, ownerName, placedAt sql.NullString
	var depLat, depLon, dstLat, dstLon sql.NullFloat64
	var tempThreshold, humidityThreshold sql.NullFloat64
	var started, completed, canceled int
	var dispatch, completion sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(&c.ID, &c.NodeID, &identifier, &description, &ownerName, &placedAt,
		&depLat, &depLon, &dstLat, &dstLon, &tempThreshold, &humidityThreshold,
		&started, &completed, &canceled, &dispatch, &completion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c.Identifier = stringPtr(identifier)
	c.Description = stringPtr(description)
	c.OwnerName = stringPtr(ownerName)
	c.PlacedAt = stringPtr(placedAt)
	c.Departure = coordinate(depLat, depLon)
	c.Destination = coordinate(dstLat, dstLon)
	c.TemperatureAlertThreshold = floatPtr(tempThreshold)
	c.HumidityAlertThreshold = floatPtr(humidityThreshold)
	c.Started = started != 0
	c.Completed = completed != 0
	c.Canceled = canceled != 0
	c.DispatchTime = timePtr(dispatch)
	c.CompletionTime = timePtr(completion)
	c.CreatedAt = parseTimestamp(createdAt)
	c.UpdatedAt = parseTimestamp(updatedAt)
	return &c, nil
}

func parseTimestamp(s string) time.Time {
	t, err := telemetry.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTimestamp(s.String)
	return &t
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func coordinate(lat, lon sql.NullFloat64) *telemetry.Coordinate {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &telemetry.Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
}

func coordinateArgs(c *telemetry.Coordinate) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Latitude, Valid: true}, sql.NullFloat64{Float64: c.Longitude, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
