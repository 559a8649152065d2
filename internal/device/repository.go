package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/coldtag-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a new device and fills in its ID and timestamps.
	// Returns ErrDeviceExists if the (kind, address) pair is taken.
	Create(ctx context.Context, device *Device) error

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// GetByAddress looks up a normalised address within one kind.
	// Returns ErrDeviceNotFound if no such device is registered.
	GetByAddress(ctx context.Context, kind Kind, address string) (*Device, error)

	List(ctx context.Context, filter ListFilter) ([]Device, error)

	Count(ctx context.Context, kind Kind) (int, error)

	// Update applies a partial update against a fresh read inside one
	// transaction and returns the stored result.
	Update(ctx context.Context, id int64, update Update) (*Device, error)

	// ListAvailableNodes returns live nodes whose latest route cycle (by
	// highest id) is absent or terminal.
	ListAvailableNodes(ctx context.Context) ([]Device, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed device repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const deviceColumns = `id, kind, address, label, core_id, deleted, created_at, updated_at`

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := r.now().UTC().Truncate(time.Second)
	device.CreatedAt = now
	device.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (kind, address, label, core_id, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(device.Kind),
		device.Address,
		nullableString(device.Label),
		nullableInt64(device.CoreID),
		boolToInt(device.Deleted),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDeviceExists
		}
		if database.IsForeignKeyViolation(err) {
			return ErrCoreNotFound
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}
	device.ID = id
	return nil
}

// GetByID retrieves a device by its surrogate id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByAddress retrieves a device by kind and normalised address.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, kind Kind, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE kind = ? AND address = ?`,
		string(kind), address)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by address: %w", err)
	}
	return device, nil
}

// List retrieves devices matching the filter, ordered by id.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Device, error) {
	var where []string
	var args []any
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.CoreID != nil {
		where = append(where, "core_id = ?")
		args = append(args, *filter.CoreID)
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted = 0")
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	return r.queryDevices(ctx, query, args...)
}

// Count returns the number of live devices of a kind. An empty kind counts all.
func (r *SQLiteRepository) Count(ctx context.Context, kind Kind) (int, error) {
	query := `SELECT COUNT(*) FROM devices WHERE deleted = 0`
	var args []any
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return n, nil
}

// Update applies a partial update in a single transaction.
func (r *SQLiteRepository) Update(ctx context.Context, id int64, update Update) (*Device, error) {
	var updated *Device
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := scanDevice(tx.QueryRowContext(ctx,
			`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDeviceNotFound
			}
			return fmt.Errorf("querying device by id: %w", err)
		}

		if err := update.apply(current); err != nil {
			return err
		}

		if update.CoreID.IsSet() && current.CoreID != nil {
			if err := checkCore(ctx, tx, *current.CoreID); err != nil {
				return err
			}
		}

		current.UpdatedAt = r.now().UTC().Truncate(time.Second)
		if _, err := tx.ExecContext(ctx, `
			UPDATE devices SET label = ?, core_id = ?, deleted = ?, updated_at = ?
			WHERE id = ?`,
			nullableString(current.Label),
			nullableInt64(current.CoreID),
			boolToInt(current.Deleted),
			current.UpdatedAt.Format(time.RFC3339),
			id,
		); err != nil {
			return fmt.Errorf("updating device: %w", err)
		}

		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// checkCore verifies coreID names a live core.
func checkCore(ctx context.Context, tx *sql.Tx, coreID int64) error {
	var kind string
	var deleted int
	err := tx.QueryRowContext(ctx,
		`SELECT kind, deleted FROM devices WHERE id = ?`, coreID,
	).Scan(&kind, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCoreNotFound
		}
		return fmt.Errorf("querying core: %w", err)
	}
	if Kind(kind) != KindCore || deleted != 0 {
		return ErrCoreNotFound
	}
	return nil
}

// ListAvailableNodes anti-joins nodes against their latest route cycle.
func (r *SQLiteRepository) ListAvailableNodes(ctx context.Context) ([]Device, error) {
	query := `
		SELECT d.id, d.kind, d.address, d.label, d.core_id, d.deleted, d.created_at, d.updated_at
		FROM devices d
		WHERE d.kind = 'node'
		  AND d.deleted = 0
		  AND NOT EXISTS (
			SELECT 1 FROM route_cycles rc
			WHERE rc.id = (SELECT MAX(rc2.id) FROM route_cycles rc2 WHERE rc2.node_id = d.id)
			  AND rc.completed = 0
			  AND rc.canceled = 0
		  )
		ORDER BY d.id`
	return r.queryDevices(ctx, query)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var kind string
	var label sql.NullString
	var coreID sql.NullInt64
	var deleted int
	var createdAt, updatedAt string

	if err := scanner.Scan(&d.ID, &kind, &d.Address, &label, &coreID, &deleted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Deleted = deleted != 0
	if label.Valid {
		d.Label = &label.String
	}
	if coreID.Valid {
		d.CoreID = &coreID.Int64
	}
	d.CreatedAt = parseTimestamp(createdAt)
	d.UpdatedAt = parseTimestamp(updatedAt)
	return &d, nil
}

// parseTimestamp parses a stored timestamp. Falls back to the zero time for
// rows written outside this package with an unexpected layout.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
