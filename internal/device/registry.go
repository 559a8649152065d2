package device

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nerrad567/coldtag-core/internal/infrastructure/cache"
	"github.com/nerrad567/coldtag-core/internal/optional"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry owns core and node identity. It wraps a Repository with
// cache-aside reads by id and by address.
//
// Every write deletes the affected cache keys after the repository call
// returns successfully, before the Registry method returns.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	cache  cache.Cache
	logger Logger
}

// NewRegistry creates a new device registry.
// A nil cache disables caching.
func NewRegistry(repo Repository, c cache.Cache) *Registry {
	if c == nil {
		c = cache.Noop{}
	}
	return &Registry{
		repo:   repo,
		cache:  c,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

func idKey(id int64) string {
	return "device:id:" + strconv.FormatInt(id, 10)
}

func addressKey(kind Kind, address string) string {
	return "device:address:" + string(kind) + ":" + address
}

// Register validates the hardware address and stores a new device.
//
// The address is rejected with ErrInvalidAddress before any write.
// A duplicate registration fails with ErrDeviceExists.
func (r *Registry) Register(ctx context.Context, kind Kind, address string, label *string) (*Device, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	d := &Device{Kind: kind, Address: normalized, Label: label}
	if err := r.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	r.logger.Info("device registered", "id", d.ID, "kind", kind, "address", normalized)
	return d.Clone(), nil
}

// FindByID returns the device with the given id, or ErrDeviceNotFound.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) FindByID(ctx context.Context, id int64) (*Device, error) {
	if v, ok := r.cache.Get(idKey(id)); ok {
		if d, ok := v.(*Device); ok {
			return d.Clone(), nil
		}
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d.Clone(), nil
}

// FindByAddress returns the device of the given kind at address, or
// ErrDeviceNotFound. Addresses are matched case-insensitively and with
// either separator. A malformed address returns ErrInvalidAddress.
func (r *Registry) FindByAddress(ctx context.Context, kind Kind, address string) (*Device, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	if v, ok := r.cache.Get(addressKey(kind, normalized)); ok {
		if d, ok := v.(*Device); ok {
			return d.Clone(), nil
		}
	}

	d, err := r.repo.GetByAddress(ctx, kind, normalized)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d.Clone(), nil
}

// store caches a private copy of d under both of its keys.
func (r *Registry) store(d *Device) {
	c := d.Clone()
	r.cache.Set(idKey(c.ID), c)
	r.cache.Set(addressKey(c.Kind, c.Address), c)
}

// List returns devices matching the filter. Lists bypass the cache.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]Device, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	return r.repo.List(ctx, filter)
}

// Count returns the number of live devices of a kind. An empty kind counts all.
func (r *Registry) Count(ctx context.Context, kind Kind) (int, error) {
	if kind != "" && !kind.Valid() {
		return 0, ErrInvalidKind
	}
	return r.repo.Count(ctx, kind)
}

// Update applies a partial update and invalidates the device's cache entries.
//
// Returns ErrNoChange when the update names no field or changes nothing,
// and ErrDeviceDeleted when the device is soft-deleted.
func (r *Registry) Update(ctx context.Context, id int64, update Update) (*Device, error) {
	d, err := r.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}

	r.cache.Delete(idKey(d.ID), addressKey(d.Kind, d.Address))

	r.logger.Info("device updated", "id", d.ID, "kind", d.Kind, "deleted", d.Deleted)
	return d.Clone(), nil
}

// Rename sets or clears the device label.
func (r *Registry) Rename(ctx context.Context, id int64, label *string) (*Device, error) {
	return r.Update(ctx, id, Update{Label: optional.FromPtr(label)})
}

// SoftDelete marks the device deleted. It stays readable.
func (r *Registry) SoftDelete(ctx context.Context, id int64) (*Device, error) {
	deleted := true
	return r.Update(ctx, id, Update{Deleted: &deleted})
}

// ReassignNode attaches a node to a core, or detaches it when coreID is nil.
func (r *Registry) ReassignNode(ctx context.Context, nodeID int64, coreID *int64) (*Device, error) {
	d, err := r.Update(ctx, nodeID, Update{CoreID: optional.FromPtr(coreID)})
	if err != nil {
		return nil, fmt.Errorf("reassigning node %d: %w", nodeID, err)
	}
	return d, nil
}

// AvailableNodes returns live nodes with no non-terminal route cycle,
// judged by each node's latest cycle.
func (r *Registry) AvailableNodes(ctx context.Context) ([]Device, error) {
	return r.repo.ListAvailableNodes(ctx)
}
