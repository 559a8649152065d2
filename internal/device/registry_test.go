package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/coldtag-core/internal/infrastructure/cache"
)

// countingRepository records how many reads reach the underlying repository.
type countingRepository struct {
	Repository
	byID      atomic.Int32
	byAddress atomic.Int32
}

func (c *countingRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	c.byID.Add(1)
	return c.Repository.GetByID(ctx, id)
}

func (c *countingRepository) GetByAddress(ctx context.Context, kind Kind, address string) (*Device, error) {
	c.byAddress.Add(1)
	return c.Repository.GetByAddress(ctx, kind, address)
}

func newTestRegistry(t *testing.T) (*Registry, *countingRepository) {
	t.Helper()
	lru, err := cache.NewLRU(64)
	if err != nil {
		t.Fatalf("NewLRU() error = %v", err)
	}
	repo := &countingRepository{Repository: NewSQLiteRepository(setupTestDB(t))}
	return NewRegistry(repo, lru), repo
}

func TestRegistry_Register(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	t.Run("normalises the address", func(t *testing.T) {
		d, err := registry.Register(ctx, KindNode, "aa-aa-aa-aa-aa-aa", strPtr("crate"))
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if d.Address != "AA:AA:AA:AA:AA:AA" {
			t.Errorf("Address = %q, want AA:AA:AA:AA:AA:AA", d.Address)
		}
	})

	t.Run("duplicate in another spelling conflicts", func(t *testing.T) {
		_, err := registry.Register(ctx, KindNode, "AA:AA:AA:AA:AA:AA", nil)
		if !errors.Is(err, ErrDeviceExists) {
			t.Errorf("Register(duplicate) error = %v, want ErrDeviceExists", err)
		}
	})

	t.Run("invalid address is rejected before any write", func(t *testing.T) {
		before, err := registry.Count(ctx, "")
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		_, err = registry.Register(ctx, KindCore, "not-a-mac", nil)
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Register(invalid) error = %v, want ErrInvalidAddress", err)
		}
		after, err := registry.Count(ctx, "")
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if after != before {
			t.Errorf("Count() = %d after rejected register, want %d", after, before)
		}
	})

	t.Run("invalid kind", func(t *testing.T) {
		_, err := registry.Register(ctx, Kind("gateway"), "BB:BB:BB:BB:BB:BB", nil)
		if !errors.Is(err, ErrInvalidKind) {
			t.Errorf("Register(gateway) error = %v, want ErrInvalidKind", err)
		}
	})
}

func TestRegistry_FindByAddressCaches(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	created, err := registry.Register(ctx, KindCore, "11:22:33:44:55:66", nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	first, err := registry.FindByAddress(ctx, KindCore, "11-22-33-44-55-66")
	if err != nil {
		t.Fatalf("FindByAddress() error = %v", err)
	}
	second, err := registry.FindByAddress(ctx, KindCore, "11:22:33:44:55:66")
	if err != nil {
		t.Fatalf("FindByAddress() second error = %v", err)
	}

	if *first != *second {
		t.Errorf("repeated FindByAddress differ: %+v vs %+v", first, second)
	}
	if got := repo.byAddress.Load(); got != 1 {
		t.Errorf("repository address reads = %d, want 1", got)
	}

	// The address lookup also warmed the id key
	if _, err := registry.FindByID(ctx, created.ID); err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got := repo.byID.Load(); got != 0 {
		t.Errorf("repository id reads = %d, want 0", got)
	}
}

func TestRegistry_FindReturnsCopies(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := registry.Register(ctx, KindNode, "AA:AA:AA:AA:AA:AA", strPtr("original"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	d, err := registry.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	*d.Label = "mutated"

	again, err := registry.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if *again.Label != "original" {
		t.Errorf("cached label = %q, want original", *again.Label)
	}
}

func TestRegistry_WritesInvalidateCache(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	core, err := registry.Register(ctx, KindCore, "C0:00:00:00:00:01", nil)
	if err != nil {
		t.Fatalf("Register(core) error = %v", err)
	}
	node, err := registry.Register(ctx, KindNode, "A0:00:00:00:00:01", nil)
	if err != nil {
		t.Fatalf("Register(node) error = %v", err)
	}

	// Warm the cache
	if _, err := registry.FindByID(ctx, node.ID); err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}

	if _, err := registry.Rename(ctx, node.ID, strPtr("pallet 9")); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	got, err := registry.FindByID(ctx, node.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.Label == nil || *got.Label != "pallet 9" {
		t.Errorf("Label after rename = %v, want pallet 9", got.Label)
	}

	if _, err := registry.ReassignNode(ctx, node.ID, &core.ID); err != nil {
		t.Fatalf("ReassignNode() error = %v", err)
	}
	got, err = registry.FindByAddress(ctx, KindNode, node.Address)
	if err != nil {
		t.Fatalf("FindByAddress() error = %v", err)
	}
	if got.CoreID == nil || *got.CoreID != core.ID {
		t.Errorf("CoreID after reassign = %v, want %d", got.CoreID, core.ID)
	}

	if _, err := registry.SoftDelete(ctx, node.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	got, err = registry.FindByID(ctx, node.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !got.Deleted {
		t.Error("Deleted = false after SoftDelete")
	}

	if repo.byID.Load() < 3 {
		t.Errorf("repository id reads = %d, want a reload after each write", repo.byID.Load())
	}
}

func TestRegistry_NoOpMutations(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	node, err := registry.Register(ctx, KindNode, "A0:00:00:00:00:01", nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := registry.Rename(ctx, node.ID, nil); !errors.Is(err, ErrNoChange) {
		t.Errorf("Rename(nil on unlabelled) error = %v, want ErrNoChange", err)
	}
	if _, err := registry.ReassignNode(ctx, node.ID, nil); !errors.Is(err, ErrNoChange) {
		t.Errorf("ReassignNode(nil on unassigned) error = %v, want ErrNoChange", err)
	}
	if _, err := registry.Update(ctx, node.ID, Update{}); !errors.Is(err, ErrNoChange) {
		t.Errorf("Update(empty) error = %v, want ErrNoChange", err)
	}

	if _, err := registry.SoftDelete(ctx, node.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if _, err := registry.SoftDelete(ctx, node.ID); !errors.Is(err, ErrDeviceDeleted) {
		t.Errorf("SoftDelete(deleted) error = %v, want ErrDeviceDeleted", err)
	}
}

func TestRegistry_FindNotFound(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := registry.FindByID(ctx, 42); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("FindByID(42) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := registry.FindByAddress(ctx, KindNode, "DE:AD:BE:EF:00:01"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("FindByAddress(unknown) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := registry.FindByAddress(ctx, KindNode, "garbage"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("FindByAddress(garbage) error = %v, want ErrInvalidAddress", err)
	}
}

func TestRegistry_WithoutCache(t *testing.T) {
	repo := &countingRepository{Repository: NewSQLiteRepository(setupTestDB(t))}
	registry := NewRegistry(repo, nil)
	ctx := context.Background()

	d, err := registry.Register(ctx, KindCore, "C0:00:00:00:00:01", nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := registry.FindByID(ctx, d.ID); err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
	}
	if got := repo.byID.Load(); got != 3 {
		t.Errorf("repository id reads = %d, want 3 without a cache", got)
	}
}

func TestStatusAt(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Minute)
	stale := now.Add(-time.Hour)

	tests := []struct {
		name     string
		lastSeen *time.Time
		want     ConnectionStatus
	}{
		{"never seen", nil, StatusDisconnected},
		{"recent", &recent, StatusConnected},
		{"stale", &stale, StatusDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusAt(tt.lastSeen, now, 5*time.Minute); got != tt.want {
				t.Errorf("StatusAt() = %q, want %q", got, tt.want)
			}
		})
	}
}
