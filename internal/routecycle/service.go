package routecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/coldtag-core/internal/device"
)

// Logger defines the logging interface used by the Service.
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

// NodeFinder resolves the node a cycle is created for.
// *device.Registry satisfies it.
type NodeFinder interface {
	FindByID(ctx context.Context, id int64) (*device.Device, error)
}

// Service is the sole writer of lifecycle flags and timestamps.
type Service struct {
	repo   Repository
	nodes  NodeFinder
	now    func() time.Time
	logger Logger
}

// NewService creates a lifecycle service.
func NewService(repo Repository, nodes NodeFinder) *Service {
	return &Service{
		repo:   repo,
		nodes:  nodes,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the time source used for lifecycle timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// Create places a new cycle on a live node.
//
// It fails with device.ErrDeviceNotFound, device.ErrNotANode or
// device.ErrDeviceDeleted when the node cannot take a cycle, and with
// ErrNodeOccupied when the node's latest cycle is not terminal.
func (s *Service) Create(ctx context.Context, draft Draft) (*Cycle, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	node, err := s.nodes.FindByID(ctx, draft.NodeID)
	if err != nil {
		return nil, fmt.Errorf("resolving node %d: %w", draft.NodeID, err)
	}
	if node.Kind != device.KindNode {
		return nil, fmt.Errorf("device %d: %w", node.ID, device.ErrNotANode)
	}
	if node.Deleted {
		return nil, fmt.Errorf("node %d: %w", node.ID, device.ErrDeviceDeleted)
	}

	now := s.timestamp()
	c := &Cycle{
		NodeID:                    node.ID,
		Identifier:                draft.Identifier,
		Description:               draft.Description,
		OwnerName:                 draft.OwnerName,
		PlacedAt:                  draft.PlacedAt,
		Departure:                 draft.Departure,
		Destination:               draft.Destination,
		TemperatureAlertThreshold: draft.TemperatureAlertThreshold,
		HumidityAlertThreshold:    draft.HumidityAlertThreshold,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("route cycle placed", "cycle_id", c.ID, "node_id", c.NodeID)
	return c, nil
}

// Find returns a cycle by id.
func (s *Service) Find(ctx context.Context, id int64) (*Cycle, error) {
	return s.repo.GetByID(ctx, id)
}

// FindLatestByNode returns the node's most recent cycle, or ErrCycleNotFound.
func (s *Service) FindLatestByNode(ctx context.Context, nodeID int64) (*Cycle, error) {
	return s.repo.GetLatestByNode(ctx, nodeID)
}

// List returns cycles matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Cycle, error) {
	return s.repo.List(ctx, filter)
}

// Update edits descriptive fields. Terminal cycles fail with ErrCycleTerminal.
func (s *Service) Update(ctx context.Context, id int64, update Update) (*Cycle, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	c, err := s.repo.Update(ctx, id, update, s.timestamp())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("route cycle updated", "cycle_id", id)
	return c, nil
}

// Start moves a placed cycle to started and stamps dispatch_time.
func (s *Service) Start(ctx context.Context, id int64) (*Cycle, error) {
	return s.transition(ctx, id, TransitionStart)
}

// Complete moves a started cycle to completed and stamps completion_time.
func (s *Service) Complete(ctx context.Context, id int64) (*Cycle, error) {
	return s.transition(ctx, id, TransitionComplete)
}

// Cancel ends a placed or started cycle.
func (s *Service) Cancel(ctx context.Context, id int64) (*Cycle, error) {
	return s.transition(ctx, id, TransitionCancel)
}

func (s *Service) transition(ctx context.Context, id int64, t Transition) (*Cycle, error) {
	c, err := s.repo.Transition(ctx, id, t, s.timestamp())
	if err != nil {
		return nil, err
	}
	s.logger.Info("route cycle transitioned", "cycle_id", id, "transition", string(t), "state", string(c.State()))
	return c, nil
}
