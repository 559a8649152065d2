package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/optional"
)

// deviceView is a device with its connection status derived at read time.
type deviceView struct {
	*device.Device
	Status   device.ConnectionStatus `json:"status"`
	LastSeen *time.Time              `json:"last_seen"`
}

type registerDeviceRequest struct {
	Address string  `json:"address" validate:"required,hwaddr"`
	Label   *string `json:"label" validate:"omitempty,max=128"`
}

type updateDeviceRequest struct {
	Label  optional.Value[string] `json:"label"`
	CoreID optional.Value[int64]  `json:"core_id"`
}

// view attaches the connection status to d.
func (s *Server) view(ctx context.Context, d *device.Device) (deviceView, error) {
	var (
		lastSeen *time.Time
		err      error
	)
	if d.Kind == device.KindCore {
		lastSeen, err = s.events.LatestCoreEventTime(ctx, d.ID)
	} else {
		lastSeen, err = s.events.LatestNodeEventTime(ctx, d.ID)
	}
	if err != nil {
		return deviceView{}, fmt.Errorf("reading last event of device %d: %w", d.ID, err)
	}
	return deviceView{
		Device:   d,
		Status:   device.StatusAt(lastSeen, s.now(), s.offlineAfter),
		LastSeen: lastSeen,
	}, nil
}

func (s *Server) views(ctx context.Context, devices []device.Device) ([]deviceView, error) {
	out := make([]deviceView, 0, len(devices))
	for i := range devices {
		v, err := s.view(ctx, &devices[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// findDevice returns the device with id, treating a device of the other
// kind as not found.
func (s *Server) findDevice(ctx context.Context, kind device.Kind, id int64) (*device.Device, error) {
	d, err := s.registry.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Kind != kind {
		return nil, fmt.Errorf("%s %d: %w", kind, id, device.ErrDeviceNotFound)
	}
	return d, nil
}

// liveDevice is findDevice for mutations: a deleted device is rejected
// before any write is attempted.
func (s *Server) liveDevice(ctx context.Context, kind device.Kind, id int64) (*device.Device, error) {
	d, err := s.findDevice(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if d.Deleted {
		return nil, fmt.Errorf("%s %d: %w", kind, id, device.ErrDeviceDeleted)
	}
	return d, nil
}

// handleListDevices returns the devices of a kind.
//
// Query parameters:
//   - include_deleted: "true" also lists soft-deleted devices
//   - core_id: nodes only, filter by assigned core
func (s *Server) handleListDevices(kind device.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := device.ListFilter{
			Kind:           kind,
			IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		}
		if v := r.URL.Query().Get("core_id"); v != "" && kind == device.KindNode {
			coreID, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeBadRequest(w, "core_id must be an integer")
				return
			}
			filter.CoreID = &coreID
		}

		devices, err := s.registry.List(r.Context(), filter)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		out, err := s.views(r.Context(), devices)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
	}
}

// handleRegisterDevice registers a new device of a kind.
func (s *Server) handleRegisterDevice(kind device.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerDeviceRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		d, err := s.registry.Register(r.Context(), kind, req.Address, req.Label)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		v, err := s.view(r.Context(), d)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// handleGetDevice returns a single device. Deleted devices stay readable.
func (s *Server) handleGetDevice(kind device.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		d, err := s.findDevice(r.Context(), kind, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		v, err := s.view(r.Context(), d)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleUpdateDevice renames a device or, for nodes, reassigns its core.
// A key sent as null clears the field; an absent key leaves it alone.
func (s *Server) handleUpdateDevice(kind device.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req updateDeviceRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		if _, err := s.liveDevice(r.Context(), kind, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		d, err := s.registry.Update(r.Context(), id, device.Update{Label: req.Label, CoreID: req.CoreID})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		v, err := s.view(r.Context(), d)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleDeleteDevice soft-deletes a device.
func (s *Server) handleDeleteDevice(kind device.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if _, err := s.liveDevice(r.Context(), kind, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		d, err := s.registry.SoftDelete(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// handleAvailableNodes lists live nodes that can take a new route cycle.
func (s *Server) handleAvailableNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.AvailableNodes(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.views(r.Context(), nodes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}
