package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// nodeEventView is a node reading with the position of its core at the
// time of the reading.
type nodeEventView struct {
	telemetry.NodeEvent
	CoreCoordinate *telemetry.Coordinate `json:"core_coordinate"`
}

// alertEventView is an alert with the position of its core at the time of
// the alert.
type alertEventView struct {
	telemetry.AlertEvent
	CoreCoordinate *telemetry.Coordinate `json:"core_coordinate"`
}

func (s *Server) nodeEventViews(ctx context.Context, events []telemetry.NodeEvent) ([]nodeEventView, error) {
	out := make([]nodeEventView, 0, len(events))
	for _, ev := range events {
		c, err := s.correlation.CoreCoordinate(ctx, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, nodeEventView{NodeEvent: ev, CoreCoordinate: c})
	}
	return out, nil
}

func (s *Server) alertEventViews(ctx context.Context, events []telemetry.AlertEvent) ([]alertEventView, error) {
	out := make([]alertEventView, 0, len(events))
	for _, ev := range events {
		c, err := s.correlation.CoreCoordinate(ctx, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, alertEventView{AlertEvent: ev, CoreCoordinate: c})
	}
	return out, nil
}

// alertKind parses the {kind} URL parameter of a node alert listing.
func alertKind(r *http.Request) (telemetry.AlertKind, error) {
	kind := telemetry.AlertKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", telemetry.ErrInvalidAlertKind
	}
	return kind, nil
}

// handleCoreEvents lists a core's telemetry, newest first.
func (s *Server) handleCoreEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := eventQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if _, err := s.findDevice(r.Context(), device.KindCore, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	events, err := s.events.CoreEvents(r.Context(), id, q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleNodeEvents lists a node's readings, newest first.
func (s *Server) handleNodeEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := eventQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if _, err := s.findDevice(r.Context(), device.KindNode, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	events, err := s.events.NodeEvents(r.Context(), id, q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.nodeEventViews(r.Context(), events)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}

// handleNodeAlerts lists a node's impact or liquid alerts, newest first.
func (s *Server) handleNodeAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	kind, err := alertKind(r)
	if err != nil {
		writeBadRequest(w, "alert kind must be impact or liquid")
		return
	}
	q, err := eventQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if _, err := s.findDevice(r.Context(), device.KindNode, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	events, err := s.events.AlertEvents(r.Context(), id, kind, q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.alertEventViews(r.Context(), events)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}

// handleCoreEventsInRange lists telemetry of every core.
func (s *Server) handleCoreEventsInRange(w http.ResponseWriter, r *http.Request) {
	q, err := eventQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	events, err := s.events.CoreEventsInRange(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleNodeEventsInRange lists readings of every node.
func (s *Server) handleNodeEventsInRange(w http.ResponseWriter, r *http.Request) {
	q, err := eventQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	events, err := s.events.NodeEventsInRange(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.nodeEventViews(r.Context(), events)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}
