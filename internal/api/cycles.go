package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/coldtag-core/internal/routecycle"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// Cycle alert kinds. Temperature and humidity alerts are readings at or
// above the cycle's thresholds; impact and liquid are the node's own alerts.
const (
	cycleAlertTemperature = "temperature"
	cycleAlertHumidity    = "humidity"
)

// handleListCycles lists route cycles, newest first.
//
// Query parameters:
//   - node_id: filter by node
//   - active: "true" lists only cycles that are neither completed nor canceled
func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	var filter routecycle.ListFilter
	if v := r.URL.Query().Get("node_id"); v != "" {
		nodeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "node_id must be an integer")
			return
		}
		filter.NodeID = &nodeID
	}
	filter.Active = r.URL.Query().Get("active") == "true"

	cycles, err := s.cycles.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"route_cycles": cycles, "count": len(cycles)})
}

// handleCreateCycle places a new route cycle on a node.
func (s *Server) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	var draft routecycle.Draft
	if !s.decodeBody(w, r, &draft) {
		return
	}

	c, err := s.cycles.Create(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleGetCycle returns a single route cycle.
func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.cycles.Find(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpdateCycle edits the descriptive fields of a non-terminal cycle.
// A key sent as null clears the field; an absent key leaves it alone.
func (s *Server) handleUpdateCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var update routecycle.Update
	if !s.decodeBody(w, r, &update) {
		return
	}

	c, err := s.cycles.Update(r.Context(), id, update)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleTransitionCycle starts, completes or cancels a cycle.
func (s *Server) handleTransitionCycle(t routecycle.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var (
			c   *routecycle.Cycle
			err error
		)
		switch t {
		case routecycle.TransitionStart:
			c, err = s.cycles.Start(r.Context(), id)
		case routecycle.TransitionComplete:
			c, err = s.cycles.Complete(r.Context(), id)
		default:
			c, err = s.cycles.Cancel(r.Context(), id)
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// handleCycleTelemetry lists the node readings inside a cycle's active
// window, newest first.
func (s *Server) handleCycleTelemetry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.cycles.Find(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	events, err := s.correlation.CycleTelemetry(r.Context(), c)
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

// handleCycleAlerts lists a cycle's alerts of one kind, newest first.
func (s *Server) handleCycleAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")
	switch kind {
	case cycleAlertTemperature, cycleAlertHumidity, string(telemetry.AlertImpact), string(telemetry.AlertLiquid):
	default:
		writeBadRequest(w, "alert kind must be temperature, humidity, impact or liquid")
		return
	}

	ctx := r.Context()
	c, err := s.cycles.Find(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var (
		out   any
		count int
	)
	switch kind {
	case cycleAlertTemperature, cycleAlertHumidity:
		var events []telemetry.NodeEvent
		if kind == cycleAlertTemperature {
			events, err = s.correlation.TemperatureAlerts(ctx, c)
		} else {
			events, err = s.correlation.HumidityAlerts(ctx, c)
		}
		if err == nil {
			out, err = s.nodeEventViews(ctx, events)
			count = len(events)
		}
	default:
		var events []telemetry.AlertEvent
		events, err = s.correlation.CycleAlerts(ctx, c, telemetry.AlertKind(kind))
		if err == nil {
			out, err = s.alertEventViews(ctx, events)
			count = len(events)
		}
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "events": out, "count": count})
}
