package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/routecycle"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.middlewares()...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Gateways
		r.Route("/cores", func(r chi.Router) {
			r.Get("/", s.handleListDevices(device.KindCore))
			r.Post("/", s.handleRegisterDevice(device.KindCore))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice(device.KindCore))
				r.Patch("/", s.handleUpdateDevice(device.KindCore))
				r.Delete("/", s.handleDeleteDevice(device.KindCore))
				r.Get("/events", s.handleCoreEvents)
			})
		})

		// Sensor tags
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListDevices(device.KindNode))
			r.Post("/", s.handleRegisterDevice(device.KindNode))
			r.Get("/available", s.handleAvailableNodes)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice(device.KindNode))
				r.Patch("/", s.handleUpdateDevice(device.KindNode))
				r.Delete("/", s.handleDeleteDevice(device.KindNode))
				r.Get("/events", s.handleNodeEvents)
				r.Get("/alerts/{kind}", s.handleNodeAlerts)
			})
		})

		// Cross-device event listings
		r.Route("/events", func(r chi.Router) {
			r.Get("/core", s.handleCoreEventsInRange)
			r.Get("/node", s.handleNodeEventsInRange)
		})

		r.Route("/route-cycles", func(r chi.Router) {
			r.Get("/", s.handleListCycles)
			r.Post("/", s.handleCreateCycle)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCycle)
				r.Patch("/", s.handleUpdateCycle)
				r.Post("/start", s.handleTransitionCycle(routecycle.TransitionStart))
				r.Post("/complete", s.handleTransitionCycle(routecycle.TransitionComplete))
				r.Post("/cancel", s.handleTransitionCycle(routecycle.TransitionCancel))
				r.Get("/telemetry", s.handleCycleTelemetry)
				r.Get("/alerts/{kind}", s.handleCycleAlerts)
			})
		})
	})

	return r
}
