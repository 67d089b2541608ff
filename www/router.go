// Package www serves the simulator's HTTP surface: the JSON API, the
// SSE event stream, the live-value websocket, and Prometheus metrics.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"tagsim/engine"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	eventHub *EventHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		eventHub: NewEventHub(),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.AllowAll().Handler)

	// SSE event stream
	r.Get("/api/events", h.eventHub.HandleSSE)

	// Live tag values over websocket
	r.Get("/ws", eng.WSHub().ServeHTTP)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)

		r.Get("/tags", h.apiListTags)
		r.Get("/tags/{name}", h.apiGetTag)
		r.Post("/tags/{name}", h.apiWriteTag)

		r.Get("/alarms/active", h.apiActiveAlarms)
		r.Get("/alarms/history", h.apiAlarmHistory)
		r.Post("/alarms/{rule}/ack", h.apiAcknowledgeAlarm)

		r.Get("/publishers", h.apiListPublishers)
		r.Post("/publishers/{name}/enable", h.apiEnablePublisher)
		r.Post("/publishers/{name}/disable", h.apiDisablePublisher)
	})

	return r, h.eventHub.Stop
}
