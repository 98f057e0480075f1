package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router is a thin wrapper over http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (promhttp and similar).
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterEventRoutes mounts the event, analysis and index endpoints.
// limiter may be nil; it only guards the write endpoints.
func (r *Router) RegisterEventRoutes(h *EventHandler, limiter *RateLimiter) {
	report := h.ReportEvent
	if limiter != nil {
		report = limiter.Wrap(report)
	}

	r.Handle("/api/events", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListEvents(w, req)
		case http.MethodPost:
			report(w, req)
		default:
			methodNotAllowed(w, "GET, POST")
		}
	})

	// first-generation firmware paths
	r.Handle("/api/reportar_evento", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		report(w, req)
	})
	r.Handle("/api/eventos", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.ListEvents(w, req)
	})

	r.Handle("/api/events/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.ExportEvents(w, req)
	})

	r.Handle("/api/analysis", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.GetAnalysis(w, req)
	})

	r.Handle("/api/index/rebuild", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.RebuildIndex(w, req)
	})

	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.Health(w, req)
	})
}

// RegisterMetricsRoute exposes gatherer at /metrics.
func (r *Router) RegisterMetricsRoute(gatherer prometheus.Gatherer) {
	r.HandleHandler("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// RegisterDashboard serves the monitor page at /.
func (r *Router) RegisterDashboard() {
	r.Handle("/", Dashboard)
}
