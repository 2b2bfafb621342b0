// Package http assembles the service's HTTP surface: the shared middleware
// chain, the feature routers, the event stream, and the operational
// endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attestry/internal/platform/middleware"
	"attestry/internal/transport/http/shared"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/events"
)

// FeatureHandler is implemented by each feature's HTTP handler.
type FeatureHandler interface {
	Register(r chi.Router)
}

// EventLister serves the replayable registry log.
type EventLister interface {
	ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error)
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

const (
	requestTimeout    = 15 * time.Second
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Config carries everything the router needs.
type Config struct {
	Logger    *slog.Logger
	Validator middleware.JWTValidator
	Access    FeatureHandler
	Ledger    FeatureHandler
	Events    EventLister
	Health    []HealthChecker
}

// NewRouter builds the full router. All feature routes sit behind JWT auth;
// /healthz, /metrics and /events are open.
func NewRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", handleHealth(cfg.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/events", handleEvents(cfg.Events))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.Validator, cfg.Logger))
		cfg.Access.Register(r)
		cfg.Ledger.Register(r)
	})

	return r
}

func handleHealth(checkers []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checkers {
			if err := c.Health(r.Context()); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
				})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type eventsResponse struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

// handleEvents streams the log in sequence order. Consumers page with
// ?after=<seq>&limit=<n>; a replay from after=0 reproduces the full history.
func handleEvents(lister EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			after uint64
			limit = defaultEventLimit
			err   error
		)
		if raw := r.URL.Query().Get("after"); raw != "" {
			if after, err = strconv.ParseUint(raw, 10, 64); err != nil {
				shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "after must be a non-negative integer"))
				return
			}
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 {
				shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
				return
			}
			if limit > maxEventLimit {
				limit = maxEventLimit
			}
		}

		list, err := lister.ListAfter(r.Context(), after, limit)
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
			return
		}
		if list == nil {
			list = []events.Event{}
		}
		shared.WriteJSON(w, http.StatusOK, eventsResponse{Events: list, Count: len(list)})
	}
}
