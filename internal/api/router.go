// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/vendwatch/internal/config"
	"github.com/tomtom215/vendwatch/internal/metrics"
)

// Health checks and the WebSocket upgrade get their own, more permissive
// limits than the default API budget.
var (
	rateLimitHealth    = 1000
	rateLimitWebSocket = 30
)

// NewRouter assembles the chi router with CORS, per-group rate limits,
// and request metrics.
func NewRouter(cfg config.ServerConfig, h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "If-None-Match"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(rateLimitHealth, time.Minute))
			r.Get("/health", h.GetHealth)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))

			r.Get("/snapshot/{period}", h.GetSnapshot)
			r.Get("/stats/realtime", h.GetRealTimeStats)
			r.Get("/events", h.GetEvents)

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", h.ListInventory)
				r.Post("/", h.CreateProduct)
				r.Get("/stats", h.GetInventoryStats)
				r.Get("/search", h.SearchInventory)
				r.Get("/{id}", h.GetProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Put("/{id}/stock", h.SetStock)
				r.Delete("/{id}", h.DeleteProduct)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(rateLimitWebSocket, time.Minute))
		r.Get("/ws", h.ServeWS)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// statusRecorder captures the response status for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestMetrics records per-request counters and latency. The WebSocket
// upgrade is skipped; its connection lifetime is tracked by the hub.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
	})
}
