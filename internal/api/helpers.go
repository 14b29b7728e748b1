// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package api exposes the HTTP surface: analytics snapshots, the live event
// feed, inventory management, the WebSocket upgrade endpoint, health, and
// Prometheus metrics.
package api

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/validation"
)

// sanitizeLogValue strips control characters from user-supplied strings
// before they reach the structured log, preventing log injection.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			b.WriteString(fmt.Sprintf("\\x%02x", r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// generateETag produces a weak ETag from the marshalled response body.
func generateETag(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf(`W/"%x"`, h.Sum64())
}

// respondJSON writes a success envelope. Cacheable GET responses carry an
// ETag so dashboards polling snapshots can short-circuit with 304.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	body, err := json.Marshal(models.APIResponse{Status: "success", Data: data})
	if err != nil {
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to marshal response")
		http.Error(w, `{"status":"error","error":{"code":"internal","message":"encoding failure"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.Method == http.MethodGet && status == http.StatusOK {
		etag := generateETag(body)
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Header().Set("Vary", "Accept-Encoding")
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Failed to write response body")
	}
}

// respondError writes an error envelope and logs it at warn level.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	logging.Warn().
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Int("status", status).
		Str("code", sanitizeLogValue(code)).
		Str("message", sanitizeLogValue(message)).
		Msg("Request failed")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	body, err := json.Marshal(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	if _, err := w.Write(body); err != nil {
		logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Failed to write error body")
	}
}

// respondValidationError maps a struct validation failure to a 400 whose
// details name each offending field.
func respondValidationError(w http.ResponseWriter, r *http.Request, verr *validation.StructError) {
	details := make(map[string]interface{}, len(verr.Fields))
	for _, f := range verr.Fields {
		details[f.Field] = f.Message
	}

	logging.Warn().
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Int("fields", len(verr.Fields)).
		Msg("Validation failed")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)

	body, err := json.Marshal(models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    "validation_failed",
			Message: verr.Error(),
			Details: details,
		},
	})
	if err != nil {
		return
	}
	w.Write(body) //nolint:errcheck
}

// decodeBody unmarshals a JSON request body into v, capping the body size.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return false
	}
	return true
}

// getIntParam reads an integer query parameter, falling back to def when
// absent and clamping to [0, max]. max 0 means no upper bound.
func getIntParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// getURLParam reads a chi URL parameter.
func getURLParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
