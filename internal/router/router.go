// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package router implements the per-request dispatch table described in
// spec.md §4.8: method/path matching, tenant lookup by token, request-id
// minting, and metric hooks.
package router

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudgate/upload-gateway/internal/apperror"
	"github.com/cloudgate/upload-gateway/internal/bodytransform"
	"github.com/cloudgate/upload-gateway/internal/httpx"
	"github.com/cloudgate/upload-gateway/internal/logging"
	"github.com/cloudgate/upload-gateway/internal/metrics"
	"github.com/cloudgate/upload-gateway/internal/reqparse"
	"github.com/cloudgate/upload-gateway/internal/tenant"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is the process-wide, immutable state shared by every request
// handler: a mapping from api_token to the Tenant it authenticates.
type App struct {
	tenants []*tenant.Tenant
	metrics *metrics.Registry
}

func NewApp(tenants []*tenant.Tenant, m *metrics.Registry) *App {
	return &App{tenants: tenants, metrics: m}
}

// lookupTenant returns the tenant whose api_token exactly matches token,
// using a constant-time comparison to avoid a timing side channel on the
// shared-secret check (spec.md §8 P7).
func (a *App) lookupTenant(token string) *tenant.Tenant {
	if token == "" {
		return nil
	}
	tokenBytes := []byte(token)
	for _, t := range a.tenants {
		if subtle.ConstantTimeCompare([]byte(t.APIToken), tokenBytes) == 1 {
			return t
		}
	}
	return nil
}

// Handler builds the top-level http.Handler for this App: health and
// metrics endpoints plus the business upload route, wrapped in the
// observability middleware that mints request IDs and records metrics
// for every business request.
func (a *App) Handler(l promhttp.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload_file", a.handleUploadFile)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/prometheus_metrics", a.metrics.Handler(l))
	mux.HandleFunc("/", handleDefault)

	return observabilityMiddleware(a.metrics, stripTrailingSlash(mux))
}

// stripTrailingSlash normalizes r.URL.Path before it reaches mux, so
// "/upload_file/" dispatches to the same handler as "/upload_file" per
// spec.md §4.8.
func stripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path := strings.TrimSuffix(r.URL.Path, "/"); path != r.URL.Path {
			if path == "" {
				path = "/"
			}
			r.URL.Path = path
		}
		next.ServeHTTP(w, r)
	})
}

// handleDefault answers any path the mux has no registered route for with
// spec.md §4.8's "Any other → 400" envelope, instead of ServeMux's default
// plain-text 404.
func handleDefault(w http.ResponseWriter, r *http.Request) {
	httpx.RespondError(w, r, requestIDFrom(r), apperror.BadRequest("Wrong path or method"))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type requestIDContextKey struct{}

func withRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id))
}

func requestIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(requestIDContextKey{}).(string); ok {
		return v
	}
	return ""
}

// observabilityMiddleware mints a request ID, attaches a request-scoped
// logger, and — for every business request (i.e. not /health or
// /prometheus_metrics) — records total requests, duration, and
// return-code counters labelled by (path, method[, status]).
func observabilityMiddleware(m *metrics.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, "/")
		if path == "" {
			path = "/"
		}

		business := path != "/health" && path != "/prometheus_metrics"

		requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
		l := logging.FromRequest(r).WithField("request_id", requestID).WithField("method", r.Method).WithField("path", path)
		r = logging.IntoRequest(r, l)
		r = withRequestID(r, requestID)

		rec := &httpx.StatusRecorder{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		if !business {
			return
		}

		m.RequestsTotal.WithLabelValues(path, r.Method).Inc()
		m.RequestDuration.WithLabelValues(path, r.Method).Observe(duration.Seconds())
		m.ResponseStatus.WithLabelValues(path, r.Method, strconv.Itoa(rec.StatusCode())).Inc()
	})
}

func (a *App) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	if err := a.serveUploadFile(w, r); err != nil {
		httpx.RespondError(w, r, requestID, err)
	}
}

func (a *App) serveUploadFile(w http.ResponseWriter, r *http.Request) error {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path != "/upload_file" || r.Method != http.MethodPost {
		return apperror.BadRequest("Wrong path or method")
	}

	token, err := reqparse.RequiredStrHeader(r.Header, "X-Api-Token")
	if err != nil {
		return apperror.Unauthorized("Api token parsing failed")
	}

	t := a.lookupTenant(token)
	if t == nil {
		return apperror.BadRequest("Requested project is missing")
	}

	query, err := reqparse.ParseUploadQuery(r.URL.RawQuery)
	if err != nil {
		return apperror.BadRequest("Query parsing error")
	}

	if _, present, err := reqparse.ContentLength(r.Header); err != nil || !present {
		return apperror.LengthRequired("Content-Length header is required and must be numeric")
	}

	explicitFilename := query.Filename
	if v, ok := reqparse.StrHeader(r.Header, "X-Filename"); ok {
		explicitFilename = v
	}
	contentType, _, err := reqparse.ContentType(r.Header)
	if err != nil {
		return apperror.BadRequest("error parsing Content-Type header: %s", err)
	}

	transformed := bodytransform.Choose(explicitFilename, contentType, r.Body)

	result, err := t.Upload(r.Context(), transformed.Name, transformed.Body, query.SlackSend, query.SlackTextPrefix)
	if err != nil {
		return err
	}

	requestID := requestIDFrom(r)
	body := map[string]any{
		"link":       result.Link,
		"request_id": requestID,
		"slack_sent": result.SlackSent,
	}
	if err := httpx.RespondJSON(w, http.StatusOK, body); err != nil {
		return apperror.InternalErrorWrap(err, "error writing upload response")
	}
	return nil
}
