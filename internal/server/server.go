// Package server exposes the discovery pipeline over HTTP and maps the
// orchestrator's outcomes to status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sovereign-xds/sovereign/internal/auth"
	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/common/telemetry"
	"github.com/sovereign-xds/sovereign/internal/discovery"
)

// Server handles the discovery HTTP surface plus healthz and metrics.
type Server struct {
	cfg       *config.Config
	discovery *discovery.Discovery
	auth      *auth.Authenticator
	debug     bool
}

func New(cfg *config.Config, d *discovery.Discovery, a *auth.Authenticator) *Server {
	return &Server{cfg: cfg, discovery: d, auth: a, debug: cfg.Debug}
}

var apiVersionPattern = regexp.MustCompile(`^v[0-9]+$`)

// Handler builds the HTTP routing for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{version}/{action}", s.handleDiscovery)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	return s.withRequestContext(mux)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	apiVersion := r.PathValue("version")
	action := r.PathValue("action")
	xdsType, ok := strings.CutPrefix(action, "discovery:")
	if !ok || !apiVersionPattern.MatchString(apiVersion) {
		http.NotFound(w, r)
		return
	}

	// The type universe is validated before auth so that an invalid path
	// never reveals auth behavior.
	if !s.discovery.KnownType(xdsType) {
		s.writeError(w, r, xdsType, discovery.NewUnknownXdsType(xdsType))
		return
	}

	var req discovery.DiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, xdsType, &discovery.Error{
			Kind:        "InvalidDiscoveryRequest",
			StatusCode:  http.StatusBadRequest,
			Description: "request body is not a valid discovery request",
			Err:         err,
		})
		return
	}
	req.DesiredControlplane = r.Host

	QueueLogFields(r.Context(),
		"resource_names", strings.Join(req.ResourceNames, ","),
		"envoy_ver", req.Node.EnvoyVersion(),
	)

	if err := s.auth.Authenticate(&req); err != nil {
		s.writeError(w, r, xdsType, err)
		return
	}

	result, err := s.discovery.Response(r.Context(), &req, apiVersion, xdsType)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away; emit nothing.
			slog.Debug("Discovery request cancelled", "request_id", RequestID(r.Context()))
			return
		}
		s.writeError(w, r, xdsType, err)
		return
	}

	QueueLogFields(r.Context(),
		"client_version", req.VersionInfo,
		"server_version", result.Version(),
	)
	s.setDiscoveryHeaders(w, &req, result.Version(), xdsType)

	switch res := result.(type) {
	case discovery.NotModified:
		s.finish(w, r, xdsType, s.cfg.NoChangesResponseCode)
	case *discovery.ProcessedTemplate:
		if len(res.Resources) == 0 {
			s.finish(w, r, xdsType, http.StatusNotFound)
			return
		}
		body, err := res.Rendered()
		if err != nil {
			s.writeError(w, r, xdsType, discovery.NewTemplateRenderError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		s.finish(w, r, xdsType, http.StatusOK)
		_, _ = w.Write(body)
	default:
		s.writeError(w, r, xdsType, &discovery.Error{
			Kind:       "InternalServerError",
			StatusCode: http.StatusInternalServerError,
			Err:        errors.New("resources could not be determined"),
		})
	}
}

func (s *Server) setDiscoveryHeaders(w http.ResponseWriter, req *discovery.DiscoveryRequest, responseVersion, xdsType string) {
	requested := strings.Join(req.ResourceNames, ",")
	if requested == "" {
		requested = "all"
	}
	h := w.Header()
	h.Set("X-Sovereign-Client-Build", req.Node.EnvoyVersion())
	h.Set("X-Sovereign-Client-Version", req.VersionInfo)
	h.Set("X-Sovereign-Requested-Resources", requested)
	h.Set("X-Sovereign-Requested-Type", xdsType)
	h.Set("X-Sovereign-Response-Version", responseVersion)
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, xdsType string, status int) {
	telemetry.MetricDiscoveryRequests.WithLabelValues(xdsType, strconv.Itoa(status)).Inc()
	w.WriteHeader(status)
}

// writeError maps any request-path failure to the JSON error body
// {error, request_id, description?}. Raw error detail only reaches logs.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, xdsType string, err error) {
	kind := "InternalServerError"
	status := http.StatusInternalServerError
	description := ""
	if derr, ok := discovery.AsError(err); ok {
		kind = derr.Kind
		status = derr.StatusCode
		description = derr.Description
	}
	QueueLogFields(r.Context(), "error", kind, "detail", err.Error())
	telemetry.MetricDiscoveryRequests.WithLabelValues(xdsType, strconv.Itoa(status)).Inc()
	s.writeErrorResponse(w, r, kind, status, description)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, kind string, status int, description string) {
	body := map[string]interface{}{
		"error":      kind,
		"request_id": RequestID(r.Context()),
	}
	if description != "" {
		body["description"] = description
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
