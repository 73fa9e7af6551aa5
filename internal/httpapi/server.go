// Package httpapi is the HTTP Edge: route dispatch, request decoding, JSON
// encoding, CORS, and taxonomy-mapping of component errors to HTTP status
// codes.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/cache"
	"github.com/localgraph/kg-backend/internal/indexer"
	"github.com/localgraph/kg-backend/internal/search"
	"github.com/localgraph/kg-backend/internal/store"
	"github.com/localgraph/kg-backend/internal/topology"
	"github.com/localgraph/kg-backend/internal/upload"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
	headerCORSOrigin  = "Access-Control-Allow-Origin"
	headerCORSMethods = "Access-Control-Allow-Methods"
	headerCORSHeaders = "Access-Control-Allow-Headers"
	corsMethods       = "GET, POST, DELETE, OPTIONS"
	corsHeaders       = "Content-Type"
)

// defaultRequestTimeout bounds handlers that don't have a more specific
// per-call deadline of their own (spec.md §5 "Cancellation and timeouts").
const defaultRequestTimeout = 30 * time.Second

// Server wires every backend component into an http.Handler.
type Server struct {
	store     *store.Store
	cache     *cache.Cache
	indexer   *indexer.Supervisor
	uploads   *upload.Intake
	search    *search.Gateway
	topology  *topology.Projector
	corsOrigin string
	version   string

	mux http.Handler
}

// NewServer builds the full route table and CORS middleware.
func NewServer(
	s *store.Store,
	c *cache.Cache,
	idx *indexer.Supervisor,
	up *upload.Intake,
	sg *search.Gateway,
	proj *topology.Projector,
	corsOrigin string,
	versionString string,
) *Server {
	srv := &Server{
		store:      s,
		cache:      c,
		indexer:    idx,
		uploads:    up,
		search:     sg,
		topology:   proj,
		corsOrigin: corsOrigin,
		version:    versionString,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", srv.handleRoot)
	mux.HandleFunc("POST /api/files/upload", srv.handleUpload)
	mux.HandleFunc("GET /api/files", srv.handleListFiles)
	mux.HandleFunc("DELETE /api/files/{id}", srv.handleDeleteFile)
	mux.HandleFunc("POST /api/indexing/start", srv.handleIndexingStart)
	mux.HandleFunc("GET /api/indexing/status", srv.handleIndexingStatus)
	mux.HandleFunc("POST /api/search/global", srv.handleSearchGlobal)
	mux.HandleFunc("POST /api/search/local", srv.handleSearchLocal)
	mux.HandleFunc("GET /api/search/suggestions", srv.handleSearchSuggestions)
	mux.HandleFunc("GET /api/communities", srv.handleCommunities)
	mux.HandleFunc("GET /api/statistics", srv.handleStatistics)
	mux.HandleFunc("GET /api/entity-types", srv.handleEntityTypes)
	mux.HandleFunc("GET /api/relationships/top", srv.handleTopRelationships)
	mux.HandleFunc("GET /api/graph/topology", srv.handleGraphTopology)
	mux.HandleFunc("GET /api/graph/entity/{id}", srv.handleGraphEntity)

	srv.mux = srv.withCORS(mux)
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// withCORS wraps next with a single CORS layer that reads the allowed
// origin from configuration rather than echoing the request's Origin header
// (spec.md's REDESIGN FLAGS).
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerCORSOrigin, s.corsOrigin)
		w.Header().Set(headerCORSMethods, corsMethods)
		w.Header().Set(headerCORSHeaders, corsHeaders)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}

// writeError maps err's apierr.Kind to an HTTP status per spec.md §6.1's
// table and encodes the {detail, kind} body spec.md §7 requires: detail is
// rendered verbatim by the UI, kind is the taxonomy class behind it.
func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apierr.Validation:
		status = http.StatusBadRequest
	case apierr.NotFound:
		status = http.StatusNotFound
	case apierr.Conflict:
		status = http.StatusConflict
	case apierr.NotReady:
		status = http.StatusServiceUnavailable
	case apierr.Timeout:
		status = http.StatusGatewayTimeout
	case apierr.Upstream, apierr.Internal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"detail": err.Error(), "kind": string(kind)})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// requestContext returns a context bounded by defaultRequestTimeout, derived
// from the request's own context so client disconnects still propagate
// cancellation.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), defaultRequestTimeout)
}
