package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/model"
)

const maxUploadMemory = 32 << 20 // 32 MiB, multipart form parsing buffer

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apierr.Validationf("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.Validationf("missing \"file\" field: %v", err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.Internalf(err, "failed to read upload body"))
		return
	}

	uploaded, err := s.uploads.Upload(header.Filename, content, header.Size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "file uploaded",
		"file":    uploaded,
		"path":    uploaded.Name,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.uploads.List())
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.uploads.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}

// indexingStatusResponse is the shared shape of the start and status
// endpoints (spec.md §6.1).
type indexingStatusResponse struct {
	IsIndexing bool   `json:"is_indexing"`
	Progress   int    `json:"progress"`
	Message    string `json:"message"`
}

func toIndexingStatus(job model.IndexJob) indexingStatusResponse {
	return indexingStatusResponse{
		IsIndexing: job.IsRunning,
		Progress:   job.Progress,
		Message:    job.Message,
	}
}

func (s *Server) handleIndexingStart(w http.ResponseWriter, r *http.Request) {
	accepted, reason := s.indexer.Start()
	if !accepted {
		writeError(w, apierr.Conflictf("%s", reason))
		return
	}
	writeJSON(w, http.StatusOK, toIndexingStatus(s.indexer.Status()))
}

func (s *Server) handleIndexingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toIndexingStatus(s.indexer.Status()))
}

// searchRequest is the shared request body of the global/local search
// endpoints.
type searchRequest struct {
	Query          string `json:"query"`
	CommunityLevel *int   `json:"community_level,omitempty"`
	ResponseType   string `json:"response_type,omitempty"`
}

const defaultCommunityLevel = 2

func decodeSearchRequest(r *http.Request) (searchRequest, error) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return searchRequest{}, apierr.Validationf("invalid request body: %v", err)
	}
	if req.CommunityLevel == nil {
		level := defaultCommunityLevel
		req.CommunityLevel = &level
	}
	return req, nil
}

func (s *Server) handleSearchGlobal(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := s.search.GlobalSearch(ctx, req.Query, *req.CommunityLevel, req.ResponseType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearchLocal(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := s.search.LocalSearch(ctx, req.Query, *req.CommunityLevel, req.ResponseType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearchSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": s.search.Suggestions()})
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	communities := s.store.LoadCommunities(nil)
	message := ""
	if s.store.CurrentGeneration() == 0 {
		message = "no artifacts available yet"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"communities": communities,
		"total":       len(communities),
		"message":     message,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Statistics()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEntityTypes(w http.ResponseWriter, r *http.Request) {
	histogram, err := s.cache.EntityTypeHistogram()
	if err != nil {
		writeError(w, err)
		return
	}
	total := 0
	for _, h := range histogram {
		total += h.Count
	}
	message := ""
	if total == 0 {
		message = "no artifacts available yet"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"types":          histogram,
		"total_entities": total,
		"message":        message,
	})
}

func (s *Server) handleTopRelationships(w http.ResponseWriter, r *http.Request) {
	const defaultTopK = 10
	top, err := s.cache.TopRelationships(defaultTopK)
	if err != nil {
		writeError(w, err)
		return
	}
	message := ""
	if len(top) == 0 {
		message = "no artifacts available yet"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"relationships": top,
		"total":         len(top),
		"message":       message,
	})
}

func (s *Server) handleGraphTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.topology.Project())
}

func (s *Server) handleGraphEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, apierr.Validationf("entity id must not be empty"))
		return
	}
	analysis, err := s.cache.EntityAnalysis(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
