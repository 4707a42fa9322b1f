package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brunogleite/cro-analyzer-backend/internal/repository"
)

type analyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	user := userFrom(r.Context())
	rec, err := s.analysis.Analyze(r.Context(), user, req.URL)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"analysis": rec})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis id")
		return
	}
	user := userFrom(r.Context())
	rec, err := s.analysis.Get(r.Context(), user, id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analysis": rec})
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	filter := repository.AnalysisFilter{
		Status:      r.URL.Query().Get("status"),
		URLContains: r.URL.Query().Get("url"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		// Honored for admins only; the service pins everyone else to
		// their own records.
		if uid, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.UserID = uid
		}
	}
	user := userFrom(r.Context())
	recs, err := s.analysis.List(r.Context(), user, filter)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": recs, "count": len(recs)})
}

func (s *Server) analysisStats(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	stats, err := s.analysis.Stats(r.Context(), user)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) deleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis id")
		return
	}
	user := userFrom(r.Context())
	if err := s.analysis.Delete(r.Context(), user, id); err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
