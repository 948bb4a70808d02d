package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	if s.showcase == nil {
		http.NotFound(w, r)
		return
	}
	repos, err := s.showcase.Repos(r.Context())
	if err != nil {
		s.writeError(w, r, err, "Failed to fetch repositories")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	if s.showcase == nil {
		http.NotFound(w, r)
		return
	}
	snap, err := s.showcase.Fetch(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err, "Failed to fetch project")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleScheduled is called by an external scheduler to refresh every cached
// repository snapshot.
func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	if s.showcase == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "nothing to refresh"})
		return
	}
	start := time.Now()
	res, err := s.showcase.Refresh(r.Context())
	if err != nil {
		s.writeError(w, r, err, "Failed to refresh cache")
		return
	}
	s.logger.Info("scheduled refresh", "listed", res.Listed, "refreshed", res.Refreshed, "failed", res.Failed,
		"lat_ms", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, map[string]any{"status": "scheduled task completed", "result": res})
}
