package server

import (
	"errors"
	"mime/multipart"
	"net/http"

	"portfolio/internal/apperr"
	"portfolio/internal/store"
	"portfolio/internal/uploads"
)

// multipart bodies above this are rejected outright; individual files are
// checked against uploads.MaxSize.
const maxUploadBody = 64 << 20

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "Authentication failed")
		return
	}
	if !s.gate.Authorize(req.Code) {
		s.logger.Warn("admin login rejected", "remote", r.RemoteAddr)
		s.writeError(w, r, apperr.New(apperr.KindUnauthorized, "Invalid admin code"), "Authentication failed")
		return
	}
	cookie, err := s.gate.Grant()
	if err != nil {
		s.writeError(w, r, err, "Authentication failed")
		return
	}
	http.SetCookie(w, cookie)
	s.logger.Info("admin login", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Revoke(r)
	http.SetCookie(w, s.gate.Clear())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": s.gate.IsAuthenticated(r)})
}

// handleListProjects never fails: the public pages keep rendering with an
// empty list when storage is unavailable.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch projects", "error", err)
		projects = []store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "Failed to create project")
		return
	}
	in, err := req.Input()
	if err != nil {
		s.writeError(w, r, err, "Failed to create project")
		return
	}
	p, err := s.projects.CreateProject(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err, "Failed to create project")
		return
	}
	s.logger.Info("project created", "id", p.ID, "title", p.Title)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "Failed to update project")
		return
	}
	if req.ID == "" {
		s.writeError(w, r, apperr.Validation("Project ID is required"), "Failed to update project")
		return
	}
	in, err := req.Input()
	if err != nil {
		s.writeError(w, r, err, "Failed to update project")
		return
	}
	p, err := s.projects.UpdateProject(r.Context(), req.ID, in)
	if err != nil {
		s.writeError(w, r, err, "Failed to update project")
		return
	}
	s.logger.Info("project updated", "id", p.ID)
	writeJSON(w, http.StatusOK, p)
}

// uploadResponse carries the recorded files. On a partial batch it also
// carries the error for the file that stopped it.
type uploadResponse struct {
	Files   []store.File `json:"files"`
	Partial bool         `json:"partial,omitempty"`
	Error   string       `json:"error,omitempty"`
	Details string       `json:"details,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, apperr.Validation("Upload too large"), "Failed to upload files")
			return
		}
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, "projectId and images are required", err), "Failed to upload files")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["images"]
	batch := make([]uploads.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, r, err, "Failed to upload files")
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(f)
		batch = append(batch, uploads.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}

	files, err := s.uploads.Save(r.Context(), r.FormValue("projectId"), batch)
	if err != nil {
		if apperr.IsKind(err, apperr.KindPartialBatch) {
			s.logger.Warn("partial upload", "project_id", r.FormValue("projectId"), "saved", len(files), "error", err)
			body := apperr.Public(err, "Failed to upload files", s.cfg.Production)
			writeJSON(w, apperr.Status(err), uploadResponse{Files: files, Partial: true, Error: body.Error, Details: body.Details})
			return
		}
		s.writeError(w, r, err, "Failed to upload files")
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Files: files})
}

func (s *Server) handleListMarkdownFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.projects.ListMarkdownFiles(r.Context())
	if err != nil {
		s.writeError(w, r, err, "Failed to fetch markdown files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleCreateMarkdownFile(w http.ResponseWriter, r *http.Request) {
	var req MarkdownFileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "Failed to create markdown file")
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err, "Failed to create markdown file")
		return
	}
	m, err := s.projects.CreateMarkdownFile(r.Context(), req.ProjectID, req.Filename, req.Content)
	if err != nil {
		s.writeError(w, r, err, "Failed to create markdown file")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
