package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/feeds"

	"portfolio/internal/apperr"
	"portfolio/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	list   *template.Template
	detail *template.Template
}

func newPages() *pages {
	funcs := template.FuncMap{
		"projectPath": projectPath,
		"date":        func(t time.Time) string { return t.Format("Jan 2, 2006") },
	}
	parse := func(page string) *template.Template {
		return template.Must(template.New("base.html").Funcs(funcs).
			ParseFS(templateFS, "templates/base.html", "templates/"+page))
	}
	return &pages{list: parse("projects.html"), detail: parse("project.html")}
}

type listPage struct {
	Title    string
	Projects []store.Project
}

type detailPage struct {
	Title   string
	Project store.Project
	Body    template.HTML
}

// projectPath is the public URL of a project detail page.
func projectPath(title string) string {
	return "/projects/" + url.PathEscape(title)
}

func (s *Server) handleProjectsPage(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch projects", "error", err)
		projects = []store.Project{}
	}
	s.renderPage(w, r, http.StatusOK, s.pages.list, listPage{Title: s.cfg.SiteTitle, Projects: projects})
}

func (s *Server) handleProjectPage(w http.ResponseWriter, r *http.Request) {
	// chi matches against RawPath when the path holds escapes like %2F, and
	// against the already decoded Path otherwise.
	title := chi.URLParam(r, "title")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(title); err == nil {
			title = unescaped
		}
	}

	p, err := s.projects.ProjectByTitle(r.Context(), title)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to load project", "title", title, "error", err)
		http.Error(w, "Failed to load project", http.StatusInternalServerError)
		return
	}

	body, err := s.renderProject(p)
	if err != nil {
		s.logger.Error("Failed to render project", "id", p.ID, "error", err)
		http.Error(w, "Failed to render project", http.StatusInternalServerError)
		return
	}
	s.renderPage(w, r, http.StatusOK, s.pages.detail, detailPage{
		Title:   "project: " + p.Title,
		Project: p,
		Body:    template.HTML(body), // sanitised by the renderer: raw HTML is dropped
	})
}

// renderProject renders the project's markdown once per revision.
func (s *Server) renderProject(p store.Project) (string, error) {
	key := fmt.Sprintf("%s:%d", p.ID, p.UpdatedAt.UnixMilli())
	if html, ok := s.rendered.Get(key); ok {
		return html, nil
	}
	html, err := s.renderer.Markdown(p.Content)
	if err != nil {
		return "", err
	}
	s.rendered.Set(key, html)
	return html, nil
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("template failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch projects", "error", err)
		projects = []store.Project{}
	}
	atom, err := s.buildFeed(projects)
	if err != nil {
		s.writeError(w, r, err, "Failed to build feed")
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	_, _ = w.Write([]byte(atom))
}

func (s *Server) buildFeed(projects []store.Project) (string, error) {
	base := strings.TrimRight(s.cfg.SiteURL, "/")
	updated := time.Unix(0, 0).UTC()
	for _, p := range projects {
		if p.UpdatedAt.After(updated) {
			updated = p.UpdatedAt
		}
	}

	feed := &feeds.Feed{
		Title:       s.cfg.SiteTitle,
		Description: "Recently published projects",
		Link:        &feeds.Link{Href: base + "/projects", Rel: "alternate", Type: "text/html"},
		Id:          base + "/projects/feed.atom",
		Updated:     updated,
	}
	for _, p := range projects {
		link := base + projectPath(p.Title)
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       p.Title,
			Link:        &feeds.Link{Href: link, Rel: "alternate", Type: "text/html"},
			Id:          "urn:uuid:" + p.ID,
			Description: p.Description,
			Created:     p.CreatedAt,
			Updated:     p.UpdatedAt,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return "", fmt.Errorf("encode atom feed: %w", err)
	}
	return atom, nil
}
