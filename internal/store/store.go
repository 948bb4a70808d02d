// Package store persists projects, their uploaded images and attached
// markdown files in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"portfolio/internal/apperr"
	"portfolio/internal/store/migrations"
)

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = apperr.NotFound("Project not found")

// Project is a showcase entry. Titles are not unique.
type Project struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Content      string    `json:"content"`
	Technologies []string  `json:"technologies"`
	GitHubURL    *string   `json:"githubUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Files        []File    `json:"files"`
}

// File is an uploaded image attached to a project.
type File struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ProjectID string    `json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarkdownFile is a named markdown document attached to a project.
type MarkdownFile struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content"`
	ProjectID string    `json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`
	Project   *Project  `json:"project,omitempty"`
}

// ProjectInput carries the writable fields of a project.
type ProjectInput struct {
	Title        string
	Description  string
	Content      string
	Technologies []string
	GitHubURL    *string
}

// Store provides a SQLite-backed project store.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store at the provided path, creating parent
// directories and applying migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := migrate(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

const projectColumns = `id, title, description, content, technologies, github_url, created_at, updated_at`

// ListProjects returns every project with its files, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := []Project{}
	index := map[string]int{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(projects)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	files, err := s.queryFiles(ctx, `SELECT id, url, project_id, created_at FROM files ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if i, ok := index[f.ProjectID]; ok {
			projects[i].Files = append(projects[i].Files, f)
		}
	}
	return projects, nil
}

// GetProject returns the project with id.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return s.withFiles(ctx, row)
}

// ProjectByTitle returns the oldest project carrying title.
func (s *Store) ProjectByTitle(ctx context.Context, title string) (Project, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE title = ? ORDER BY created_at, rowid LIMIT 1`, title)
	return s.withFiles(ctx, row)
}

// ProjectExists reports whether a project with id exists.
func (s *Store) ProjectExists(ctx context.Context, id string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return true, nil
}

// CreateProject inserts a new project with a fresh id.
func (s *Store) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	techs, err := encodeTechnologies(in.Technologies)
	if err != nil {
		return Project{}, err
	}
	now := s.now().UTC()
	p := Project{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Content:      in.Content,
		Technologies: nonNil(in.Technologies),
		GitHubURL:    in.GitHubURL,
		CreatedAt:    now,
		UpdatedAt:    now,
		Files:        []File{},
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Content, techs, nullString(p.GitHubURL),
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	p.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

// UpdateProject replaces the writable fields of project id.
func (s *Store) UpdateProject(ctx context.Context, id string, in ProjectInput) (Project, error) {
	techs, err := encodeTechnologies(in.Technologies)
	if err != nil {
		return Project{}, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE projects SET title = ?, description = ?, content = ?, technologies = ?, github_url = ?, updated_at = ?
		WHERE id = ?`,
		in.Title, in.Description, in.Content, techs, nullString(in.GitHubURL), s.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Project{}, ErrNotFound
	}
	return s.GetProject(ctx, id)
}

// AddFile records an uploaded file for project id.
func (s *Store) AddFile(ctx context.Context, projectID, url string) (File, error) {
	now := time.UnixMilli(s.now().UTC().UnixMilli()).UTC()
	f := File{ID: uuid.NewString(), URL: url, ProjectID: projectID, CreatedAt: now}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO files (id, url, project_id, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.URL, f.ProjectID, now.UnixMilli(),
	)
	if err != nil {
		return File{}, fmt.Errorf("insert file: %w", err)
	}
	return f, nil
}

// ListMarkdownFiles returns every markdown file with its project, newest first.
func (s *Store) ListMarkdownFiles(ctx context.Context) ([]MarkdownFile, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT m.id, m.filename, m.content, m.project_id, m.created_at,
			p.id, p.title, p.description, p.content, p.technologies, p.github_url, p.created_at, p.updated_at
		FROM markdown_files m
		JOIN projects p ON p.id = m.project_id
		ORDER BY m.created_at DESC, m.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query markdown files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []MarkdownFile{}
	for rows.Next() {
		var (
			m       MarkdownFile
			created int64
			p       projectRow
		)
		if err := rows.Scan(&m.ID, &m.Filename, &m.Content, &m.ProjectID, &created,
			&p.id, &p.title, &p.description, &p.content, &p.technologies, &p.githubURL, &p.createdAt, &p.updatedAt); err != nil {
			return nil, fmt.Errorf("scan markdown file: %w", err)
		}
		project, err := p.project()
		if err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		m.Project = &project
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markdown files: %w", err)
	}
	return out, nil
}

// CreateMarkdownFile attaches a markdown document to project id.
func (s *Store) CreateMarkdownFile(ctx context.Context, projectID, filename, content string) (MarkdownFile, error) {
	exists, err := s.ProjectExists(ctx, projectID)
	if err != nil {
		return MarkdownFile{}, err
	}
	if !exists {
		return MarkdownFile{}, ErrNotFound
	}
	now := time.UnixMilli(s.now().UTC().UnixMilli()).UTC()
	m := MarkdownFile{ID: uuid.NewString(), Filename: filename, Content: content, ProjectID: projectID, CreatedAt: now}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO markdown_files (id, filename, content, project_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Filename, m.Content, m.ProjectID, now.UnixMilli(),
	)
	if err != nil {
		return MarkdownFile{}, fmt.Errorf("insert markdown file: %w", err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

type projectRow struct {
	id, title, description, content, technologies string
	githubURL                                     sql.NullString
	createdAt, updatedAt                          int64
}

func (r projectRow) project() (Project, error) {
	var techs []string
	if err := json.Unmarshal([]byte(r.technologies), &techs); err != nil {
		return Project{}, fmt.Errorf("decode technologies of %s: %w", r.id, err)
	}
	p := Project{
		ID:           r.id,
		Title:        r.title,
		Description:  r.description,
		Content:      r.content,
		Technologies: nonNil(techs),
		CreatedAt:    time.UnixMilli(r.createdAt).UTC(),
		UpdatedAt:    time.UnixMilli(r.updatedAt).UTC(),
		Files:        []File{},
	}
	if r.githubURL.Valid {
		u := r.githubURL.String
		p.GitHubURL = &u
	}
	return p, nil
}

func scanProject(sc scanner) (Project, error) {
	var r projectRow
	if err := sc.Scan(&r.id, &r.title, &r.description, &r.content, &r.technologies, &r.githubURL, &r.createdAt, &r.updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("scan project: %w", err)
	}
	return r.project()
}

func (s *Store) withFiles(ctx context.Context, row *sql.Row) (Project, error) {
	p, err := scanProject(row)
	if err != nil {
		return Project{}, err
	}
	files, err := s.queryFiles(ctx,
		`SELECT id, url, project_id, created_at FROM files WHERE project_id = ? ORDER BY created_at, rowid`, p.ID)
	if err != nil {
		return Project{}, err
	}
	p.Files = files
	return p, nil
}

func (s *Store) queryFiles(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := []File{}
	for rows.Next() {
		var (
			f       File
			created int64
		)
		if err := rows.Scan(&f.ID, &f.URL, &f.ProjectID, &created); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.CreatedAt = time.UnixMilli(created).UTC()
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

func encodeTechnologies(techs []string) (string, error) {
	raw, err := json.Marshal(nonNil(techs))
	if err != nil {
		return "", fmt.Errorf("encode technologies: %w", err)
	}
	return string(raw), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
