package server

import (
	"encoding/json"
	"strings"

	"portfolio/internal/apperr"
	"portfolio/internal/store"
)

// LoginRequest is the body of POST /api/auth/admin.
type LoginRequest struct {
	Code string `json:"code"`
}

// ProjectRequest is the body of project create and update calls.
// Technologies may be a comma-separated string or a list of strings.
type ProjectRequest struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Content      string          `json:"content"`
	Technologies json.RawMessage `json:"technologies"`
	GitHubURL    *string         `json:"githubUrl"`
}

// Input validates the request and converts it to a store input.
func (p ProjectRequest) Input() (store.ProjectInput, error) {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Description) == "" || strings.TrimSpace(p.Content) == "" {
		return store.ProjectInput{}, apperr.Validation("Title, description and content are required")
	}
	techs, err := parseTechnologies(p.Technologies)
	if err != nil {
		return store.ProjectInput{}, err
	}
	in := store.ProjectInput{
		Title:        p.Title,
		Description:  p.Description,
		Content:      p.Content,
		Technologies: techs,
	}
	if p.GitHubURL != nil && strings.TrimSpace(*p.GitHubURL) != "" {
		u := strings.TrimSpace(*p.GitHubURL)
		in.GitHubURL = &u
	}
	return in, nil
}

// MarkdownFileRequest is the body of POST /api/markdownfiles.
type MarkdownFileRequest struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	ProjectID string `json:"projectId"`
}

func (m MarkdownFileRequest) validate() error {
	if m.Filename == "" || m.Content == "" || m.ProjectID == "" {
		return apperr.Validation("filename, content and projectId are required")
	}
	return nil
}

// parseTechnologies accepts null, "a, b" or ["a", "b"] and returns the
// trimmed non-empty entries.
func parseTechnologies(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var csv string
		if err := json.Unmarshal(raw, &csv); err != nil {
			return nil, apperr.Validation("technologies must be a string or a list of strings")
		}
		list = strings.Split(csv, ",")
	}

	out := make([]string, 0, len(list))
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}
