// Package github provides a minimal client for the GitHub REST API, limited to
// the repository fields the portfolio consumes.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("github: not found")

// StatusError describes any other non-2xx response.
type StatusError struct {
	Code        int
	RateLimited bool
}

func (e *StatusError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("github api status %d (rate limited)", e.Code)
	}
	return fmt.Sprintf("github api status %d", e.Code)
}

// Client is a minimal HTTP client for the GitHub REST API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New returns a new client. If httpClient is nil, a default with 15s timeout is used.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, HTTP: httpClient}
}

// Repo is the subset of repository metadata the portfolio uses.
type Repo struct {
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Homepage    *string   `json:"homepage"`
	Stars       int       `json:"stargazers_count"`
	Language    *string   `json:"language"`
	Topics      []string  `json:"topics"`
	UpdatedAt   time.Time `json:"updated_at"`
	Fork        bool      `json:"fork"`
}

type contentFile struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Repo fetches metadata for owner/name.
func (c *Client) Repo(ctx context.Context, owner, name string) (Repo, error) {
	var r Repo
	if err := c.get(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name), nil, &r); err != nil {
		return Repo{}, err
	}
	return r, nil
}

// Readme fetches and decodes the repository readme.
func (c *Client) Readme(ctx context.Context, owner, name string) (string, error) {
	var f contentFile
	if err := c.get(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name)+"/readme", nil, &f); err != nil {
		return "", err
	}
	return decodeContent(f)
}

// UserRepos lists public repositories for user, most recently updated first.
func (c *Client) UserRepos(ctx context.Context, user string) ([]Repo, error) {
	q := url.Values{}
	q.Set("sort", "updated")
	q.Set("direction", "desc")
	q.Set("per_page", "100")
	var repos []Repo
	if err := c.get(ctx, "/users/"+url.PathEscape(user)+"/repos", q, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	reqURL := c.BaseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "portfolio-server")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return &StatusError{Code: resp.StatusCode, RateLimited: true}
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &StatusError{Code: resp.StatusCode, RateLimited: true}
	default:
		return &StatusError{Code: resp.StatusCode}
	}
}

func decodeContent(f contentFile) (string, error) {
	if f.Encoding != "" && f.Encoding != "base64" {
		return f.Content, nil
	}
	// the API wraps base64 content at 60 columns
	clean := strings.ReplaceAll(f.Content, "\n", "")
	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", fmt.Errorf("decode readme: %w", err)
	}
	return string(raw), nil
}
