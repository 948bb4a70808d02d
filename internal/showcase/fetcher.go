// Package showcase assembles project snapshots from the code-hosting API and
// keeps them in the file cache.
package showcase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"portfolio/internal/apperr"
	"portfolio/internal/filecache"
	"portfolio/internal/github"
)

// NoReadme replaces the readme of repositories that do not have one.
const NoReadme = "no readme available"

const reposKey = "repos"

// Upstream is the subset of the code-hosting API the fetcher calls.
type Upstream interface {
	Repo(ctx context.Context, owner, name string) (github.Repo, error)
	Readme(ctx context.Context, owner, name string) (string, error)
	UserRepos(ctx context.Context, user string) ([]github.Repo, error)
}

// Cache stores JSON-serialisable values by validated key.
type Cache interface {
	Get(key string, dst any) (bool, error)
	Put(key string, value any) error
}

// Snapshot is the cached view of a single repository.
type Snapshot struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Readme       string    `json:"readme"`
	Stars        int       `json:"stars"`
	Language     string    `json:"language"`
	Topics       []string  `json:"topics"`
	Technologies []string  `json:"technologies"`
	Homepage     string    `json:"homepage,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	URL          string    `json:"url"`
}

// RepoSummary is one entry of the repository listing.
type RepoSummary struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Stars       int       `json:"stars"`
	Language    string    `json:"language"`
	UpdatedAt   time.Time `json:"updated_at"`
	Topics      []string  `json:"topics"`
}

// Fetcher resolves snapshots through the cache, falling back to the upstream
// API on a miss. Concurrent misses for the same slug share one upstream call.
type Fetcher struct {
	owner    string
	upstream Upstream
	cache    Cache
	lists    Cache
	logger   *slog.Logger
	group    singleflight.Group
}

// NewFetcher constructs a Fetcher for owner's repositories. snapshots caches
// per-repository entries; lists caches the repository listing and must not
// share a directory with snapshots.
func NewFetcher(owner string, upstream Upstream, snapshots, lists Cache, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		owner:    owner,
		upstream: upstream,
		cache:    snapshots,
		lists:    lists,
		logger:   logger,
	}
}

// Fetch returns the snapshot for slug.
func (f *Fetcher) Fetch(ctx context.Context, slug string) (Snapshot, error) {
	if !filecache.ValidKey(slug) {
		return Snapshot{}, fmt.Errorf("fetch %q: %w", slug, filecache.ErrInvalidKey)
	}

	var snap Snapshot
	if ok, err := f.cache.Get(slug, &snap); err != nil {
		return Snapshot{}, err
	} else if ok {
		f.logger.Debug("snapshot cache hit", "slug", slug)
		return snap, nil
	}

	// in-flight loads outlive a disconnecting caller; the HTTP client timeout
	// bounds them
	detached := context.WithoutCancel(ctx)
	v, err, shared := f.group.Do(slug, func() (any, error) {
		snap, err := f.load(detached, slug)
		if err != nil {
			return Snapshot{}, err
		}
		if err := f.cache.Put(slug, snap); err != nil {
			f.logger.Warn("failed to cache snapshot", "slug", slug, "error", err)
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	f.logger.Debug("snapshot loaded", "slug", slug, "shared", shared)
	return v.(Snapshot), nil
}

// load issues the metadata and readme requests concurrently and assembles
// the snapshot. It never reads or writes the cache.
func (f *Fetcher) load(ctx context.Context, slug string) (Snapshot, error) {
	var (
		repo   github.Repo
		readme string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := f.upstream.Repo(gctx, f.owner, slug)
		if err != nil {
			return err
		}
		repo = r
		return nil
	})
	g.Go(func() error {
		text, err := f.upstream.Readme(gctx, f.owner, slug)
		if errors.Is(err, github.ErrNotFound) {
			readme = NoReadme
			return nil
		}
		if err != nil {
			return fmt.Errorf("readme: %w", err)
		}
		readme = text
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, classify(slug, err)
	}

	if strings.TrimSpace(readme) == "" {
		readme = NoReadme
	}
	return Snapshot{
		Name:         repo.Name,
		Description:  deref(repo.Description),
		Readme:       readme,
		Stars:        repo.Stars,
		Language:     deref(repo.Language),
		Topics:       nonNil(repo.Topics),
		Technologies: ExtractTechnologies(readme),
		Homepage:     deref(repo.Homepage),
		UpdatedAt:    repo.UpdatedAt,
		URL:          repo.HTMLURL,
	}, nil
}

// Repos lists the owner's repositories, most recently updated first.
func (f *Fetcher) Repos(ctx context.Context) ([]RepoSummary, error) {
	var list []RepoSummary
	if ok, err := f.lists.Get(reposKey, &list); err == nil && ok {
		return list, nil
	}

	v, err, _ := f.group.Do("list:"+reposKey, func() (any, error) {
		list, err := f.listRepos(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if err := f.lists.Put(reposKey, list); err != nil {
			f.logger.Warn("failed to cache repository list", "error", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]RepoSummary), nil
}

func (f *Fetcher) listRepos(ctx context.Context) ([]RepoSummary, error) {
	repos, err := f.upstream.UserRepos(ctx, f.owner)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to fetch repositories", err)
	}
	list := make([]RepoSummary, 0, len(repos))
	for _, r := range repos {
		list = append(list, RepoSummary{
			Name:        r.Name,
			Description: deref(r.Description),
			URL:         r.HTMLURL,
			Stars:       r.Stars,
			Language:    deref(r.Language),
			UpdatedAt:   r.UpdatedAt,
			Topics:      nonNil(r.Topics),
		})
	}
	return list, nil
}

func classify(slug string, err error) error {
	if errors.Is(err, github.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "project not found", fmt.Errorf("repository %q: %w", slug, err))
	}
	return apperr.Wrap(apperr.KindUpstream, "failed to fetch project", fmt.Errorf("repository %q: %w", slug, err))
}

// ExtractTechnologies collects the bullet items listed under a
// "## Technologies" heading.
func ExtractTechnologies(readme string) []string {
	lines := strings.Split(strings.ReplaceAll(readme, "\r\n", "\n"), "\n")
	techs := []string{}
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") {
			if inSection {
				break
			}
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			inSection = strings.EqualFold(heading, "technologies") && !strings.HasPrefix(trimmed, "###")
			continue
		}
		if !inSection {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			if item := strings.TrimSpace(trimmed[2:]); item != "" {
				techs = append(techs, item)
			}
		}
	}
	return techs
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
