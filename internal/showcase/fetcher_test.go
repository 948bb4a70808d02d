package showcase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portfolio/internal/apperr"
	"portfolio/internal/filecache"
	"portfolio/internal/github"
)

type fakeUpstream struct {
	repos      map[string]github.Repo
	readmes    map[string]string
	repoErr    error
	readmeErr  error
	repoCalls  atomic.Int32
	readmeHits atomic.Int32
	listCalls  atomic.Int32
	block      chan struct{} // when set, Repo waits for it to close
	started    chan struct{}
	startOnce  sync.Once
}

func (f *fakeUpstream) Repo(ctx context.Context, owner, name string) (github.Repo, error) {
	f.repoCalls.Add(1)
	if f.block != nil {
		f.startOnce.Do(func() { close(f.started) })
		<-f.block
	}
	if f.repoErr != nil {
		return github.Repo{}, f.repoErr
	}
	r, ok := f.repos[name]
	if !ok {
		return github.Repo{}, github.ErrNotFound
	}
	return r, nil
}

func (f *fakeUpstream) Readme(ctx context.Context, owner, name string) (string, error) {
	f.readmeHits.Add(1)
	if f.readmeErr != nil {
		return "", f.readmeErr
	}
	text, ok := f.readmes[name]
	if !ok {
		return "", github.ErrNotFound
	}
	return text, nil
}

func (f *fakeUpstream) UserRepos(ctx context.Context, user string) ([]github.Repo, error) {
	f.listCalls.Add(1)
	out := make([]github.Repo, 0, len(f.repos))
	for _, name := range []string{"portfolio", "dotfiles", "has.dot"} {
		if r, ok := f.repos[name]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func newUpstream() *fakeUpstream {
	return &fakeUpstream{
		repos: map[string]github.Repo{
			"portfolio": {
				Name:        "portfolio",
				Description: strPtr("personal site"),
				HTMLURL:     "https://github.com/octo/portfolio",
				Stars:       12,
				Language:    strPtr("Go"),
				Topics:      []string{"web"},
				UpdatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			},
			"dotfiles": {Name: "dotfiles", HTMLURL: "https://github.com/octo/dotfiles"},
		},
		readmes: map[string]string{
			"portfolio": "# portfolio\n\n## Technologies\n\n- Go\n- SQLite\n\n## License\n\nMIT\n",
		},
	}
}

func newTestFetcher(t *testing.T, up Upstream) (*Fetcher, *filecache.Cache) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	snaps := filecache.New(dir, time.Hour, filecache.WithLogger(logger))
	lists := filecache.New(filepath.Join(dir, "lists"), time.Hour, filecache.WithLogger(logger))
	return NewFetcher("octo", up, snaps, lists, logger), snaps
}

func TestFetchAssemblesAndCaches(t *testing.T) {
	up := newUpstream()
	f, cache := newTestFetcher(t, up)

	snap, err := f.Fetch(context.Background(), "portfolio")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if snap.Name != "portfolio" || snap.Stars != 12 || snap.Language != "Go" || snap.Description != "personal site" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !reflect.DeepEqual(snap.Technologies, []string{"Go", "SQLite"}) {
		t.Fatalf("unexpected technologies: %v", snap.Technologies)
	}

	var cached Snapshot
	if ok, _ := cache.Get("portfolio", &cached); !ok {
		t.Fatal("expected snapshot in cache")
	}

	again, err := f.Fetch(context.Background(), "portfolio")
	if err != nil {
		t.Fatalf("second Fetch error: %v", err)
	}
	if up.repoCalls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", up.repoCalls.Load())
	}
	if again.URL != snap.URL {
		t.Fatalf("cached snapshot differs: %+v", again)
	}
}

func TestFetchMissingReadmeUsesPlaceholder(t *testing.T) {
	f, _ := newTestFetcher(t, newUpstream())

	snap, err := f.Fetch(context.Background(), "dotfiles")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if snap.Readme != NoReadme {
		t.Fatalf("expected placeholder readme, got %q", snap.Readme)
	}
	if snap.Topics == nil || snap.Technologies == nil {
		t.Fatal("slices should encode as empty arrays")
	}
}

func TestFetchNotFoundIsDistinct(t *testing.T) {
	f, _ := newTestFetcher(t, newUpstream())

	_, err := f.Fetch(context.Background(), "nope")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if apperr.IsKind(err, apperr.KindUpstream) {
		t.Fatal("not found must not be reported as generic upstream failure")
	}
}

func TestFetchUpstreamFailure(t *testing.T) {
	up := newUpstream()
	up.repoErr = &github.StatusError{Code: 429, RateLimited: true}
	f, cache := newTestFetcher(t, up)

	_, err := f.Fetch(context.Background(), "portfolio")
	if !apperr.IsKind(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream kind, got %v", err)
	}
	if apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatal("rate limit must not look like not found")
	}
	var out Snapshot
	if ok, _ := cache.Get("portfolio", &out); ok {
		t.Fatal("failures must not be cached")
	}
}

func TestFetchReadmeFailurePropagates(t *testing.T) {
	up := newUpstream()
	up.readmeErr = errors.New("connection reset")
	f, _ := newTestFetcher(t, up)

	_, err := f.Fetch(context.Background(), "portfolio")
	if !apperr.IsKind(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream kind, got %v", err)
	}
}

func TestFetchRejectsInvalidSlug(t *testing.T) {
	up := newUpstream()
	f, _ := newTestFetcher(t, up)

	for _, slug := range []string{"../secret", "a b", "x.y", ""} {
		_, err := f.Fetch(context.Background(), slug)
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("Fetch(%q) error = %v, want validation", slug, err)
		}
	}
	if up.repoCalls.Load() != 0 || up.readmeHits.Load() != 0 {
		t.Fatal("invalid slugs must not reach upstream")
	}
}

func TestFetchCoalescesConcurrentMisses(t *testing.T) {
	up := newUpstream()
	up.block = make(chan struct{})
	up.started = make(chan struct{})
	f, _ := newTestFetcher(t, up)

	var wg sync.WaitGroup
	results := make(chan error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.Fetch(context.Background(), "portfolio")
		results <- err
	}()
	<-up.started

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), "portfolio")
			results <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(up.block)
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
	}
	if got := up.repoCalls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

func TestReposCached(t *testing.T) {
	up := newUpstream()
	f, _ := newTestFetcher(t, up)

	list, err := f.Repos(context.Background())
	if err != nil {
		t.Fatalf("Repos error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "portfolio" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if _, err := f.Repos(context.Background()); err != nil {
		t.Fatalf("Repos error: %v", err)
	}
	if up.listCalls.Load() != 1 {
		t.Fatalf("expected one list call, got %d", up.listCalls.Load())
	}
}

func TestRefreshOverwritesEntries(t *testing.T) {
	up := newUpstream()
	up.repos["has.dot"] = github.Repo{Name: "has.dot"}
	f, cache := newTestFetcher(t, up)

	if _, err := f.Fetch(context.Background(), "portfolio"); err != nil {
		t.Fatal(err)
	}
	r := up.repos["portfolio"]
	r.Stars = 99
	up.repos["portfolio"] = r

	res, err := f.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if res.Listed != 3 || res.Refreshed != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var snap Snapshot
	if ok, _ := cache.Get("portfolio", &snap); !ok || snap.Stars != 99 {
		t.Fatalf("expected refreshed snapshot, got ok=%v %+v", ok, snap)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	up := newUpstream()
	f, _ := newTestFetcher(t, up)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for up.listCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("refresh never ran")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestExtractTechnologies(t *testing.T) {
	cases := []struct {
		name   string
		readme string
		want   []string
	}{
		{"none", "# Title\n\nbody", []string{}},
		{"dash and star", "## Technologies\n\n- Go\n* Docker\nplain line\n", []string{"Go", "Docker"}},
		{"stops at next heading", "## technologies\n- A\n## Other\n- B\n", []string{"A"}},
		{"crlf", "## Technologies\r\n\r\n- Go\r\n", []string{"Go"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractTechnologies(tc.readme)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
