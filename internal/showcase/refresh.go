package showcase

import (
	"context"
	"time"

	"portfolio/internal/filecache"
)

// RefreshResult summarises one refresh pass.
type RefreshResult struct {
	Listed    int `json:"listed"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// Refresh re-fetches every repository of the owner and overwrites its cache
// entry, bypassing the read path. Individual repository failures are logged
// and skipped; only a failure to list repositories is returned.
func (f *Fetcher) Refresh(ctx context.Context) (RefreshResult, error) {
	list, err := f.listRepos(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	if err := f.lists.Put(reposKey, list); err != nil {
		f.logger.Warn("failed to cache repository list", "error", err)
	}

	res := RefreshResult{Listed: len(list)}
	for _, r := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !filecache.ValidKey(r.Name) {
			f.logger.Debug("refresh skipped repository with unsupported name", "slug", r.Name)
			continue
		}
		snap, err := f.load(ctx, r.Name)
		if err != nil {
			f.logger.Warn("refresh failed", "slug", r.Name, "error", err)
			res.Failed++
			continue
		}
		if err := f.cache.Put(r.Name, snap); err != nil {
			f.logger.Warn("refresh cache write failed", "slug", r.Name, "error", err)
			res.Failed++
			continue
		}
		res.Refreshed++
	}
	return res, nil
}

// Run refreshes immediately and then every interval until ctx is done.
// A non-positive interval disables the loop.
func (f *Fetcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		res, err := f.Refresh(ctx)
		if err != nil && ctx.Err() == nil {
			f.logger.Error("cache refresh failed", "error", err)
		} else if err == nil {
			f.logger.Info("cache refreshed",
				"listed", res.Listed,
				"refreshed", res.Refreshed,
				"failed", res.Failed,
				"lat_ms", time.Since(start).Milliseconds(),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
