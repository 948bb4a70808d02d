// Command portfolio-http starts the portfolio HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"portfolio/internal/auth"
	"portfolio/internal/config"
	"portfolio/internal/filecache"
	"portfolio/internal/github"
	"portfolio/internal/render"
	"portfolio/internal/server"
	"portfolio/internal/showcase"
	"portfolio/internal/store"
	"portfolio/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	gate, err := auth.NewGate(auth.Config{
		AdminCode:  cfg.AdminCode,
		SigningKey: []byte(cfg.SessionSecret),
		TTL:        cfg.SessionTTL,
		Secure:     cfg.Production(),
	})
	if err != nil {
		return err
	}

	deps := server.Deps{
		Projects: st,
		Gate:     gate,
		Limiter:  auth.NewLimiter(cfg.LoginPerMinute),
		Uploads:  uploads.NewService(cfg.UploadDir, st, logger),
		Renderer: render.New(uploads.URLPrefix),
		Logger:   logger,
	}

	ctx, stop := notifyContext()
	defer stop()

	if cfg.GitHubUsername != "" {
		client := github.New(cfg.GitHubAPIURL, cfg.GitHubToken, &http.Client{Timeout: cfg.UpstreamTimeout})
		snapshots := filecache.New(cfg.CacheDir, cfg.CacheTTL, filecache.WithLogger(logger))
		lists := filecache.New(filepath.Join(cfg.CacheDir, "lists"), cfg.CacheTTL, filecache.WithLogger(logger))
		fetcher := showcase.NewFetcher(cfg.GitHubUsername, client, snapshots, lists, logger)
		deps.Showcase = fetcher
		go fetcher.Run(ctx, cfg.RefreshInterval)
	} else {
		logger.Info("GITHUB_USERNAME not set; repository routes disabled")
	}
	if cfg.ScheduleToken == "" {
		logger.Info("SCHEDULE_TOKEN not set; scheduler hook disabled")
	}

	srv := server.New(server.Config{
		Production:    cfg.Production(),
		ScheduleToken: cfg.ScheduleToken,
		SiteTitle:     cfg.SiteTitle,
		SiteURL:       cfg.SiteURL,
		UploadDir:     cfg.UploadDir,
	}, deps)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("portfolio server listening", "addr", httpServer.Addr, "tls", cfg.TLS(), "env", cfg.Env)
		var err error
		if cfg.TLS() {
			err = httpServer.ServeTLS(ln, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdown(context.Background(), httpServer, 10*time.Second, logger)
	return nil
}
