// Package app assembles the calendar components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/JamesPrial/visual-calendar/internal/config"
	"github.com/JamesPrial/visual-calendar/internal/logger"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/session"
	"github.com/JamesPrial/visual-calendar/internal/snapshot"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// Options controls Open.
type Options struct {
	// ProjectDir is where configuration is read and stores are kept.
	ProjectDir string

	// Prefix tags log lines with the binary name.
	Prefix string

	// Stderr receives console log output. Nil means os.Stderr.
	Stderr io.Writer
}

// App is a ready calendar session over the configured storage.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Repo   *repository.Repository
	Store  *session.Store

	closers []io.Closer
}

// Open loads configuration, opens storage and initializes the session.
// The caller must Close the returned App.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, logCloser, err := logger.New(logger.Config{
		Debug:  cfg.Debug,
		Dir:    cfg.LogDir,
		Prefix: opts.Prefix,
		Stderr: opts.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	a := &App{Config: cfg, Logger: l, closers: []io.Closer{logCloser}}

	engine, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	a.closers = append(a.closers, engine)
	l.Debug("storage opened", "backend", cfg.Storage.Backend, "quota", cfg.QuotaBytes)

	a.Repo = repository.New(engine,
		repository.WithLogger(l.WithPrefix("repository")),
		repository.WithRetention(cfg.Retention),
	)

	var producer snapshot.Producer = snapshot.Disabled{}
	if cfg.Snapshot.Enabled {
		chrome := snapshot.NewChromeProducer(snapshot.ChromeOptions{
			ExecPath: cfg.Snapshot.ChromePath,
			Timeout:  cfg.Snapshot.Timeout,
			Logger:   l.WithPrefix("snapshot"),
		})
		a.closers = append(a.closers, chrome)
		producer = chrome
	}

	a.Store = session.New(a.Repo,
		session.WithSnapshotProducer(producer),
		session.WithLogger(l.WithPrefix("session")),
	)
	if err := a.Store.Initialize(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize calendar storage: %w", err)
	}
	return a, nil
}

// Close releases storage, the browser and the log file, in reverse order
// of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
