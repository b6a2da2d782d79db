// Package app wires configuration, logging, the session store and the API client.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bunchhieng/travelog/internal/api"
	"github.com/bunchhieng/travelog/internal/config"
	"github.com/bunchhieng/travelog/internal/editor"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/bunchhieng/travelog/internal/storage"
	"github.com/sirupsen/logrus"
)

// App holds the long-lived dependencies of one tl invocation.
type App struct {
	Config  config.Config
	Log     *logrus.Logger
	Storage storage.Storage
	Client  *api.Client

	logFile io.Closer
}

// New loads configuration from cfgPath (or the default location) and opens
// the session store. Close must be called when done.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds an App from an already loaded configuration.
func NewWithConfig(cfg config.Config) (*App, error) {
	log, closer, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	s, err := NewStorage(cfg.Database.Path)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Storage: s,
		logFile: closer,
	}
	a.Client = api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(log.WithField("component", "api")),
	)
	return a, nil
}

// Authenticate loads the bearer token into the client. A token from the
// configuration wins over the stored session.
func (a *App) Authenticate(ctx context.Context) error {
	if a.Config.API.Token != "" {
		a.Client.SetToken(a.Config.API.Token)
		return nil
	}
	session, err := a.Storage.LoadSession(ctx)
	if err != nil {
		return err
	}
	a.Client.SetToken(session.Token)
	return nil
}

// HandleUnauthorized wipes local session state after the backend rejected
// the token, and returns an error telling the user how to log in again.
func (a *App) HandleUnauthorized(ctx context.Context, err error) error {
	if !errors.Is(err, model.ErrUnauthorized) {
		return err
	}
	if cerr := a.Storage.Clear(ctx); cerr != nil {
		a.Log.WithError(cerr).Error("clear session")
	}
	return fmt.Errorf("session expired, run 'tl login' again: %w", err)
}

// EditorOptions are the configured options for every editor the app opens.
func (a *App) EditorOptions() []editor.Option {
	return []editor.Option{
		editor.WithImageRetries(a.Config.Editor.ImageRetry, a.Config.Editor.ImageRetryDelay),
	}
}

// Close releases the session store and the log file.
func (a *App) Close() error {
	err := a.Storage.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// DefaultDBPath returns the default database path using the platform's config directory.
func DefaultDBPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.db"), nil
}

// NewStorage creates a new storage instance, using the default path if dbPath is empty.
func NewStorage(dbPath string) (storage.Storage, error) {
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return storage.NewSQLiteStorage(dbPath)
}

// NewLogger builds a logger from cfg. When cfg.File is set the log goes to
// that file and the returned closer must be closed.
func NewLogger(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)

	if cfg.File == "" {
		return log, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log, f, nil
}
