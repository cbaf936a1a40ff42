package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pixelkit/bgremover/internal/config"
	"github.com/pixelkit/bgremover/pkg/errors"
	"github.com/pixelkit/bgremover/pkg/remote"
	"github.com/pixelkit/bgremover/pkg/security"
	"github.com/pixelkit/bgremover/pkg/session"
	"github.com/pixelkit/bgremover/pkg/storage"
)

// loadConfig loads and validates configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// newProcessor picks the processing service client or the simulator
func newProcessor(cfg *config.Config) remote.Processor {
	if cfg.Simulate {
		delay := cfg.SimulateDelay
		if delay == 0 {
			delay = remote.DefaultSimulateDelay
		}
		return remote.NewSimulator(delay)
	}
	return remote.NewClient(cfg.ServiceURL, nil)
}

// newSaver returns the S3 saver when a bucket is configured, the local one otherwise
func newSaver(ctx context.Context, cfg *config.Config) (session.Saver, error) {
	if cfg.S3Bucket == "" {
		return storage.NewFileSaver(cfg.OutputDir), nil
	}

	client, err := storage.NewClient(ctx, storage.S3Options{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Prefix:    cfg.S3Prefix,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	return client, nil
}

// sessionFactory builds sessions sharing one processor and validator
func sessionFactory(cfg *config.Config, notifier session.Notifier) func() *session.Session {
	proc := newProcessor(cfg)
	validator := security.NewValidator(cfg.MaxFileSize)
	return func() *session.Session {
		return session.New(proc, validator, notifier)
	}
}

// stderrNotifier prints notices for a terminal user
func stderrNotifier(w io.Writer) session.Notifier {
	return session.NotifierFunc(func(err error) {
		fmt.Fprintf(w, "⚠️  %s\n", session.Notice(err))
	})
}

// fsmDir returns the FSM database directory and a cleanup func. Without a
// configured path the directory is temporary and removed on cleanup.
func fsmDir(path string) (string, func(), error) {
	if path != "" {
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", nil, errors.Wrap(err, "failed to create FSM directory")
		}
		return path, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "bgremover-fsm-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create FSM directory")
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
