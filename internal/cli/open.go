package cli

import (
	"context"

	"github.com/twinview/twinview/internal/config"
	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/litekv"
	"github.com/twinview/twinview/internal/natskv"
)

// session bundles an open backend with its profile.
type session struct {
	cfg   config.Config
	store kv.Store
}

// openSession loads the profile and connects the backend it names.
func openSession(opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.Profile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load profile", err)
	}

	var store kv.Store
	if cfg.IsLocal() {
		store, err = litekv.Open(cfg.LocalPath())
	} else {
		store, err = natskv.Connect(cfg.URL)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open backend", err)
	}

	return &session{cfg: cfg, store: store}, nil
}

func (s *session) close() {
	s.store.Close()
}

// opCtx returns a context bounded by the profile timeout.
// Expired operations fail; there is no automatic retry.
func (s *session) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Timeout)
}

// bucketName resolves the bucket, preferring the command flag over the
// profile.
func (s *session) bucketName(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if s.cfg.Bucket != "" {
		return s.cfg.Bucket, nil
	}
	return "", NewExitError(ExitCommandError, "no bucket configured: set --bucket or the profile's bucket field")
}
