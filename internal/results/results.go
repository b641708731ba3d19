// Package results persists run reports to SQLite and serves them back to the
// dashboard, batch by batch.
package results

import (
	"context"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"codeberg.org/mutker/sigjitter/internal/report"
)

type service struct {
	repo Repository
	cfg  Config
	log  logger.Logger
}

// No-op implementation
type noopStore struct{}

func NewService(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If results are disabled, return a no-op store
	if !cfg.Enabled {
		log.Debug().Msg("Results storage disabled, using no-op store")
		return &noopStore{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create results repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Results service initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
		log:  log,
	}, nil
}

func (s *service) Record(ctx context.Context, r *report.RunReport) error {
	errFactory := errors.New()

	if r == nil {
		return errFactory.New(ErrInvalidReport)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Insert(ctx, r); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Batches(ctx context.Context) ([]Batch, error) {
	return s.repo.Batches(ctx)
}

func (s *service) Runs(ctx context.Context, uuid string) ([]*report.RunReport, error) {
	return s.repo.Runs(ctx, uuid)
}

func (s *service) Run(ctx context.Context, uuid, name string) (*report.RunReport, error) {
	return s.repo.Run(ctx, uuid, name)
}

func (*service) IsEnabled() bool {
	return true
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	return nil
}

// No-op implementation
func (*noopStore) Record(_ context.Context, _ *report.RunReport) error {
	return nil
}

func (*noopStore) Batches(_ context.Context) ([]Batch, error) {
	return nil, nil
}

func (*noopStore) Runs(_ context.Context, _ string) ([]*report.RunReport, error) {
	return nil, nil
}

func (*noopStore) Run(_ context.Context, uuid, name string) (*report.RunReport, error) {
	return nil, errors.New().WithData(ErrRunNotFound, struct {
		UUID string
		Name string
	}{
		UUID: uuid,
		Name: name,
	})
}

func (*noopStore) IsEnabled() bool {
	return false
}

func (*noopStore) Close() error {
	return nil
}
