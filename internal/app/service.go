// Package service wires configuration, adapters and domain stages into a
// runnable proof job, used by both the one-shot command and the HTTP API.
package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/listenproof/internal/adapters/artifact"
	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/adapters/provider"
	"github.com/okian/listenproof/internal/adapters/repository"
	"github.com/okian/listenproof/internal/config"
	"github.com/okian/listenproof/internal/domain/authenticity"
	"github.com/okian/listenproof/internal/domain/ledger"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/ownership"
	"github.com/okian/listenproof/internal/domain/proof"
	"github.com/okian/listenproof/internal/domain/scoring"
	"github.com/okian/listenproof/internal/domain/types"
	"github.com/okian/listenproof/internal/resilience"
	"github.com/okian/listenproof/pkg/logger"
)

// Service owns the long-lived resources of the proof job.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Injected or built on Start
	store     repository.Store
	provider  provider.Provider
	refresher provider.Refresher
	uploader  artifact.Uploader
	now       func() time.Time

	pipeline *Pipeline
	ledger   *ledger.Ledger
	started  bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses store instead of opening the configured ledger driver.
func WithStore(store repository.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithProvider replaces the Spotify client.
func WithProvider(p provider.Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithRefresher replaces the OAuth refresher.
func WithRefresher(r provider.Refresher) Option {
	return func(s *Service) { s.refresher = r }
}

// WithUploader replaces the S3 uploader.
func WithUploader(u artifact.Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithClock overrides the clock used for expiry checks and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service for cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the ledger store and builds the pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg
	s.logger.Debug(ctx, "configuration", logger.Any("config", cfg.Redacted()))

	if s.store == nil {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		s.store = store
		s.logger.Info(ctx, "ledger store opened", logger.String("driver", cfg.LedgerDriver))
	}

	if s.provider == nil {
		s.provider = provider.NewClient(
			provider.WithBaseURL(cfg.ProviderBaseURL),
			provider.WithRateLimit(cfg.ProviderRateLimitRPS),
			provider.WithMaxPages(cfg.ProviderMaxPages),
			provider.WithLogger(s.logger.Named("provider")),
		)
	}
	if s.refresher == nil && cfg.ProviderClientID != "" {
		s.refresher = provider.NewOAuthRefresher(cfg.ProviderClientID, cfg.ProviderClientSecret, cfg.ProviderTokenURL, &http.Client{Timeout: 15 * time.Second})
	}

	policy := resilience.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
	}.Normalize()

	own := ownership.NewVerifier(s.provider, s.refresher,
		ownership.WithRetryPolicy(policy),
		ownership.WithClock(s.now),
		ownership.WithLogger(s.logger.Named("ownership")),
	)
	auth := authenticity.NewVerifier(s.provider,
		authenticity.WithThreshold(cfg.ConfirmThreshold),
		authenticity.WithTolerance(cfg.ClockSkew()),
		authenticity.WithRetryPolicy(policy),
		authenticity.WithLogger(s.logger.Named("authenticity")),
	)
	scorer := scoring.New(scoring.WithMaxPoints(cfg.MaxPoints))
	led := ledger.New(s.store,
		ledger.WithAttempts(cfg.LedgerCommitAttempts),
		ledger.WithClock(s.now),
		ledger.WithLogger(s.logger.Named("ledger")),
	)

	popts := []PipelineOption{
		WithScoreBasis(proof.Basis(cfg.ScoreBasis)),
		WithRunTimeout(cfg.RunTimeout()),
		WithPipelineLogger(s.logger.Named("pipeline")),
	}
	if cfg.ArtifactEnabled {
		if s.uploader == nil {
			up, err := artifact.NewS3Uploader(ctx, cfg.ArtifactS3Region)
			if err != nil {
				return err
			}
			s.uploader = up
		}
		popts = append(popts, WithExporter(artifact.NewExporter(s.uploader, cfg.ArtifactEncryptionKey,
			artifact.WithLogger(s.logger.Named("artifact")))))
	}
	s.pipeline = NewPipeline(own, auth, scorer, led, popts...)
	s.ledger = led

	s.started = true
	s.logger.Info(ctx, "proof service started",
		logger.Int64("dlp_id", cfg.DLPID),
		logger.String("score_basis", cfg.ScoreBasis),
		logger.Bool("artifact_enabled", cfg.ArtifactEnabled),
	)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.LedgerDriver {
	case config.LedgerMemory:
		return repository.NewMemoryStore(), nil
	case config.LedgerSQLite:
		return repository.OpenSQLite(ctx, cfg.LedgerDSN)
	case config.LedgerPostgres:
		return repository.OpenPostgres(ctx, cfg.LedgerDSN)
	default:
		return nil, fmt.Errorf("%w: ledger driver %q", config.ErrInvalidConfig, cfg.LedgerDriver)
	}
}

// Stop releases the ledger store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing ledger store", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(context.Background(), "proof service stopped")
}

// Prove runs one submission and returns its output document. jobID and
// fileID override the configured values when set.
func (s *Service) Prove(ctx context.Context, sub input.Submission, jobID string, fileID int64) (types.ProofDocument, error) {
	s.mu.RLock()
	p, started := s.pipeline, s.started
	s.mu.RUnlock()
	if !started {
		return types.ProofDocument{}, ErrNotStarted
	}

	if jobID == "" {
		jobID = s.cfg.JobID
	}
	if fileID == 0 {
		fileID = s.cfg.FileID
	}
	run := Run{
		Metadata: model.RunMetadata{
			DLPID:        s.cfg.DLPID,
			FileID:       fileID,
			JobID:        jobID,
			OwnerAddress: s.cfg.OwnerAddress,
			Version:      s.cfg.Version,
		},
		FileURL: s.cfg.FileURL,
		Key:     RunKey(jobID, fileID),
	}

	res, err := p.Run(ctx, sub, run)
	if err != nil {
		return types.ProofDocument{}, err
	}
	return proof.Document(res), nil
}

// RunJob is the one-shot job: read the contribution from the input
// directory, prove it and write results.json to the output directory.
func (s *Service) RunJob(ctx context.Context) (types.ProofDocument, error) {
	sub, err := input.Load(s.cfg.InputDir, model.Credential{
		AccessToken:  s.cfg.AccessToken,
		RefreshToken: s.cfg.RefreshToken,
	})
	if err != nil {
		return types.ProofDocument{}, err
	}

	doc, err := s.Prove(ctx, sub, "", 0)
	if err != nil {
		return types.ProofDocument{}, err
	}
	path, err := WriteResults(s.cfg.OutputDir, doc)
	if err != nil {
		return types.ProofDocument{}, err
	}
	s.logger.Info(ctx, "proof written", logger.String("path", path), logger.Bool("valid", doc.Valid))
	return doc, nil
}

// Lookup returns the ledger entry recorded for identity.
func (s *Service) Lookup(ctx context.Context, identity model.HashedIdentity) (model.LedgerEntry, bool, error) {
	s.mu.RLock()
	l, started := s.ledger, s.started
	s.mu.RUnlock()
	if !started {
		return model.LedgerEntry{}, false, ErrNotStarted
	}
	prior, err := l.Lookup(ctx, identity)
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	return prior.Entry, prior.Exists, nil
}

// ErrorKind classifies err for API callers.
func (s *Service) ErrorKind(err error) string { return Kind(err) }
