package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/domain/authenticity"
	"github.com/okian/listenproof/internal/domain/identity"
	"github.com/okian/listenproof/internal/domain/ledger"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/ownership"
	"github.com/okian/listenproof/internal/domain/proof"
	"github.com/okian/listenproof/internal/domain/quality"
	"github.com/okian/listenproof/internal/domain/scoring"
	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// DefaultRunTimeout bounds one run end to end.
const DefaultRunTimeout = 2 * time.Minute

// OwnershipVerifier checks that a credential belongs to the claimed account.
type OwnershipVerifier interface {
	Verify(ctx context.Context, claimedAccountID string, cred model.Credential) (ownership.Result, error)
}

// AuthenticityVerifier reconciles a contribution against the provider.
type AuthenticityVerifier interface {
	Verify(ctx context.Context, c model.Contribution, cred model.Credential) (authenticity.Result, error)
}

// Exporter uploads a sealed copy of the contribution.
type Exporter interface {
	Export(ctx context.Context, raw []byte, fileID int64, fileURL string) (model.FileInfo, error)
}

// Run carries the per-run settings.
type Run struct {
	Metadata model.RunMetadata
	FileURL  string
	// Key identifies the run for idempotent ledger commits.
	Key string
}

// RunKey derives the idempotency key of a run: job/file when the host
// supplied a job id, otherwise a fresh random key.
func RunKey(jobID string, fileID int64) string {
	if jobID == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s/%d", jobID, fileID)
}

// Pipeline runs one contribution through every stage in order.
type Pipeline struct {
	ownership    OwnershipVerifier
	authenticity AuthenticityVerifier
	scorer       *scoring.Scorer
	ledger       *ledger.Ledger
	exporter     Exporter
	basis        proof.Basis
	timeout      time.Duration
	log          logger.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithExporter enables the sealed export for valid runs.
func WithExporter(e Exporter) PipelineOption {
	return func(p *Pipeline) { p.exporter = e }
}

// WithScoreBasis selects the points the score is derived from.
func WithScoreBasis(b proof.Basis) PipelineOption {
	return func(p *Pipeline) {
		if b != "" {
			p.basis = b
		}
	}
}

// WithRunTimeout sets the per-run deadline.
func WithRunTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPipeline wires the stages together.
func NewPipeline(own OwnershipVerifier, auth AuthenticityVerifier, scorer *scoring.Scorer, l *ledger.Ledger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		ownership:    own,
		authenticity: auth,
		scorer:       scorer,
		ledger:       l,
		basis:        proof.BasisTotal,
		timeout:      DefaultRunTimeout,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run produces the proof for one submission. A returned error is fatal and
// means no proof exists; failed checks produce an invalid proof instead.
// The ledger is committed only for valid proofs.
func (p *Pipeline) Run(ctx context.Context, sub input.Submission, run Run) (model.ProofResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.run(ctx, sub, run)
	elapsed := float64(time.Since(start).Milliseconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrRunTimeout, err)
		}
		metrics.RecordRun(metrics.OutcomeFatal, elapsed)
		metrics.RecordErrorByType(Kind(err), "fatal")
		p.log.Error(ctx, "run failed", logger.String("kind", Kind(err)), logger.Error(err))
		return model.ProofResult{}, err
	}

	outcome := metrics.OutcomeValid
	if !res.Valid {
		outcome = metrics.OutcomeInvalid
	}
	metrics.RecordRun(outcome, elapsed)
	metrics.RecordScore(res.Score, res.Breakdown.TotalPoints, res.Breakdown.DifferentialPoints)
	p.log.Info(ctx, "run finished",
		logger.String("identity", res.Identity.Short()),
		logger.Bool("valid", res.Valid),
		logger.Float64("score", res.Score),
		logger.Int("total_points", res.Breakdown.TotalPoints),
		logger.Int("differential_points", res.Breakdown.DifferentialPoints),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, sub input.Submission, run Run) (model.ProofResult, error) {
	c := sub.Contribution

	id, err := identity.Hash(c.AccountID)
	if err != nil {
		return model.ProofResult{}, err
	}

	qm, err := quality.Assess(c)
	if err != nil {
		return model.ProofResult{}, err
	}
	metrics.RecordExcludedEvents(qm.ExcludedEvents)

	stage := time.Now()
	own, err := p.ownership.Verify(ctx, c.AccountID, c.Credential)
	metrics.RecordStageLatency("ownership", float64(time.Since(stage).Milliseconds()))
	if err != nil {
		return model.ProofResult{}, err
	}
	ownCheck := proof.Check{Score: own.Score, Passed: own.Score == 1, Failure: own.Reason}

	authCheck := proof.Check{
		Failure: fmt.Errorf("%w: not checked because ownership failed", model.ErrAuthenticityFailure),
	}
	if ownCheck.Passed {
		stage = time.Now()
		auth, err := p.authenticity.Verify(ctx, c, own.Credential)
		metrics.RecordStageLatency("authenticity", float64(time.Since(stage).Milliseconds()))
		switch {
		case errors.Is(err, model.ErrOwnershipFailure):
			ownCheck = proof.Check{Failure: err}
		case err != nil:
			return model.ProofResult{}, err
		default:
			authCheck = proof.Check{Score: auth.Score, Passed: auth.Validated, Failure: auth.Failure}
		}
	}
	if !ownCheck.Passed {
		metrics.RecordCheckFailure("ownership")
	}
	if !authCheck.Passed {
		metrics.RecordCheckFailure("authenticity")
	}

	meta := run.Metadata
	if ownCheck.Passed && authCheck.Passed && qm.DataValidated && p.exporter != nil && run.FileURL != "" {
		stage = time.Now()
		info, err := p.exporter.Export(ctx, sub.Raw, meta.FileID, run.FileURL)
		metrics.RecordStageLatency("export", float64(time.Since(stage).Milliseconds()))
		if err != nil {
			return model.ProofResult{}, fmt.Errorf("%w: %w", ErrExport, err)
		}
		meta.File = &info
	}

	var result model.ProofResult
	stage = time.Now()
	err = p.ledger.Session(ctx, id, func(ctx context.Context, s *ledger.Session) error {
		prior, err := s.Read(ctx)
		if err != nil {
			return err
		}
		result = proof.Assemble(proof.Inputs{
			Identity:     id,
			Authenticity: authCheck,
			Ownership:    ownCheck,
			Quality:      qm,
			QualityScore: quality.Score(qm),
			Breakdown:    p.scorer.Score(qm, prior.Entry.TotalPoints),
			Ledger:       prior.State(),
			Metadata:     meta,
			Basis:        p.basis,
		})
		if !result.Valid {
			return nil
		}
		_, err = s.Commit(ctx, model.ProofRecord{
			RunKey:       run.Key,
			FileID:       meta.FileID,
			FileURL:      run.FileURL,
			JobID:        meta.JobID,
			OwnerAddress: meta.OwnerAddress,
			TotalPoints:  result.Breakdown.TotalPoints,
			Score:        result.Score,
			Authenticity: result.Authenticity,
			Ownership:    result.Ownership,
			Quality:      result.Quality,
			Uniqueness:   result.Uniqueness,
		})
		return err
	})
	metrics.RecordStageLatency("ledger", float64(time.Since(stage).Milliseconds()))
	if err != nil {
		return model.ProofResult{}, err
	}
	return result, nil
}
