package model

import "time"

// HashedIdentity is the one-way digest of a raw account identifier.
type HashedIdentity string

// String returns the digest.
func (h HashedIdentity) String() string { return string(h) }

// Short returns a log-friendly prefix of the digest.
func (h HashedIdentity) Short() string {
	const n = 12
	if len(h) <= n {
		return string(h)
	}
	return string(h[:n])
}

// LedgerEntry is the persisted reward state for one identity.
type LedgerEntry struct {
	Identity      HashedIdentity
	TotalPoints   int
	TimesRewarded int
	FirstSeen     time.Time
	LastSeen      time.Time
	LastRunKey    string
}

// ProofRecord is the audit row written alongside every committed ledger
// update. One exists per rewarded run.
type ProofRecord struct {
	RunKey       string
	Identity     HashedIdentity
	FileID       int64
	FileURL      string
	JobID        string
	OwnerAddress string
	TotalPoints  int
	Score        float64
	Authenticity float64
	Ownership    float64
	Quality      float64
	Uniqueness   float64
	CreatedAt    time.Time
}

// QualityMetrics is the read-only statistical snapshot of a contribution.
type QualityMetrics struct {
	TotalMinutes       int64
	UniqueArtistCount  int
	ActivityPeriodDays int
	TrackCount         int
	ExcludedEvents     int
	FirstListen        time.Time
	LastListen         time.Time
	DataValidated      bool
}

// TierResult is the outcome of one tier table lookup.
type TierResult struct {
	Points int
	Reason string
}

// ScoreBreakdown is the auditable result of scoring one contribution.
type ScoreBreakdown struct {
	Volume             TierResult
	Diversity          TierResult
	History            TierResult
	TotalPoints        int
	DifferentialPoints int
	NormalizedScore    float64
	// NormalizedDifferential is DifferentialPoints on the same [0,1] scale.
	NormalizedDifferential float64
}

// LedgerState summarises what the ledger knew about the identity for this run.
type LedgerState struct {
	PreviouslyContributed bool
	PreviouslyRewarded    bool
	PriorTotalPoints      int
	TimesRewarded         int
}

// Checksums holds SHA-256 digests of the exported contribution.
type Checksums struct {
	Encrypted string
	Decrypted string
}

// FileInfo describes the exported, encrypted copy of the contribution.
type FileInfo struct {
	ID        int64
	Source    string
	URL       string
	Checksums Checksums
}

// RunMetadata is copied verbatim into the proof.
type RunMetadata struct {
	DLPID        int64
	FileID       int64
	JobID        string
	OwnerAddress string
	Version      string
	File         *FileInfo
}

// ProofResult is the final artifact of one run. Build it once through
// proof.Assemble and do not modify it afterwards.
type ProofResult struct {
	Valid        bool
	Score        float64
	Authenticity float64
	Ownership    float64
	Quality      float64
	Uniqueness   float64

	Identity  HashedIdentity
	Metrics   QualityMetrics
	Ledger    LedgerState
	Breakdown ScoreBreakdown
	Metadata  RunMetadata

	// Reasons lists every failed check, in pipeline order.
	Reasons []string
}
