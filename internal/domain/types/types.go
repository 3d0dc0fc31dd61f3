// Package types contains the wire documents written by the application.
package types

import "time"

// ProofDocument is the results.json document of one run.
type ProofDocument struct {
	DLPID        int64      `json:"dlp_id"`
	Valid        bool       `json:"valid"`
	Score        float64    `json:"score"`
	Authenticity float64    `json:"authenticity"`
	Ownership    float64    `json:"ownership"`
	Quality      float64    `json:"quality"`
	Uniqueness   float64    `json:"uniqueness"`
	Attributes   Attributes `json:"attributes"`
	Metadata     Metadata   `json:"metadata"`
}

// Attributes carries the audit trail behind the scores.
type Attributes struct {
	AccountIDHash         string          `json:"account_id_hash"`
	TrackCount            int             `json:"track_count"`
	TotalMinutes          int64           `json:"total_minutes"`
	DataValidated         bool            `json:"data_validated"`
	ActivityPeriodDays    int             `json:"activity_period_days"`
	UniqueArtists         int             `json:"unique_artists"`
	ExcludedEvents        int             `json:"excluded_events"`
	PreviouslyContributed bool            `json:"previously_contributed"`
	PreviouslyRewarded    bool            `json:"previously_rewarded"`
	TimesRewarded         int             `json:"times_rewarded"`
	TotalPoints           int             `json:"total_points"`
	DifferentialPoints    int             `json:"differential_points"`
	PointsBreakdown       PointsBreakdown `json:"points_breakdown"`
	Reasons               []string        `json:"reasons,omitempty"`
}

// PointsBreakdown holds the per-tier points and their rationale.
type PointsBreakdown struct {
	VolumePoints    int    `json:"volume_points"`
	VolumeReason    string `json:"volume_reason"`
	DiversityPoints int    `json:"diversity_points"`
	DiversityReason string `json:"diversity_reason"`
	HistoryPoints   int    `json:"history_points"`
	HistoryReason   string `json:"history_reason"`
}

// Metadata echoes the run configuration.
type Metadata struct {
	DLPID        int64     `json:"dlp_id"`
	Version      string    `json:"version"`
	FileID       int64     `json:"file_id"`
	JobID        string    `json:"job_id"`
	OwnerAddress string    `json:"owner_address"`
	File         *FileMeta `json:"file,omitempty"`
}

// FileMeta describes the sealed export of the contribution.
type FileMeta struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Checksums Checksums `json:"checksums"`
}

// Checksums are hex SHA-256 digests.
type Checksums struct {
	Encrypted string `json:"encrypted"`
	Decrypted string `json:"decrypted"`
}

// ErrorResponse is returned by the HTTP API when a run cannot produce a proof.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// LedgerEntry is the public view of one identity's reward history.
type LedgerEntry struct {
	AccountIDHash string    `json:"account_id_hash"`
	TotalPoints   int       `json:"total_points"`
	TimesRewarded int       `json:"times_rewarded"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}
