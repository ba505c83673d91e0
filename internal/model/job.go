package model

import "time"

// JobRequisition is an open position that candidates are scored against.
type JobRequisition struct {
	ID             int64
	Title          string
	RequiredSkills []string
	MinExp         float64
	Location       string
	RemoteOK       bool
	RawText        string
	CreatedAt      time.Time
}

// FitLevel buckets a numeric match score.
type FitLevel string

const (
	FitHigh   FitLevel = "high"
	FitMedium FitLevel = "medium"
	FitLow    FitLevel = "low"
)

// FitLevelForScore maps a 0-100 score to its fit bucket.
func FitLevelForScore(score float64) FitLevel {
	switch {
	case score >= 75:
		return FitHigh
	case score >= 45:
		return FitMedium
	default:
		return FitLow
	}
}

// MatchResult is one scored candidate-to-job pairing. Re-running the
// matcher for a job replaces all of that job's rows atomically.
type MatchResult struct {
	ID          int64
	JobID       int64
	CandidateID int64
	Score       float64
	Reasons     []string
	FitLevel    FitLevel
}

// DuplicateGroup is a read-time cluster of candidate ids judged to be
// the same person. The earliest-created member is canonical.
type DuplicateGroup struct {
	CanonicalID  int64
	CandidateIDs []int64
}
