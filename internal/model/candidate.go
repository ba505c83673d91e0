package model

import "time"

// Candidate is a durable candidate profile assembled from a resume
// attachment and its carrying email. Name is never empty; Email is the
// best-effort dedup key (at most one candidate per distinct address,
// enforced by a pre-insert lookup rather than a storage constraint).
type Candidate struct {
	ID            int64
	Name          string
	Email         string
	Phone         string
	Location      string
	Titles        []string
	Skills        []string
	YearsExp      *float64
	ResumePath    string
	SourceMessage string // opaque id of the message the resume arrived on
	Notes         string
	Tags          []string
	CreatedAt     time.Time
}

// ExtractedProfile is the transient output of one extraction pass,
// produced independently from resume text and from email text before
// merging.
type ExtractedProfile struct {
	Name      string
	Email     string
	Phone     string
	Skills    []string
	Titles    []string
	Locations []string
	YearsExp  *int
}

// EmailMetadata holds candidate hints recovered from an email body and
// subject line. Every field is best-effort; empty means no pattern matched.
type EmailMetadata struct {
	Name        string
	Email       string
	Phone       string
	Location    string
	RoleApplied string
}
