// Package ingest runs the attachment-to-candidate pipeline: document
// text extraction, entity and email-metadata extraction, profile
// merge, email dedup, and persistence.
package ingest

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/extract"
	"github.com/tdvo/mailscreen/internal/model"
	"github.com/tdvo/mailscreen/internal/store"
)

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
}

// EmailContext carries the fields of the email the attachment arrived
// on that feed extraction.
type EmailContext struct {
	// MessageID is the opaque id of the carrying message.
	MessageID string
	Body      string
	Sender    string
	Subject   string
}

// Pipeline ingests saved resume attachments into candidate records.
type Pipeline struct {
	store  store.Store
	logger *zap.Logger
}

// New creates an ingestion pipeline on the given store.
func New(st store.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: st, logger: logger}
}

// ProcessAttachment runs the full chain for one saved attachment file.
// It returns (nil, nil) when the file is unsupported or the candidate
// already exists; each stage is individually guarded so one malformed
// document never aborts a batch.
func (p *Pipeline) ProcessAttachment(ctx context.Context, path string, email EmailContext) (*model.Candidate, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		p.logger.Info("skipping unsupported file type", zap.String("ext", ext))
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("attachment file not found: %w", err)
	}

	rawText := extract.DocumentText(path, p.logger)
	if strings.TrimSpace(rawText) == "" {
		p.logger.Warn("no text extracted from document", zap.String("path", path))
	}

	resume := extract.Entities(rawText)

	emailMeta := extract.EmailMetadata(email.Body)

	// Header sender address is the fallback email.
	if emailMeta.Email == "" && email.Sender != "" {
		emailMeta.Email = strings.ToLower(strings.TrimSpace(email.Sender))
	}

	// Forwarded-subject heuristics can supply a name and an extra title.
	if email.Subject != "" {
		if name := extract.NameFromSubject(email.Subject); name != "" &&
			resume.Name == "" && emailMeta.Name == "" {
			emailMeta.Name = name
		}
		if title := extract.TitleFromSubject(email.Subject); title != "" {
			if !containsFold(resume.Titles, title) {
				resume.Titles = append(resume.Titles, title)
			}
		}
	}

	cand := extract.MergeProfile(resume, emailMeta)
	cand.ResumePath = path
	cand.SourceMessage = email.MessageID

	// At most one candidate per distinct email address.
	if cand.Email != "" {
		existing, err := p.store.GetCandidateByEmail(ctx, cand.Email)
		if err != nil {
			p.logger.Error("dedup lookup failed", zap.String("email", cand.Email), zap.Error(err))
		} else if existing != nil {
			p.logger.Info("duplicate candidate, skipping",
				zap.Int64("id", existing.ID), zap.String("email", cand.Email))
			return nil, nil
		}
	}

	// Name is required; fall back to the email local part, then "Unknown".
	if cand.Name == "" {
		cand.Name = nameFromEmail(cand.Email)
	}
	if cand.Name == "" {
		cand.Name = "Unknown"
	}

	if err := p.store.CreateCandidate(ctx, cand); err != nil {
		return nil, fmt.Errorf("saving candidate: %w", err)
	}
	p.logger.Info("saved candidate",
		zap.Int64("id", cand.ID), zap.String("name", cand.Name))

	p.notify(ctx, cand)

	return cand, nil
}

// notify records a new-candidate notification and, when the candidate
// covers at least 75% of any job's required skills, a high-fit one.
// Notification failures are logged, never returned.
func (p *Pipeline) notify(ctx context.Context, cand *model.Candidate) {
	err := p.store.CreateNotification(ctx, model.Notification{
		Type:        model.NotificationNewCandidate,
		Title:       "New Candidate",
		Message:     fmt.Sprintf("%s added from email", cand.Name),
		CandidateID: cand.ID,
	})
	if err != nil {
		p.logger.Error("creating notification failed", zap.Error(err))
	}

	if len(cand.Skills) == 0 {
		return
	}
	candSkills := make(map[string]bool, len(cand.Skills))
	for _, s := range cand.Skills {
		candSkills[strings.ToLower(s)] = true
	}

	jobs, err := p.store.GetJobs(ctx)
	if err != nil {
		p.logger.Error("listing jobs for fit check failed", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if len(job.RequiredSkills) == 0 {
			continue
		}
		overlap := 0
		for _, s := range job.RequiredSkills {
			if candSkills[strings.ToLower(s)] {
				overlap++
			}
		}
		score := int(math.Round(float64(overlap) / float64(len(job.RequiredSkills)) * 100))
		if score < 75 {
			continue
		}
		err := p.store.CreateNotification(ctx, model.Notification{
			Type:        model.NotificationNewHighFit,
			Title:       "High-Fit Match",
			Message:     fmt.Sprintf("%s matches %s (%d%%)", cand.Name, job.Title, score),
			CandidateID: cand.ID,
			JobID:       job.ID,
		})
		if err != nil {
			p.logger.Error("creating high-fit notification failed",
				zap.Int64("job_id", job.ID), zap.Error(err))
		}
	}
}

// nameFromEmail derives a display name from an address's local part as
// a last resort: "john.smith" becomes "John Smith".
func nameFromEmail(addr string) string {
	local, _, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return ""
	}
	local = strings.NewReplacer("_", ".", "-", ".").Replace(local)

	var parts []string
	for _, p := range strings.Split(local, ".") {
		if p == "" {
			continue
		}
		parts = append(parts, strings.ToUpper(p[:1])+strings.ToLower(p[1:]))
	}
	return strings.Join(parts, " ")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
