package match

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/model"
	"github.com/tdvo/mailscreen/internal/store"
)

// RankedMatch pairs a persisted match result with its candidate for
// presentation.
type RankedMatch struct {
	Candidate model.Candidate
	Result    model.MatchResult
}

// Run scores every stored candidate against the job, replaces the
// job's prior results in one transaction, and returns the fresh
// results ranked by descending score. Ties keep candidate enumeration
// order.
func Run(ctx context.Context, st store.Store, jobID int64, logger *zap.Logger) ([]RankedMatch, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	job, err := st.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	candidates, err := st.GetCandidates(ctx, store.CandidateFilter{})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no candidates to match")
	}

	results := make([]model.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		score, reasons, fit := Score(&c, job)
		results = append(results, model.MatchResult{
			JobID:       jobID,
			CandidateID: c.ID,
			Score:       score,
			Reasons:     reasons,
			FitLevel:    fit,
		})
	}

	if err := st.ReplaceMatchesForJob(ctx, jobID, results); err != nil {
		return nil, err
	}

	ranked := make([]RankedMatch, len(candidates))
	for i := range candidates {
		ranked[i] = RankedMatch{Candidate: candidates[i], Result: results[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Score > ranked[j].Result.Score
	})

	logger.Info("matched candidates against job",
		zap.Int("candidates", len(ranked)),
		zap.Int64("job_id", jobID),
		zap.String("job_title", job.Title))

	return ranked, nil
}
