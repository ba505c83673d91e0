package match

import (
	"context"
	"testing"

	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/model"
	"github.com/tdvo/mailscreen/internal/store"
	"github.com/tdvo/mailscreen/tests/testutil"
)

func seedMatchFixture(t *testing.T, s store.Store) (jobID int64, strongID, weakID int64) {
	t.Helper()
	ctx := context.Background()

	years := 8.0
	strong := &model.Candidate{
		Name:     "Strong Fit",
		Email:    "strong@example.com",
		Skills:   []string{"python", "sql"},
		YearsExp: &years,
		Location: "Austin, TX",
		Titles:   []string{"Data Engineer"},
	}
	weak := &model.Candidate{
		Name:  "Weak Fit",
		Email: "weak@example.com",
	}
	for _, c := range []*model.Candidate{strong, weak} {
		if err := s.CreateCandidate(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	job := &model.JobRequisition{
		Title:          "Senior Data Engineer",
		RequiredSkills: []string{"python", "sql"},
		MinExp:         5,
		Location:       "Austin, TX",
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	return job.ID, strong.ID, weak.ID
}

func TestRunRanksAndPersists(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	jobID, strongID, weakID := seedMatchFixture(t, s)

	ranked, err := Run(ctx, s, jobID, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked %d, want 2", len(ranked))
	}
	if ranked[0].Candidate.ID != strongID || ranked[1].Candidate.ID != weakID {
		t.Errorf("order = %d, %d", ranked[0].Candidate.ID, ranked[1].Candidate.ID)
	}
	if ranked[0].Result.Score <= ranked[1].Result.Score {
		t.Errorf("scores not descending: %v, %v", ranked[0].Result.Score, ranked[1].Result.Score)
	}
	if ranked[0].Result.FitLevel != model.FitHigh {
		t.Errorf("top fit = %q", ranked[0].Result.FitLevel)
	}

	stored, err := s.GetMatchesForJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d rows, want one per candidate", len(stored))
	}
	if stored[0].Score != ranked[0].Result.Score {
		t.Errorf("stored top score %v != returned %v", stored[0].Score, ranked[0].Result.Score)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	jobID, _, _ := seedMatchFixture(t, s)

	first, err := Run(ctx, s, jobID, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Run(ctx, s, jobID, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("rerun changed result count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Result.Score != second[i].Result.Score ||
			first[i].Candidate.ID != second[i].Candidate.ID {
			t.Errorf("rerun diverged at %d: %+v vs %+v", i, first[i].Result, second[i].Result)
		}
	}

	stored, err := s.GetMatchesForJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d rows after rerun, want 2 (replaced, not accumulated)", len(stored))
	}
}

func TestRunMissingJob(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := Run(context.Background(), s, 999, nil)
	if !mailbox.IsNotFound(err) {
		t.Errorf("error = %v, want NotFoundError", err)
	}
}

func TestRunNoCandidates(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	job := &model.JobRequisition{Title: "Anything"}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(ctx, s, job.ID, nil); err == nil {
		t.Error("expected error with no stored candidates")
	}
}
