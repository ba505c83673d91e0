// Package match scores candidate profiles against job requisitions.
//
// Rubric (100 pts max):
//
//	Skill overlap   50 pts  -  (matched / required) * 50
//	Experience      20 pts  -  full if candidate years meet the minimum
//	Location        15 pts  -  full if remote-eligible or locations overlap
//	Title           15 pts  -  full if any candidate title appears in job title
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tdvo/mailscreen/internal/model"
)

// Score rates one candidate against one job: four independently capped
// sub-scores, each contributing reason text, summed and capped at 100.
func Score(cand *model.Candidate, job *model.JobRequisition) (float64, []string, model.FitLevel) {
	var reasons []string
	var score float64

	candSkills := lowerSet(cand.Skills)
	jobSkills := lowerSet(job.RequiredSkills)

	if len(jobSkills) > 0 {
		matched := intersect(candSkills, jobSkills)
		missing := subtract(jobSkills, candSkills)
		skillScore := round1(float64(len(matched)) / float64(len(jobSkills)) * 50)
		score += skillScore
		if len(matched) > 0 {
			reasons = append(reasons, fmt.Sprintf("Skills matched (%d/%d): %s",
				len(matched), len(jobSkills), strings.Join(sortedSlice(matched), ", ")))
		}
		if len(missing) > 0 {
			reasons = append(reasons, fmt.Sprintf("Skills missing (%d): %s",
				len(missing), strings.Join(sortedSlice(missing), ", ")))
		}
	} else {
		score += 25
		reasons = append(reasons, "No specific skills required — partial credit")
	}

	candExp := 0.0
	if cand.YearsExp != nil {
		candExp = *cand.YearsExp
	}
	if job.MinExp > 0 {
		if candExp >= job.MinExp {
			score += 20
			reasons = append(reasons, fmt.Sprintf("Experience %.0fy meets requirement (%.0fy)",
				candExp, job.MinExp))
		} else {
			reasons = append(reasons, fmt.Sprintf("Experience %.0fy is %.0fy short of requirement (%.0fy)",
				candExp, job.MinExp-candExp, job.MinExp))
		}
	} else {
		score += 20
		reasons = append(reasons, "No minimum experience required")
	}

	candLoc := strings.ToLower(cand.Location)
	jobLoc := strings.ToLower(job.Location)
	switch {
	case job.RemoteOK:
		score += 15
		reasons = append(reasons, "Remote OK — location flexible")
	case jobLoc != "" && candLoc != "":
		if tokensOverlap(jobLoc, candLoc) {
			score += 15
			reasons = append(reasons, "Location match: "+cand.Location)
		} else {
			reasons = append(reasons, fmt.Sprintf("Location mismatch: %s vs %s",
				cand.Location, job.Location))
		}
	case jobLoc == "":
		score += 15
		reasons = append(reasons, "No location requirement")
	default:
		reasons = append(reasons, "Candidate location unknown")
	}

	jobTitle := strings.ToLower(job.Title)
	switch {
	case jobTitle != "" && len(cand.Titles) > 0:
		hit := ""
		for _, t := range cand.Titles {
			if strings.Contains(jobTitle, strings.ToLower(t)) {
				hit = strings.ToLower(t)
				break
			}
		}
		if hit != "" {
			score += 15
			reasons = append(reasons, "Title match: "+hit)
		} else {
			shown := cand.Titles
			if len(shown) > 3 {
				shown = shown[:3]
			}
			reasons = append(reasons, fmt.Sprintf("Title mismatch: candidate titles [%s] not found in %q",
				strings.Join(lowerSlice(shown), ", "), job.Title))
		}
	case jobTitle == "":
		score += 15
	default:
		reasons = append(reasons, "Candidate has no titles on file")
	}

	score = math.Min(round1(score), 100.0)
	return score, reasons, model.FitLevelForScore(score)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func lowerSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[strings.ToLower(s)] = true
	}
	return set
}

func lowerSlice(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.ToLower(s)
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for s := range a {
		if b[s] {
			out[s] = true
		}
	}
	return out
}

func subtract(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for s := range a {
		if !b[s] {
			out[s] = true
		}
	}
	return out
}

func sortedSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func tokensOverlap(a, b string) bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(strings.ReplaceAll(a, ",", " ")) {
		tokens[t] = true
	}
	for _, t := range strings.Fields(strings.ReplaceAll(b, ",", " ")) {
		if tokens[t] {
			return true
		}
	}
	return false
}
