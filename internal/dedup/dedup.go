// Package dedup clusters candidate records that look like the same
// person. Detection is advisory: it flags, never merges or deletes.
package dedup

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tdvo/mailscreen/internal/model"
)

var nonLetterRe = regexp.MustCompile(`[^a-z\s]`)

// normalizeName lowercases a name and strips everything that is not a
// letter or space.
func normalizeName(name string) string {
	lower := strings.ToLower(name)
	return strings.TrimSpace(nonLetterRe.ReplaceAllString(lower, ""))
}

func emailDomain(email string) string {
	_, domain, ok := strings.Cut(strings.ToLower(email), "@")
	if !ok {
		return ""
	}
	return domain
}

func wordSet(name string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(name) {
		set[w] = true
	}
	return set
}

// jaccard is |intersection| / |union| of two non-empty word sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func isSubset(a, b map[string]bool) bool {
	if len(a) == 0 {
		return false
	}
	for w := range a {
		if !b[w] {
			return false
		}
	}
	return true
}

func firstWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// linked reports whether two candidates look like the same person:
// equal non-empty normalized names, equal emails, or a shared email
// domain with sufficiently similar names.
func linked(a, b *model.Candidate) bool {
	nameA := normalizeName(a.Name)
	nameB := normalizeName(b.Name)
	if nameA != "" && nameA == nameB {
		return true
	}

	if a.Email != "" && strings.EqualFold(a.Email, b.Email) {
		return true
	}

	domA := emailDomain(a.Email)
	domB := emailDomain(b.Email)
	if domA == "" || domA != domB {
		return false
	}

	setA := wordSet(nameA)
	setB := wordSet(nameB)
	if jaccard(setA, setB) > 0.5 {
		return true
	}
	if isSubset(setA, setB) || isSubset(setB, setA) {
		return true
	}
	fwA := firstWord(nameA)
	return fwA != "" && fwA == firstWord(nameB)
}

// unionFind is a disjoint-set structure with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// Flagged is one candidate annotated with its cluster verdict.
type Flagged struct {
	Candidate   model.Candidate
	IsDuplicate bool
	// CanonicalID is the earliest-created member of the candidate's
	// cluster, equal to the candidate's own id when not a duplicate.
	CanonicalID int64
}

// Detect clusters candidates by pairwise linkage, scanning in
// ascending creation order. Within each cluster the earliest-created
// member is canonical; the result is presented in descending creation
// order.
func Detect(candidates []model.Candidate) []Flagged {
	ordered := make([]model.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	uf := newUnionFind(len(ordered))
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if linked(&ordered[i], &ordered[j]) {
				uf.union(i, j)
			}
		}
	}

	// The scan order is ascending creation, so the first member seen
	// per root is the earliest-created.
	canonical := make(map[int]int64)
	for i := range ordered {
		root := uf.find(i)
		if _, ok := canonical[root]; !ok {
			canonical[root] = ordered[i].ID
		}
	}

	out := make([]Flagged, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		canonID := canonical[uf.find(i)]
		out = append(out, Flagged{
			Candidate:   ordered[i],
			IsDuplicate: canonID != ordered[i].ID,
			CanonicalID: canonID,
		})
	}
	return out
}

// Groups returns only the multi-member clusters from a Detect pass,
// each listing its member ids with the canonical member first.
func Groups(candidates []model.Candidate) []model.DuplicateGroup {
	flagged := Detect(candidates)

	members := make(map[int64][]int64)
	for i := len(flagged) - 1; i >= 0; i-- {
		f := flagged[i]
		if f.IsDuplicate {
			members[f.CanonicalID] = append(members[f.CanonicalID], f.Candidate.ID)
		}
	}

	var groups []model.DuplicateGroup
	for i := len(flagged) - 1; i >= 0; i-- {
		f := flagged[i]
		dups, ok := members[f.Candidate.ID]
		if !ok || f.IsDuplicate {
			continue
		}
		groups = append(groups, model.DuplicateGroup{
			CanonicalID:  f.Candidate.ID,
			CandidateIDs: append([]int64{f.Candidate.ID}, dups...),
		})
	}
	return groups
}
