package extract

import (
	"strings"

	"github.com/tdvo/mailscreen/internal/model"
)

// MergeProfile combines a resume-derived profile with email metadata
// into one candidate shape. Scalars take the first non-empty value,
// resume before email. Location prefers the resume's joined location
// list over the email's single string. The applied-for role from the
// email supplements the resume's titles when not already present
// case-insensitively. Skills and years of experience come from the
// resume side only.
func MergeProfile(resume *model.ExtractedProfile, email *model.EmailMetadata) *model.Candidate {
	if resume == nil {
		resume = &model.ExtractedProfile{}
	}
	if email == nil {
		email = &model.EmailMetadata{}
	}

	cand := &model.Candidate{
		Name:   firstNonEmpty(resume.Name, email.Name),
		Email:  firstNonEmpty(resume.Email, email.Email),
		Phone:  firstNonEmpty(resume.Phone, email.Phone),
		Skills: resume.Skills,
	}

	if len(resume.Locations) > 0 {
		cand.Location = strings.Join(resume.Locations, ", ")
	} else {
		cand.Location = email.Location
	}

	titles := make([]string, len(resume.Titles))
	copy(titles, resume.Titles)
	if email.RoleApplied != "" && !containsFold(titles, email.RoleApplied) {
		titles = append(titles, email.RoleApplied)
	}
	cand.Titles = titles

	if resume.YearsExp != nil {
		years := float64(*resume.YearsExp)
		cand.YearsExp = &years
	}

	return cand
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
