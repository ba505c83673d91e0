package extract

import (
	"testing"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestMatchSkillsMultiWordAndSubstring(t *testing.T) {
	p := Entities("Built services with Spring Boot and deployed on Kubernetes.")

	// The longest term matches first; its single-word substring is
	// still reported as its own vocabulary hit.
	if !contains(p.Skills, "spring boot") {
		t.Errorf("skills %v missing spring boot", p.Skills)
	}
	if !contains(p.Skills, "spring") {
		t.Errorf("skills %v missing spring", p.Skills)
	}
	if !contains(p.Skills, "kubernetes") {
		t.Errorf("skills %v missing kubernetes", p.Skills)
	}
}

func TestMatchSkillsPunctuatedTerms(t *testing.T) {
	p := Entities("Proficient in C++, C# and Node.js; some CI/CD work.")

	for _, want := range []string{"c++", "c#", "node.js", "ci/cd"} {
		if !contains(p.Skills, want) {
			t.Errorf("skills %v missing %q", p.Skills, want)
		}
	}
}

func TestMatchSkillsNoFalsePositiveInsideWords(t *testing.T) {
	p := Entities("I scored highly in the Carpentry exam.")
	if contains(p.Skills, "r") || contains(p.Skills, "go") {
		t.Errorf("skills %v contain false positives", p.Skills)
	}
}

func TestMatchYearsTakesLargest(t *testing.T) {
	p := Entities("8 years of experience overall, following a 5-year career in QA.")
	if p.YearsExp == nil || *p.YearsExp != 8 {
		t.Fatalf("years = %v, want 8", p.YearsExp)
	}

	p = Entities("over 10 years of experience")
	if p.YearsExp == nil || *p.YearsExp != 10 {
		t.Fatalf("years = %v, want 10", p.YearsExp)
	}

	p = Entities("no experience figures here")
	if p.YearsExp != nil {
		t.Fatalf("years = %v, want nil", *p.YearsExp)
	}
}

func TestMatchTitles(t *testing.T) {
	p := Entities("Worked as a Senior Software Engineer, then Software Engineer again, and finally a software engineer.")

	if !contains(p.Titles, "Senior Software Engineer") {
		t.Errorf("titles %v missing Senior Software Engineer", p.Titles)
	}
	// Repeats dedup case-insensitively, so the bare title appears once.
	n := 0
	for _, title := range p.Titles {
		if title == "Software Engineer" || title == "software engineer" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("titles %v carry the bare title %d times, want 1", p.Titles, n)
	}
}

func TestMatchLocationsCityStateCollapses(t *testing.T) {
	p := Entities("Based in Austin, TX and open to relocation.")

	if len(p.Locations) != 1 || p.Locations[0] != "Austin, TX" {
		t.Errorf("locations = %v, want exactly [Austin, TX]", p.Locations)
	}
}

func TestMatchLocationsStateNeedsSeparator(t *testing.T) {
	// Bare words that happen to be state codes must not fire.
	p := Entities("I am OR was IN charge of the team.")
	for _, loc := range p.Locations {
		if loc == "OR" || loc == "IN" {
			t.Errorf("locations %v contain bare state code", p.Locations)
		}
	}

	p = Entities("Portland, OR")
	if !contains(p.Locations, "Portland, OR") {
		t.Errorf("locations = %v, want Portland, OR", p.Locations)
	}
}

func TestMatchPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"indian number takes priority", "Call +91 98765 43210 or (555) 123-4567", "+91 98765 43210"},
		{"north american", "Phone: (512) 555-1234", "(512) 555-1234"},
		{"international", "Mobile: +44 20 7946 0958", "+44 20 7946 0958"},
		{"none", "no digits to speak of", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Entities(tt.in)
			if p.Phone != tt.want {
				t.Errorf("phone = %q, want %q", p.Phone, tt.want)
			}
		})
	}
}

func TestEntitiesEmptyInput(t *testing.T) {
	p := Entities("")
	if len(p.Skills) != 0 || len(p.Titles) != 0 || len(p.Locations) != 0 ||
		p.Phone != "" || p.YearsExp != nil {
		t.Errorf("empty input yielded %+v", p)
	}
}

func TestEntitiesNeverSetsName(t *testing.T) {
	p := Entities("My name is John Smith, Software Engineer, john@example.com")
	if p.Name != "" {
		t.Errorf("name = %q, resume text must not set the name", p.Name)
	}
}
