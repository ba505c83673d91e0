package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tdvo/mailscreen/internal/model"
)

// skillGroups is the matching vocabulary, grouped by domain for
// readability and flattened at init.
var skillGroups = map[string][]string{
	"languages": {
		"python", "java", "javascript", "typescript", "c#", "c++", "go",
		"golang", "rust", "ruby", "php", "swift", "kotlin", "scala",
		"perl", "r", "matlab", "dart", "lua", "shell", "bash",
		"powershell", "sql", "html", "css", "sass", "less",
		"embedded c", "vhdl", "verilog",
	},
	"frontend": {
		"react", "reactjs", "react.js", "angular", "angularjs", "vue",
		"vuejs", "vue.js", "svelte", "nextjs", "next.js", "nuxt",
		"nuxtjs", "gatsby", "remix", "tailwind", "tailwindcss",
		"bootstrap", "jquery", "webpack", "vite", "redux", "mobx",
		"graphql", "apollo",
	},
	"backend": {
		"node", "nodejs", "node.js", "express", "expressjs", "fastapi",
		"flask", "django", "spring", "spring boot", "springboot",
		"rails", "laravel", "asp.net", ".net", "dotnet", "nestjs",
		"fastify", "gin", "fiber", "actix",
	},
	"data_ml": {
		"pandas", "numpy", "scipy", "scikit-learn", "sklearn",
		"tensorflow", "pytorch", "keras", "opencv", "spark",
		"pyspark", "hadoop", "hive", "airflow", "kafka",
		"machine learning", "deep learning", "nlp",
		"natural language processing", "computer vision",
		"data science", "data engineering", "data analysis",
		"power bi", "powerbi", "tableau", "looker", "dbt",
		"etl", "data pipeline", "simulink", "signal processing",
	},
	"cloud_devops": {
		"aws", "azure", "gcp", "google cloud", "heroku",
		"digitalocean", "docker", "kubernetes", "k8s", "terraform",
		"ansible", "jenkins", "github actions", "gitlab ci", "ci/cd",
		"cicd", "linux", "nginx", "apache", "cloudflare",
		"serverless", "lambda", "ec2", "s3", "ecs", "eks",
		"fargate", "cloudformation",
	},
	"databases": {
		"mysql", "postgresql", "postgres", "mongodb", "redis",
		"elasticsearch", "sqlite", "oracle", "sql server",
		"dynamodb", "cassandra", "couchdb", "neo4j", "mariadb",
		"firebase", "firestore", "supabase",
	},
	"tools_practices": {
		"git", "github", "gitlab", "bitbucket", "jira",
		"confluence", "agile", "scrum", "kanban", "tdd",
		"rest", "restful", "soap", "microservices",
		"api", "oauth", "jwt", "websocket", "grpc",
		"rabbitmq", "celery", "selenium", "cypress",
		"playwright", "jest", "pytest", "unittest", "mocha",
	},
	"mobile": {
		"android", "ios", "react native", "flutter", "xamarin",
		"swiftui", "objective-c", "cordova", "ionic",
	},
	"electrical_hardware": {
		"autocad", "plc", "altium", "labview", "solidworks",
		"fpga", "pcb", "rf", "power electronics",
	},
}

type skillMatcher struct {
	canonical string
	re        *regexp.Regexp
}

// skillMatchers is the flattened vocabulary, longest term first so
// multi-word skills match before their single-word substrings
// ("spring boot" before "spring").
var skillMatchers = buildSkillMatchers()

var punctTermRe = regexp.MustCompile(`[+#./]`)

func buildSkillMatchers() []skillMatcher {
	seen := make(map[string]bool)
	var terms []string
	for _, group := range skillGroups {
		for _, s := range group {
			if !seen[s] {
				seen[s] = true
				terms = append(terms, s)
			}
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	out := make([]skillMatcher, 0, len(terms))
	for _, term := range terms {
		var re *regexp.Regexp
		if punctTermRe.MatchString(term) {
			// Word boundaries fail next to '+', '#' and '.', so anchor
			// on non-letter neighbors instead.
			re = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z])` + regexp.QuoteMeta(term) + `(?:[^a-zA-Z]|$)`)
		} else {
			re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		}
		out = append(out, skillMatcher{canonical: term, re: re})
	}
	return out
}

// titleRe matches curated canonical title phrases with an optional
// seniority prefix.
var titleRe = regexp.MustCompile(`(?i)\b(?:senior|junior|jr\.?|sr\.?|lead|principal|staff|chief|head of|vp of|director of|manager of|associate|intern)?` +
	`\s*` +
	`(?:` +
	`software engineer(?:ing)?|software developer|web developer|` +
	`full[\s-]?stack (?:developer|engineer)|` +
	`front[\s-]?end (?:developer|engineer)|` +
	`back[\s-]?end (?:developer|engineer)|` +
	`devops engineer|sre|site reliability engineer|` +
	`cloud (?:engineer|architect)|solutions? architect|` +
	`data (?:engineer|scientist|analyst)|` +
	`machine learning engineer|ml engineer|ai engineer|` +
	`mobile (?:developer|engineer)|` +
	`ios developer|android developer|` +
	`qa engineer|test engineer|sdet|` +
	`security engineer|infosec engineer|` +
	`database administrator|dba|` +
	`systems? (?:engineer|administrator|admin)|` +
	`network engineer|` +
	`product manager|project manager|program manager|` +
	`engineering manager|technical lead|tech lead|team lead|` +
	`scrum master|` +
	`ux designer|ui designer|ux/ui designer|product designer|` +
	`business analyst|data architect|` +
	`cto|cio|vp engineering|director of engineering|` +
	`electrical engineer(?:ing)?|` +
	`mechanical engineer(?:ing)?|` +
	`hardware engineer(?:ing)?|` +
	`embedded (?:systems? )?engineer|` +
	`firmware engineer|` +
	`rf engineer|` +
	`controls? engineer|` +
	`power engineer|` +
	`design engineer|` +
	`manufacturing engineer|` +
	`process engineer|` +
	`validation engineer|` +
	`field (?:service )?engineer|` +
	`applications? engineer` +
	`)`)

// yoeRes captures a "number near the word years" in several shapes.
// When more than one matches, the largest recovered value wins.
var yoeRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:over\s+|more\s+than\s+)?(\d{1,2})\s*[\-–to]*\s*\d{0,2}\s*\+?\s*(?:years?|yrs?|yr)\b(?:\s+of\s+(?:experience|exp|work|professional))?`),
	regexp.MustCompile(`(?i)experience\s*(?::|\s)\s*(\d{1,2})\s*\+?\s*(?:years?|yrs?)`),
	regexp.MustCompile(`(?i)(\d{1,2})[\s-]*year\s+career`),
	regexp.MustCompile(`(?i)(\d{1,2})\s*\+?\s*(?:years?|yrs?)\s+experience`),
}

// gazetteer lists cities, metros and countries matched directly.
var gazetteer = []string{
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia",
	"San Antonio", "San Diego", "Dallas", "San Jose", "Austin", "Jacksonville",
	"San Francisco", "Seattle", "Denver", "Boston", "Nashville", "Portland",
	"Las Vegas", "Atlanta", "Miami", "Minneapolis", "Charlotte", "Raleigh",
	"Salt Lake City", "Pittsburgh", "Detroit", "Baltimore", "Tampa",
	"Washington DC", "Washington D.C.",
	"Bay Area", "Silicon Valley", "Palo Alto", "Mountain View", "Sunnyvale",
	"Cupertino", "Menlo Park", "Redmond",
	"London", "Berlin", "Paris", "Amsterdam", "Dublin", "Toronto", "Vancouver",
	"Montreal", "Sydney", "Melbourne", "Singapore", "Hong Kong", "Tokyo",
	"Bangalore", "Bengaluru", "Hyderabad", "Mumbai", "Delhi", "Pune",
	"Tel Aviv", "Dubai", "Zurich", "Stockholm", "Copenhagen", "Oslo",
	"Helsinki", "Warsaw", "Prague", "Budapest", "Bucharest", "Lisbon",
	"Barcelona", "Madrid", "Milan", "Rome",
	"United States", "USA", "Canada", "United Kingdom", "UK",
	"Germany", "France", "Netherlands", "Ireland", "Australia", "India",
	"Israel", "UAE", "Switzerland", "Sweden", "Denmark", "Norway",
	"Finland", "Poland", "Czech Republic", "Hungary", "Romania",
	"Portugal", "Spain", "Italy", "Japan", "South Korea", "Brazil",
	"Mexico", "Argentina", "Remote",
}

// usStates are matched case-sensitively and only after a comma or pipe
// so bare words like "IN" and "OR" don't fire.
var usStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

var usStateSet = func() map[string]bool {
	m := make(map[string]bool, len(usStates))
	for _, s := range usStates {
		m[s] = true
	}
	return m
}()

type locationMatcher struct {
	canonical string
	re        *regexp.Regexp
}

var locationMatchers = buildLocationMatchers()

func buildLocationMatchers() []locationMatcher {
	sorted := make([]string, len(gazetteer))
	copy(sorted, gazetteer)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	out := make([]locationMatcher, 0, len(sorted)+len(usStates))
	for _, loc := range sorted {
		out = append(out, locationMatcher{
			canonical: loc,
			re:        regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(loc) + `\b`),
		})
	}
	for _, st := range usStates {
		out = append(out, locationMatcher{
			canonical: st,
			re:        regexp.MustCompile(`(?:,\s*|\|\s*)` + st + `\b`),
		})
	}
	return out
}

// cityStateRe captures a generic "City, ST" or "City ST" pair for US
// locations absent from the gazetteer.
var cityStateRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)[,\s]\s*([A-Z]{2})\b`)

// phoneRes in fixed priority: country-specific, then North-American,
// then generic international.
var phoneRes = []*regexp.Regexp{
	regexp.MustCompile(`\+91[\s\-.]?\d{5}[\s\-.]?\d{5}\b`),
	regexp.MustCompile(`(?:\+1[\s\-.]?)?\(?\d{3}\)?[\s\-.]?\d{3}[\s\-.]?\d{4}\b`),
	regexp.MustCompile(`\+\d{1,3}[\s\-.]?\d{2,4}[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}\b`),
}

var nonDigitRe = regexp.MustCompile(`\D`)

// Entities extracts structured fields from raw resume text. Name and
// applied-for role are deliberately never derived from resume body
// text; the pipeline sets them from subject and email metadata.
func Entities(raw string) *model.ExtractedProfile {
	profile := &model.ExtractedProfile{}
	if raw == "" {
		return profile
	}

	profile.Skills = matchSkills(raw)
	profile.YearsExp = matchYears(raw)
	profile.Titles = matchTitles(raw)
	profile.Locations = matchLocations(raw)
	profile.Phone = matchPhone(raw)

	return profile
}

// matchSkills returns matched vocabulary terms, de-duplicated
// case-insensitively in first-seen order. The vocabulary is ordered
// longest-first, so a multi-word term and its substring term are both
// reported as distinct entries.
func matchSkills(raw string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, m := range skillMatchers {
		if !m.re.MatchString(raw) {
			continue
		}
		key := strings.ToLower(m.canonical)
		if !seen[key] {
			seen[key] = true
			found = append(found, m.canonical)
		}
	}
	return found
}

// matchYears returns the largest integer recovered across all
// years-of-experience patterns, nil if none match.
func matchYears(raw string) *int {
	var best *int
	for _, re := range yoeRes {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		val, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if best == nil || val > *best {
			v := val
			best = &v
		}
	}
	return best
}

func matchTitles(raw string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, m := range titleRe.FindAllString(raw, -1) {
		title := strings.TrimSpace(m)
		key := strings.ToLower(title)
		if key != "" && !seen[key] {
			seen[key] = true
			found = append(found, title)
		}
	}
	return found
}

// matchLocations runs the gazetteer and state-code matchers, then the
// generic City-ST pattern. A City-ST hit subsumes separately matched
// bare city and bare state entries for the same tokens.
func matchLocations(raw string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, m := range locationMatchers {
		if !m.re.MatchString(raw) {
			continue
		}
		key := strings.ToLower(m.canonical)
		if !seen[key] {
			seen[key] = true
			found = append(found, m.canonical)
		}
	}

	for _, m := range cityStateRe.FindAllStringSubmatch(raw, -1) {
		city, state := m[1], m[2]
		if !usStateSet[state] {
			continue
		}
		loc := fmt.Sprintf("%s, %s", city, state)
		key := strings.ToLower(loc)
		if seen[key] {
			continue
		}
		for _, bare := range []string{strings.ToLower(city), strings.ToLower(state)} {
			if seen[bare] {
				kept := found[:0]
				for _, l := range found {
					if strings.ToLower(l) != bare {
						kept = append(kept, l)
					}
				}
				found = kept
				delete(seen, bare)
			}
		}
		seen[key] = true
		found = append(found, loc)
	}

	return found
}

// matchPhone returns the first pattern match carrying at least seven
// digits after stripping separators.
func matchPhone(raw string) string {
	for _, re := range phoneRes {
		m := re.FindString(raw)
		if m == "" {
			continue
		}
		m = strings.TrimSpace(m)
		if len(nonDigitRe.ReplaceAllString(m, "")) >= 7 {
			return m
		}
	}
	return ""
}
