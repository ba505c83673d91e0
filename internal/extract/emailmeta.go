package extract

import (
	"regexp"
	"strings"

	"github.com/tdvo/mailscreen/internal/model"
)

// Email body heuristics: each field has its own ordered pattern list;
// the first match that passes the field's sanity bounds wins, and a
// field with no match stays empty.

var emailAddrRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)

var bodyPhoneRe = regexp.MustCompile(`(?:\+\d{1,3}[\s\-.]?)?(?:\(?\d{2,4}\)?[\s\-.]?)?\d{3,4}[\s\-.]?\d{3,4}`)

// Self-introduction, sign-off-after-salutation, and forwarded-header
// shapes, in that priority.
var nameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:my\s+name\s+is|i\s+am|this\s+is)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})`),
	regexp.MustCompile(`(?:regards|sincerely|best|thanks|cheers|respectfully|thank\s+you|warm\s+regards|kind\s+regards)\s*,?\s*\n\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})`),
	regexp.MustCompile(`(?:^|\n)\s*(?:from|name)\s*:\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})`),
}

var roleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:appl(?:y|ying)\s+for|application\s+for|interest(?:ed)?\s+in)\s+(?:the\s+)?(?:position\s+of\s+|role\s+of\s+)?(.+?)(?:\s+(?:position|role|opening|job|vacancy)(?:\s|[.,;])|[.\n,])`),
	regexp.MustCompile(`(?i)(?:position|role|job\s+title)\s*:\s*(.+?)(?:\s*[.\n,|]|$)`),
	regexp.MustCompile(`(?i)(?:application|apply|candidate)\s*[\-–—:]\s*(.+?)(?:\s*[.\n,|]|$)`),
}

var roleNoiseRe = regexp.MustCompile(`(?i)\s+(?:at|with|for)\s+.*$`)

var bodyLocationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:based\s+in|located\s+in|location\s*:\s*|residing\s+in|from)\s+([A-Z][A-Za-z\s.]+(?:,\s*[A-Z]{2})?)`),
	regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)?,\s*[A-Z]{2})\b`),
}

// EmailMetadata pulls candidate hints from an email or cover-letter
// body. Every field is best-effort and independently recovered.
func EmailMetadata(body string) *model.EmailMetadata {
	meta := &model.EmailMetadata{}
	if body == "" {
		return meta
	}

	if m := emailAddrRe.FindString(body); m != "" {
		meta.Email = strings.ToLower(m)
	}

	if m := bodyPhoneRe.FindString(body); m != "" {
		raw := strings.TrimSpace(m)
		if len(nonDigitRe.ReplaceAllString(raw, "")) >= 7 {
			meta.Phone = raw
		}
	}

	for _, re := range nameRes {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if words := len(strings.Fields(name)); words >= 1 && words <= 4 {
			meta.Name = name
			break
		}
	}

	for _, re := range roleRes {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		role := roleNoiseRe.ReplaceAllString(strings.TrimSpace(m[1]), "")
		if len(role) >= 2 && len(role) <= 80 {
			meta.RoleApplied = role
			break
		}
	}

	for _, re := range bodyLocationRes {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		loc := strings.TrimRight(strings.TrimSpace(m[1]), ".,;")
		if len(loc) >= 2 && len(loc) <= 60 {
			meta.Location = loc
			break
		}
	}

	return meta
}

// Subject-line shapes for forwarded recruitment mail, e.g.
// "Fw: Acme Candidate - Dan T. Tran - Electrical Engineer - REQ #28651".

var replyChainRe = regexp.MustCompile(`(?i)^(?:(?:Fw|Fwd|Re)\s*:\s*)+`)

var subjectNameRes = []*regexp.Regexp{
	regexp.MustCompile(`[Cc]andidate\s*[-–—:]\s*([A-Z][a-zA-Z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)\s*[-–—]`),
	regexp.MustCompile(`[Cc]andidate\s*:\s*([A-Z][a-zA-Z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)\s*[-–—]`),
	regexp.MustCompile(`[Cc]andidate\s*[-–—:]\s*([A-Z][a-zA-Z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)\s*$`),
}

var subjectTitleRe = regexp.MustCompile(`(?i)[-–—]\s*([A-Z][A-Za-z /&]+(?:Engineer|Developer|Analyst|Manager|Designer|Architect|Scientist|Lead|Director|Administrator|Specialist|Consultant|Coordinator|Technician|Intern)(?:\s+\w+)?)\s*(?:[-–—]|$)`)

// NameFromSubject recovers a candidate name from a forwarded subject
// line, accepting only a 2-4 word capture.
func NameFromSubject(subject string) string {
	if subject == "" {
		return ""
	}
	cleaned := strings.TrimSpace(replyChainRe.ReplaceAllString(subject, ""))

	for _, re := range subjectNameRes {
		m := re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if words := len(strings.Fields(name)); words >= 2 && words <= 4 {
			return name
		}
	}
	return ""
}

// TitleFromSubject recovers a role title from a forwarded subject line.
func TitleFromSubject(subject string) string {
	if subject == "" {
		return ""
	}
	cleaned := strings.TrimSpace(replyChainRe.ReplaceAllString(subject, ""))

	m := subjectTitleRe.FindStringSubmatch(cleaned)
	if m == nil {
		return ""
	}
	title := strings.TrimSpace(m[1])
	if len(title) >= 2 && len(title) <= 80 {
		return title
	}
	return ""
}
