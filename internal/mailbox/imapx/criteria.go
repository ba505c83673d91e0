package imapx

import (
	"strings"

	"github.com/tdvo/mailscreen/internal/mailbox"
)

// imapDateLayout is the DD-Mon-YYYY form SEARCH expects.
const imapDateLayout = "02-Jan-2006"

// buildSearchCriteria renders a criteria conjunction into SEARCH
// syntax. BEFORE is exclusive on the wire, so the upper bound is
// shifted by one day to make the caller-facing date inclusive. No
// predicates means ALL.
func buildSearchCriteria(c mailbox.SearchCriteria) string {
	var parts []string

	if !c.Since.IsZero() {
		parts = append(parts, "SINCE "+c.Since.Format(imapDateLayout))
	}
	if !c.Before.IsZero() {
		parts = append(parts, "BEFORE "+c.Before.AddDate(0, 0, 1).Format(imapDateLayout))
	}
	if c.Sender != "" {
		parts = append(parts, "FROM "+quoteString(c.Sender))
	}
	if c.Text != "" {
		parts = append(parts, "TEXT "+quoteString(c.Text))
	}
	if c.Subject != "" {
		parts = append(parts, "SUBJECT "+quoteString(c.Subject))
	}
	if c.Seen != nil {
		if *c.Seen {
			parts = append(parts, "SEEN")
		} else {
			parts = append(parts, "UNSEEN")
		}
	}

	if len(parts) == 0 {
		return "ALL"
	}
	return "(" + strings.Join(parts, " ") + ")"
}
