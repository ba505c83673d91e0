package imapx

import (
	"regexp"
	"strconv"
	"strings"
)

// Reply decoding. Server replies are loosely structured text; the
// extractors here mirror what the servers actually send rather than
// the full grammar: the uid is the first digit run after the "UID "
// marker, and flags are the first parenthesized group after "FLAGS",
// tokenized by whitespace.

var (
	listRe     = regexp.MustCompile(`\(([^)]*)\)\s+(?:"([^"]*)"|NIL)\s+(.+)`)
	uidRe      = regexp.MustCompile(`UID (\d+)`)
	flagsRe    = regexp.MustCompile(`FLAGS \(([^)]*)\)`)
	messagesRe = regexp.MustCompile(`MESSAGES (\d+)`)
	unseenRe   = regexp.MustCompile(`UNSEEN (\d+)`)
)

// folderInfo is one parsed LIST response line.
type folderInfo struct {
	Name  string
	Flags []string
}

// parseListEntry decodes one `* LIST (flags) "delim" name` entry. The
// folder name arrives either quoted, bare, or as a literal; it is
// decoded from modified UTF-7 with a raw-text fallback.
func parseListEntry(e entry) (folderInfo, bool) {
	text, ok := cutPrefixFold(e.text, "* LIST ")
	if !ok {
		return folderInfo{}, false
	}

	m := listRe.FindStringSubmatch(text)
	if m == nil {
		return folderInfo{}, false
	}

	var flags []string
	for _, f := range strings.Fields(m[1]) {
		flags = append(flags, f)
	}

	var rawName []byte
	if len(e.literals) > 0 {
		// Name was sent as a literal following the line.
		rawName = e.literals[0]
	} else {
		name := strings.TrimSpace(m[3])
		if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
			name = name[1 : len(name)-1]
		}
		rawName = []byte(name)
	}

	return folderInfo{
		Name:  strings.TrimRight(DecodeUTF7(rawName), " "),
		Flags: flags,
	}, true
}

// hasFlag reports whether the flag list contains the given flag,
// comparing case-insensitively.
func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// parseSearchReply collects uids from `* SEARCH n1 n2 ...` entries in
// the server's (ascending) order.
func parseSearchReply(rep *reply) []uint32 {
	var uids []uint32
	for _, e := range rep.entries {
		text, ok := cutPrefixFold(e.text, "* SEARCH")
		if !ok {
			continue
		}
		for _, field := range strings.Fields(text) {
			n, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				continue
			}
			uids = append(uids, uint32(n))
		}
	}
	return uids
}

// fetchItem is one decoded FETCH entry: the uid and flags recovered
// from the metadata header plus the raw message bytes.
type fetchItem struct {
	UID   uint32
	Flags []string
	Raw   []byte
}

// parseFetchReply decodes FETCH entries. Entries without an embedded
// uid or without a message payload are skipped.
func parseFetchReply(rep *reply) []fetchItem {
	var items []fetchItem
	for _, e := range rep.entries {
		if !strings.Contains(e.text, "FETCH") {
			continue
		}

		uidM := uidRe.FindStringSubmatch(e.text)
		if uidM == nil || len(e.literals) == 0 {
			continue
		}
		uid, err := strconv.ParseUint(uidM[1], 10, 32)
		if err != nil {
			continue
		}

		var flags []string
		if m := flagsRe.FindStringSubmatch(e.text); m != nil {
			for _, f := range strings.Fields(m[1]) {
				flags = append(flags, f)
			}
		}

		items = append(items, fetchItem{
			UID:   uint32(uid),
			Flags: flags,
			Raw:   e.literals[0],
		})
	}
	return items
}

// parseStatusReply extracts MESSAGES and UNSEEN counts from a STATUS
// response. Missing fields report zero.
func parseStatusReply(rep *reply) (messages, unseen int) {
	for _, e := range rep.entries {
		if !strings.Contains(e.text, "STATUS") {
			continue
		}
		if m := messagesRe.FindStringSubmatch(e.text); m != nil {
			messages, _ = strconv.Atoi(m[1])
		}
		if m := unseenRe.FindStringSubmatch(e.text); m != nil {
			unseen, _ = strconv.Atoi(m[1])
		}
	}
	return messages, unseen
}

// cutPrefixFold strips prefix from s case-insensitively.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
