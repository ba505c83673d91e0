package message

import (
	"mime"
	"net/mail"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"

	"github.com/tdvo/mailscreen/internal/model"
)

// encodedWordRe finds RFC 2047 encoded-word runs inside an otherwise
// plain header value.
var encodedWordRe = regexp.MustCompile(`=\?[^?]+\?[bBqQ]\?[^?]*\?=`)

// wordDecoder decodes individual encoded words using go-message's
// charset table, which covers the legacy charsets real mail carries.
var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeaderValue decodes a header value that may embed charset-
// tagged encoded-word runs. Each run is decoded with its declared
// charset; decoded runs and plain runs are concatenated with a single
// space. A run that fails to decode is kept verbatim.
func DecodeHeaderValue(raw string) string {
	if raw == "" {
		return ""
	}

	matches := encodedWordRe.FindAllStringIndex(raw, -1)
	if matches == nil {
		return raw
	}

	var segments []string
	prev := 0
	for _, m := range matches {
		if plain := strings.TrimSpace(raw[prev:m[0]]); plain != "" {
			segments = append(segments, plain)
		}
		word := raw[m[0]:m[1]]
		decoded, err := wordDecoder.Decode(word)
		if err != nil {
			decoded = word
		}
		segments = append(segments, decoded)
		prev = m[1]
	}
	if plain := strings.TrimSpace(raw[prev:]); plain != "" {
		segments = append(segments, plain)
	}

	return strings.Join(segments, " ")
}

// ParseAddress splits one address header value into display name and
// address. A missing display name falls back to the address's local
// part; a fully empty field yields the sentinel name "Unknown".
func ParseAddress(raw string) model.Address {
	if strings.TrimSpace(raw) == "" {
		return model.Address{Name: "Unknown"}
	}

	decoded := DecodeHeaderValue(raw)
	addr, err := mail.ParseAddress(decoded)
	if err != nil {
		// Not a parseable address; keep the raw text as the name.
		return model.Address{Name: strings.TrimSpace(decoded)}
	}

	name := addr.Name
	if name == "" {
		name = localPart(addr.Address)
	}
	if name == "" {
		name = "Unknown"
	}
	return model.Address{Name: name, Email: addr.Address}
}

// ParseAddressList splits a recipient header into addresses, dropping
// entries without an address.
func ParseAddressList(raw string) []model.Address {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	decoded := DecodeHeaderValue(raw)
	parsed, err := mail.ParseAddressList(decoded)
	if err != nil {
		return nil
	}

	var out []model.Address
	for _, a := range parsed {
		if a.Address == "" {
			continue
		}
		name := a.Name
		if name == "" {
			name = localPart(a.Address)
		}
		out = append(out, model.Address{Name: name, Email: a.Address})
	}
	return out
}

// localPart returns the part of an email address before the '@'.
func localPart(addr string) string {
	local, _, found := strings.Cut(addr, "@")
	if !found {
		return addr
	}
	return local
}
