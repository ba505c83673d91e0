package imapx

import (
	"bytes"
	"encoding/base64"
	"strings"
	"unicode/utf16"
)

// Folder names on the wire use IMAP modified UTF-7 (RFC 3501 §5.1.3),
// which differs from standard UTF-7:
//   - '&' is the shift character, not '+'
//   - "&-" encodes a literal '&'
//   - encoded runs use base64 with ',' in place of '/'
//   - the decoded run is big-endian UTF-16 code units

// DecodeUTF7 decodes a modified UTF-7 folder name. An unrecoverable
// encoded run falls back to the raw bytes as text rather than failing.
func DecodeUTF7(data []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(data) {
		if data[i] != '&' {
			sb.WriteByte(data[i])
			i++
			continue
		}

		dash := bytes.IndexByte(data[i+1:], '-')
		if dash == -1 {
			// Unterminated shift: keep the rest verbatim.
			sb.Write(data[i:])
			break
		}
		dash += i + 1

		if dash == i+1 {
			sb.WriteByte('&')
			i = dash + 1
			continue
		}

		decoded, ok := decodeRun(data[i+1 : dash])
		if !ok {
			sb.Write(data[i : dash+1])
			i = dash + 1
			continue
		}
		sb.WriteString(decoded)
		i = dash + 1
	}
	return sb.String()
}

// decodeRun decodes one base64 run between the shift marker and its
// terminator into text.
func decodeRun(run []byte) (string, bool) {
	encoded := bytes.ReplaceAll(run, []byte{','}, []byte{'/'})
	if pad := len(encoded) % 4; pad != 0 {
		encoded = append(encoded, bytes.Repeat([]byte{'='}, 4-pad)...)
	}

	decoded, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return "", false
	}
	if len(decoded)%2 != 0 {
		return "", false
	}

	units := make([]uint16, 0, len(decoded)/2)
	for j := 0; j+1 < len(decoded); j += 2 {
		units = append(units, uint16(decoded[j])<<8|uint16(decoded[j+1]))
	}
	return string(utf16.Decode(units)), true
}

// EncodeUTF7 encodes a folder name into modified UTF-7.
func EncodeUTF7(name string) string {
	var sb strings.Builder
	var run []rune

	flush := func() {
		if len(run) == 0 {
			return
		}
		units := utf16.Encode(run)
		raw := make([]byte, 0, len(units)*2)
		for _, u := range units {
			raw = append(raw, byte(u>>8), byte(u))
		}
		enc := base64.StdEncoding.EncodeToString(raw)
		enc = strings.TrimRight(enc, "=")
		enc = strings.ReplaceAll(enc, "/", ",")
		sb.WriteByte('&')
		sb.WriteString(enc)
		sb.WriteByte('-')
		run = run[:0]
	}

	for _, r := range name {
		switch {
		case r == '&':
			flush()
			sb.WriteString("&-")
		case r >= 0x20 && r <= 0x7e:
			flush()
			sb.WriteRune(r)
		default:
			run = append(run, r)
		}
	}
	flush()

	return sb.String()
}
