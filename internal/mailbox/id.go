package mailbox

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Message ids pair a folder name with a numeric uid in one opaque,
// URL-safe token. The NUL separator cannot occur in IMAP folder names,
// so the encoding round-trips exactly.

const idSeparator = "\x00"

// EncodeMessageID packs (folder, uid) into an opaque message id.
func EncodeMessageID(folder string, uid uint32) string {
	raw := folder + idSeparator + strconv.FormatUint(uint64(uid), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeMessageID unpacks an opaque message id back into its
// (folder, uid) pair.
func DecodeMessageID(id string) (folder string, uid uint32, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", 0, fmt.Errorf("decoding message id: %w", err)
	}

	folder, uidStr, ok := strings.Cut(string(raw), idSeparator)
	if !ok {
		return "", 0, fmt.Errorf("malformed message id %q", id)
	}

	n, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("parsing uid in message id: %w", err)
	}

	return folder, uint32(n), nil
}
