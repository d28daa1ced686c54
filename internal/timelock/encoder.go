package timelock

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// The canonical verdict encoding is a 4-byte big-endian length prefix
// followed by the UTF-8 bytes of the verdict. Both sides of the
// commit/reveal round trip must agree on this exactly.

const lengthPrefixSize = 4

// EncodeVerdict serializes a verdict for encryption.
func EncodeVerdict(verdict string) []byte {
	buf := make([]byte, lengthPrefixSize+len(verdict))
	binary.BigEndian.PutUint32(buf, uint32(len(verdict)))
	copy(buf[lengthPrefixSize:], verdict)
	return buf
}

// DecodeVerdict parses a revealed payload back into the verdict string.
// Failures wrap ErrRevealDecodeFailed; callers log and keep listening.
func DecodeVerdict(payload []byte) (string, error) {
	if len(payload) < lengthPrefixSize {
		return "", eris.Wrapf(ErrRevealDecodeFailed, "payload too short: %d bytes", len(payload))
	}
	n := binary.BigEndian.Uint32(payload)
	body := payload[lengthPrefixSize:]
	if uint32(len(body)) != n {
		return "", eris.Wrapf(ErrRevealDecodeFailed, "length prefix %d does not match body length %d", n, len(body))
	}
	if !utf8.Valid(body) {
		return "", eris.Wrap(ErrRevealDecodeFailed, "body is not valid UTF-8")
	}
	return string(body), nil
}
