package format

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// decodeName converts a raw entry name to UTF-8 per the configured
// name encoding. "auto" keeps valid UTF-8 as-is and treats everything
// else as CP932, the usual case for these engines.
func decodeName(raw []byte, encoding string) string {
	switch strings.ToLower(encoding) {
	case "utf8", "utf-8":
		return string(raw)
	case "cp932", "sjis", "shift-jis":
		return decodeCP932(raw)
	default:
		if utf8.Valid(raw) {
			return string(raw)
		}
		return decodeCP932(raw)
	}
}

func decodeCP932(raw []byte) string {
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// trimFixed cuts a NUL-terminated name out of a fixed-width field.
func trimFixed(field []byte) []byte {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return field[:i]
	}
	return field
}
