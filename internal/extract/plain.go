package extract

import (
	"bytes"
	"errors"
	"unicode/utf16"
	"unicode/utf8"
)

// extractUTF8 returns content as a string when it is valid UTF-8 and does not
// look like binary data. A UTF-8 BOM is stripped.
func extractUTF8(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(content) {
		return "", errors.New("not valid UTF-8")
	}
	if looksBinary(content) {
		return "", errors.New("control characters suggest binary content")
	}
	return string(content), nil
}

// extractUTF16 decodes UTF-16 content. A BOM selects the byte order; without
// one, the content must look like little-endian UTF-16 text (NUL high bytes in
// the ASCII range) to avoid misreading arbitrary binary data.
func extractUTF16(content []byte) (string, error) {
	if len(content) < 2 || len(content)%2 != 0 {
		return "", errors.New("not UTF-16")
	}
	bigEndian := false
	switch {
	case content[0] == 0xFE && content[1] == 0xFF:
		bigEndian = true
		content = content[2:]
	case content[0] == 0xFF && content[1] == 0xFE:
		content = content[2:]
	default:
		if !looksUTF16LE(content) {
			return "", errors.New("no BOM and content does not look like UTF-16")
		}
	}
	units := make([]uint16, 0, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		if bigEndian {
			units = append(units, uint16(content[i])<<8|uint16(content[i+1]))
		} else {
			units = append(units, uint16(content[i+1])<<8|uint16(content[i]))
		}
	}
	decoded := string(utf16.Decode(units))
	if looksBinary([]byte(decoded)) {
		return "", errors.New("decoded UTF-16 looks binary")
	}
	return decoded, nil
}

// looksUTF16LE reports whether content resembles little-endian UTF-16 text:
// most odd bytes are NUL while even bytes are printable ASCII.
func looksUTF16LE(content []byte) bool {
	sample := len(content)
	if sample > 512 {
		sample = 512
	}
	nulHigh, printableLow := 0, 0
	for i := 0; i+1 < sample; i += 2 {
		if content[i+1] == 0 {
			nulHigh++
		}
		if content[i] >= 0x20 && content[i] < 0x7F {
			printableLow++
		}
	}
	pairs := sample / 2
	if pairs == 0 {
		return false
	}
	return nulHigh*10 >= pairs*9 && printableLow*10 >= pairs*8
}

// looksBinary reports whether s contains a NUL or an excessive fraction of
// control characters.
func looksBinary(s []byte) bool {
	if bytes.IndexByte(s, 0) >= 0 {
		return true
	}
	if len(s) == 0 {
		return false
	}
	control := 0
	for _, b := range s {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return control*100 > len(s)
}
