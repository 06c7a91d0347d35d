package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ExtractTXT decodes plain text and JSON uploads. Undecodable bytes become
// U+FFFD rather than failing the upload.
func ExtractTXT(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty text file")
	}

	text := cleanText(decodeText(data))
	if text == "" {
		return "", fmt.Errorf("no text could be extracted from file")
	}

	return text, nil
}

func decodeText(data []byte) string {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return strings.ToValidUTF8(string(data[3:]), "�")
	}

	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		if decoded, ok := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), data); ok {
			return decoded
		}
	}

	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		if decoded, ok := decodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), data); ok {
			return decoded
		}
	}

	if utf8.Valid(data) {
		return string(data)
	}

	// mostly UTF-8 with a few stray bytes: keep it and mark the damage
	if invalidRatio(data) < 0.01 {
		return strings.ToValidUTF8(string(data), "�")
	}

	if decoded, ok := decodeWith(charmap.Windows1252.NewDecoder(), data); ok {
		return decoded
	}

	return strings.ToValidUTF8(string(data), "�")
}

func decodeWith(t transform.Transformer, data []byte) (string, bool) {
	decoded, _, err := transform.Bytes(t, data)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func invalidRatio(data []byte) float64 {
	invalid := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		i += size
	}
	return float64(invalid) / float64(len(data))
}

// cleanText normalizes line endings and drops NUL bytes. Blank lines are
// kept so tables and JSON stay readable.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
