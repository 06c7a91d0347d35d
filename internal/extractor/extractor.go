// Package extractor turns uploaded files into plain text.
package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for extensions with no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Ext returns the lower-cased extension of filename, including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Extract dispatches on the file extension. Callers treat any error as an
// empty document.
func Extract(filename string, data []byte) (string, error) {
	switch ext := Ext(filename); ext {
	case ".pdf":
		return ExtractPDF(data)
	case ".txt", ".json":
		return ExtractTXT(data)
	case ".md", ".markdown":
		return ExtractMarkdown(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}
