// Package extract provides text extraction from imported document files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoText is returned when no extraction strategy yields text.
var ErrNoText = errors.New("no text could be extracted")

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content. Structured formats recognized by
// extension (.docx, .xlsx) are handled directly; everything else goes through
// a preference cascade of UTF-8, UTF-16, rich text (RTF), then PDF page text.
// The first strategy producing non-empty trimmed text wins. ext should include
// the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".docx", ".odt":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	}
	strategies := []func([]byte) (string, error){
		extractUTF8,
		extractUTF16,
		extractRTF,
		extractPDF,
	}
	for _, strategy := range strategies {
		text, err := strategy(content)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", ErrNoText
}
