package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// wordTextTag matches <w:t>text</w:t> including variants with attributes such
// as xml:space="preserve".
var wordTextTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// odtTextTags match OpenDocument paragraph, span, and heading elements.
var odtTextTags = regexp.MustCompile(`<text:(?:p|span|h)[^>]*>([^<]*)</text:(?:p|span|h)>`)

// extractDOCX extracts text from DOCX or ODT content. Both are ZIP packages
// holding XML; text nodes are pulled with regular expressions so content is
// recovered regardless of paragraph or run attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	if xml, err := readZipEntry(zr, "word/document.xml"); err == nil {
		return joinMatches(wordTextTag.FindAllStringSubmatch(string(xml), -1)), nil
	}
	if xml, err := readZipEntry(zr, "content.xml"); err == nil {
		return joinMatches(odtTextTags.FindAllStringSubmatch(string(xml), -1)), nil
	}
	return "", fmt.Errorf("extract DOCX: no document body found")
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

func joinMatches(matches [][]string) string {
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(m[1]))
	}
	return strings.TrimSpace(b.String())
}
