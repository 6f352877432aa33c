package extract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lu4p/cat/rtftxt"
)

// extractRTF extracts plain text from RTF content.
func extractRTF(content []byte) (string, error) {
	if !bytes.HasPrefix(content, []byte(`{\rtf`)) {
		return "", errors.New("not RTF")
	}
	buf, err := rtftxt.Text(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("extract RTF: %w", err)
	}
	return buf.String(), nil
}
