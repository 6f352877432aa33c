package validate

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestCheck_valid(t *testing.T) {
	if err := Check([]byte("plain text content"), 0); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheck_tooLarge(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 101)
	err := Check(content, 100)
	if ReasonOf(err) != ReasonTooLarge {
		t.Fatalf("got %v, want too-large", err)
	}
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatal("not a validation error")
	}
	if verr.Size != 101 || verr.Limit != 100 {
		t.Errorf("size/limit = %d/%d", verr.Size, verr.Limit)
	}
}

func TestCheck_sizeBeforeContent(t *testing.T) {
	// Oversized binary content must fail on size, not on the binary check.
	content := append(bytes.Repeat([]byte{0}, 50), bytes.Repeat([]byte("a"), 100)...)
	if got := ReasonOf(Check(content, 100)); got != ReasonTooLarge {
		t.Errorf("got %q, want %q", got, ReasonTooLarge)
	}
}

func TestCheck_nulByteIsBinary(t *testing.T) {
	content := []byte("mostly text\x00with one nul")
	if got := ReasonOf(Check(content, 0)); got != ReasonBinary {
		t.Errorf("got %q, want %q", got, ReasonBinary)
	}
}

func TestCheck_controlCharRatio(t *testing.T) {
	// 2 control bytes in 100 exceeds the 1% threshold.
	content := append(bytes.Repeat([]byte("a"), 98), 0x01, 0x02)
	if got := ReasonOf(Check(content, 0)); got != ReasonBinary {
		t.Errorf("got %q, want %q", got, ReasonBinary)
	}
	// 1 in 200 stays under it.
	content = append(bytes.Repeat([]byte("a"), 199), 0x01)
	if err := Check(content, 0); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheck_tabsAndNewlinesAreText(t *testing.T) {
	content := []byte("col1\tcol2\r\nrow2\tvalue\n")
	if err := Check(content, 0); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheck_empty(t *testing.T) {
	for _, content := range [][]byte{nil, []byte(""), []byte("   \n\t  ")} {
		if got := ReasonOf(Check(content, 0)); got != ReasonEmpty {
			t.Errorf("Check(%q) reason = %q, want %q", content, got, ReasonEmpty)
		}
	}
}

func TestIsValidationError_wrapped(t *testing.T) {
	err := fmt.Errorf("index doc-1: %w", &Error{Reason: ReasonBinary})
	if !IsValidationError(err) {
		t.Error("wrapped validation error not recognized")
	}
	if ReasonOf(err) != ReasonBinary {
		t.Errorf("ReasonOf = %q", ReasonOf(err))
	}
	if IsValidationError(errors.New("boom")) {
		t.Error("plain error misclassified")
	}
}
