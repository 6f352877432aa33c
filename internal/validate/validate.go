// Package validate rejects oversized, binary, or empty content before chunking.
package validate

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxSize is the byte-length cap applied when a caller passes limit <= 0.
const DefaultMaxSize = 10 * 1024 * 1024

// controlCharThreshold is the fraction of control characters (excluding
// tab/newline/carriage-return) above which content is treated as binary.
const controlCharThreshold = 0.01

// Reason identifies why content was rejected.
type Reason string

const (
	ReasonTooLarge Reason = "file_too_large"
	ReasonBinary   Reason = "binary_content"
	ReasonEmpty    Reason = "empty_content"
	ReasonInvalid  Reason = "invalid_content"
)

// Error is a structured validation failure. Validation errors are expected and
// frequent; callers count and categorize them per bulk run rather than aborting.
type Error struct {
	Reason Reason
	Size   int64  // set for ReasonTooLarge
	Limit  int64  // set for ReasonTooLarge
	Detail string // set for ReasonInvalid
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonTooLarge:
		return fmt.Sprintf("file too large: %d bytes (limit %d)", e.Size, e.Limit)
	case ReasonBinary:
		return "binary content"
	case ReasonEmpty:
		return "empty content"
	default:
		if e.Detail != "" {
			return fmt.Sprintf("invalid content: %s", e.Detail)
		}
		return "invalid content"
	}
}

// IsValidationError reports whether err is, or wraps, a content validation
// failure.
func IsValidationError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// ReasonOf returns the validation reason for err, or "" if err is not a
// validation error.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Check validates raw content against the size cap. It returns nil for
// valid content or an *Error describing the first failed check. The size check
// runs first so oversized input fails fast without being scanned. Check is
// pure and has no side effects.
func Check(content []byte, limit int64) error {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if int64(len(content)) > limit {
		return &Error{Reason: ReasonTooLarge, Size: int64(len(content)), Limit: limit}
	}
	if isBinary(content) {
		return &Error{Reason: ReasonBinary}
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return &Error{Reason: ReasonEmpty}
	}
	return nil
}

// isBinary reports whether content looks like binary data: any NUL byte, or a
// control-character fraction (excluding tab/newline/carriage-return) above the
// threshold.
func isBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return true
	}
	control := 0
	for _, b := range content {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(content)) > controlCharThreshold
}
