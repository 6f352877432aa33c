// Package chunk splits text or source code into overlapping windows.
package chunk

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// Default window parameters. Text windows are measured in characters, code
// windows in lines so a chunk never splits a code line.
const (
	DefaultTextSize    = 1000
	DefaultTextOverlap = 200
	DefaultCodeLines   = 80
	DefaultCodeOverlap = 10
)

// Chunker splits document content into chunks with contiguous indices from 0.
// Implementations are pure and deterministic and take no locks.
type Chunker interface {
	Chunk(docID, content string) []models.DocumentChunk
}

// ForKind returns the chunking strategy for the given document kind:
// line-based for code, character-based for everything else.
func ForKind(kind models.DocumentKind) Chunker {
	if kind == models.KindCode {
		return NewCodeChunker(DefaultCodeLines, DefaultCodeOverlap)
	}
	return NewTextChunker(DefaultTextSize, DefaultTextOverlap)
}

// TextChunker slides a fixed-size character window across normalized content.
type TextChunker struct {
	size    int
	overlap int
}

// NewTextChunker creates a character-window chunker. Non-positive size falls
// back to the default; overlap is clamped below size.
func NewTextChunker(size, overlap int) *TextChunker {
	if size <= 0 {
		size = DefaultTextSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &TextChunker{size: size, overlap: overlap}
}

// Chunk splits content into overlapping character windows. Line endings are
// normalized (CRLF to LF), each slice is whitespace-trimmed and emitted only
// if non-empty, and the final partial window is still emitted.
func (c *TextChunker) Chunk(docID, content string) []models.DocumentChunk {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	runes := []rune(normalized)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []models.DocumentChunk
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			chunks = appendChunk(chunks, docID, text)
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// CodeChunker slides a fixed-size line window across source code.
type CodeChunker struct {
	lines   int
	overlap int
}

// NewCodeChunker creates a line-window chunker. Non-positive size falls back
// to the default; overlap is clamped below size.
func NewCodeChunker(lines, overlap int) *CodeChunker {
	if lines <= 0 {
		lines = DefaultCodeLines
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= lines {
		overlap = lines - 1
	}
	return &CodeChunker{lines: lines, overlap: overlap}
}

// Chunk splits content into overlapping line windows, preserving line
// boundaries so no chunk splits a code line.
func (c *CodeChunker) Chunk(docID, content string) []models.DocumentChunk {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) == 0 {
		return nil
	}
	step := c.lines - c.overlap
	var chunks []models.DocumentChunk
	for start := 0; start < len(lines); start += step {
		end := start + c.lines
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if text != "" {
			chunks = appendChunk(chunks, docID, text)
		}
		if end >= len(lines) {
			break
		}
	}
	return chunks
}

// appendChunk appends a chunk with the next contiguous index. Chunk IDs are
// deterministic so re-chunking unchanged content yields identical IDs.
func appendChunk(chunks []models.DocumentChunk, docID, text string) []models.DocumentChunk {
	index := len(chunks)
	return append(chunks, models.DocumentChunk{
		ID:         fmt.Sprintf("%s_%d", docID, index),
		DocumentID: docID,
		Content:    text,
		ChunkIndex: index,
	})
}
