// Package converter turns arbitrary input (raw bytes, HTML, URLs) into
// normalized Markdown for ingestion. Detection reads a prefix sample of the
// input; conversion is idempotent on Markdown.
package converter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/hashicorp/go-hclog"
)

// Format tags returned by DetectFormat.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatXLSX    Format = "xlsx"
	FormatPPTX    Format = "pptx"
	FormatHTML    Format = "html"
	FormatTXT     Format = "txt"
	FormatMD      Format = "md"
	FormatRTF     Format = "rtf"
	FormatUnknown Format = "unknown"
)

// ErrUnsupportedFormat is returned when the input format cannot be detected
// and no explicit format was supplied, or when no converter handles it.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// DefaultMaxOutputBytes caps the converted Markdown representation.
const DefaultMaxOutputBytes = 200 * 1024

// sniffLen is how much of the input prefix detection examines.
const sniffLen = 512

// BinaryConverter extracts text from a binary office format. The ingestion
// service registers these per format; without one, binary formats fail with
// ErrUnsupportedFormat.
type BinaryConverter func(data []byte) (string, error)

// Converter converts detected input into Markdown.
type Converter struct {
	maxOutputBytes int
	binary         map[Format]BinaryConverter
	logger         hclog.Logger
}

// Config holds configuration for the converter.
type Config struct {
	// MaxOutputBytes caps the converted Markdown size (default: 200 KB).
	MaxOutputBytes int

	// BinaryConverters handle pdf/docx/xlsx/pptx extraction. Optional.
	BinaryConverters map[Format]BinaryConverter

	// Logger (optional).
	Logger hclog.Logger
}

// New creates a converter.
func New(cfg Config) *Converter {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Converter{
		maxOutputBytes: cfg.MaxOutputBytes,
		binary:         cfg.BinaryConverters,
		logger:         cfg.Logger.Named("converter"),
	}
}

// DetectFormat examines a prefix sample of the input and classifies it.
// Filename is optional; its extension breaks ties for text-like content.
func DetectFormat(data []byte, filename string) Format {
	sample := data
	if len(sample) > sniffLen {
		sample = sample[:sniffLen]
	}

	switch {
	case bytes.HasPrefix(sample, []byte("%PDF")):
		return FormatPDF
	case bytes.HasPrefix(sample, []byte("{\\rtf")):
		return FormatRTF
	case bytes.HasPrefix(sample, []byte("PK\x03\x04")):
		return detectZipFormat(filename)
	}

	if looksLikeHTML(sample) {
		return FormatHTML
	}

	if !utf8.Valid(sample) {
		return FormatUnknown
	}

	switch strings.ToLower(extOf(filename)) {
	case "md", "markdown":
		return FormatMD
	case "txt", "text":
		return FormatTXT
	case "html", "htm":
		return FormatHTML
	}

	if looksLikeMarkdown(string(sample)) {
		return FormatMD
	}

	return FormatTXT
}

// detectZipFormat distinguishes the OOXML family by filename extension.
// All three are zip containers with the same magic bytes.
func detectZipFormat(filename string) Format {
	switch strings.ToLower(extOf(filename)) {
	case "docx":
		return FormatDOCX
	case "xlsx":
		return FormatXLSX
	case "pptx":
		return FormatPPTX
	}
	return FormatUnknown
}

// ToMarkdown converts content to Markdown. When format is FormatUnknown the
// input is detected first; detection failing with no explicit format is an
// UnsupportedFormat error.
func (c *Converter) ToMarkdown(data []byte, format Format, filename string) (string, error) {
	if format == "" || format == FormatUnknown {
		format = DetectFormat(data, filename)
		if format == FormatUnknown {
			return "", fmt.Errorf("%w: detection failed for %q", ErrUnsupportedFormat, filename)
		}
	}

	var markdown string
	switch format {
	case FormatMD, FormatTXT:
		// Idempotent on markdown; plain text is already valid markdown.
		markdown = string(data)

	case FormatHTML:
		converted, err := htmltomarkdown.ConvertString(string(data))
		if err != nil {
			return "", fmt.Errorf("html conversion failed: %w", err)
		}
		markdown = converted

	case FormatPDF, FormatDOCX, FormatXLSX, FormatPPTX, FormatRTF:
		conv, ok := c.binary[format]
		if !ok {
			return "", fmt.Errorf("%w: no converter registered for %s", ErrUnsupportedFormat, format)
		}
		text, err := conv(data)
		if err != nil {
			return "", fmt.Errorf("%s conversion failed: %w", format, err)
		}
		markdown = text

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) > c.maxOutputBytes {
		return "", fmt.Errorf("converted content is %d bytes, maximum is %d",
			len(markdown), c.maxOutputBytes)
	}

	c.logger.Debug("converted document",
		"format", format,
		"input_bytes", len(data),
		"output_bytes", len(markdown),
	)

	return markdown, nil
}

// looksLikeHTML recognizes HTML by its opening tags, case-insensitively.
func looksLikeHTML(sample []byte) bool {
	trimmed := bytes.TrimLeft(sample, " \t\r\n\xef\xbb\xbf")
	lower := bytes.ToLower(trimmed)
	for _, prefix := range []string{"<!doctype html", "<html", "<head", "<body"} {
		if bytes.HasPrefix(lower, []byte(prefix)) {
			return true
		}
	}
	return false
}

// looksLikeMarkdown spots common markdown structure in a text sample.
func looksLikeMarkdown(sample string) bool {
	for _, line := range strings.Split(sample, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") ||
			strings.HasPrefix(trimmed, "## ") ||
			strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "```") {
			return true
		}
	}
	return false
}

// extOf returns the filename extension without the dot.
func extOf(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		return filename[idx+1:]
	}
	return ""
}
