package converter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		want     Format
	}{
		{
			name: "pdf magic bytes",
			data: []byte("%PDF-1.7\n..."),
			want: FormatPDF,
		},
		{
			name: "rtf magic bytes",
			data: []byte("{\\rtf1\\ansi..."),
			want: FormatRTF,
		},
		{
			name:     "docx zip container",
			data:     []byte("PK\x03\x04rest-of-zip"),
			filename: "portaria.docx",
			want:     FormatDOCX,
		},
		{
			name:     "xlsx zip container",
			data:     []byte("PK\x03\x04rest-of-zip"),
			filename: "planilha.XLSX",
			want:     FormatXLSX,
		},
		{
			name:     "pptx zip container",
			data:     []byte("PK\x03\x04rest-of-zip"),
			filename: "slides.pptx",
			want:     FormatPPTX,
		},
		{
			name: "zip without known extension",
			data: []byte("PK\x03\x04rest-of-zip"),
			want: FormatUnknown,
		},
		{
			name: "html doctype",
			data: []byte("<!DOCTYPE html><html><body>oi</body></html>"),
			want: FormatHTML,
		},
		{
			name: "html tag with leading whitespace",
			data: []byte("\n  <html lang=\"pt-BR\">"),
			want: FormatHTML,
		},
		{
			name:     "markdown by extension",
			data:     []byte("conteudo sem estrutura"),
			filename: "lei.md",
			want:     FormatMD,
		},
		{
			name: "markdown by structure",
			data: []byte("# Título\n\nAlgum texto.\n"),
			want: FormatMD,
		},
		{
			name:     "plain text by extension",
			data:     []byte("# poderia ser markdown"),
			filename: "notas.txt",
			want:     FormatTXT,
		},
		{
			name: "plain text fallback",
			data: []byte("apenas um parágrafo corrido de texto."),
			want: FormatTXT,
		},
		{
			name: "binary garbage",
			data: []byte{0xff, 0xfe, 0x00, 0x01, 0x02, 0x80},
			want: FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data, tt.filename))
		})
	}
}

func TestToMarkdownIdempotentOnMarkdown(t *testing.T) {
	c := New(Config{})

	input := "# Título\n\nParágrafo com **negrito**.\n"
	out, err := c.ToMarkdown([]byte(input), FormatMD, "")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(input), out)
}

func TestToMarkdownFromHTML(t *testing.T) {
	c := New(Config{})

	html := "<html><body><h1>Capítulo I</h1><p>Disposições <strong>gerais</strong>.</p></body></html>"
	out, err := c.ToMarkdown([]byte(html), FormatHTML, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Capítulo I")
	assert.Contains(t, out, "**gerais**")
	assert.NotContains(t, out, "<p>")
}

func TestToMarkdownDetectsWhenFormatOmitted(t *testing.T) {
	c := New(Config{})

	out, err := c.ToMarkdown([]byte("## Seção\n\ntexto"), FormatUnknown, "")
	require.NoError(t, err)
	assert.Contains(t, out, "## Seção")
}

func TestToMarkdownUnsupported(t *testing.T) {
	c := New(Config{})

	t.Run("undetectable input", func(t *testing.T) {
		_, err := c.ToMarkdown([]byte{0xff, 0xfe, 0x00}, FormatUnknown, "")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("binary format without converter", func(t *testing.T) {
		_, err := c.ToMarkdown([]byte("%PDF-1.7"), FormatPDF, "doc.pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestToMarkdownBinaryConverter(t *testing.T) {
	c := New(Config{
		BinaryConverters: map[Format]BinaryConverter{
			FormatPDF: func(data []byte) (string, error) {
				return "texto extraído do pdf", nil
			},
		},
	})

	out, err := c.ToMarkdown([]byte("%PDF-1.7\nbinary"), FormatUnknown, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "texto extraído do pdf", out)
}

func TestToMarkdownSizeCap(t *testing.T) {
	c := New(Config{MaxOutputBytes: 64})

	_, err := c.ToMarkdown([]byte(strings.Repeat("a", 100)), FormatTXT, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum")
}
