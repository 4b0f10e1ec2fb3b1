package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPDFText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "whitespace and newlines",
			in:   "Prima riga\r\nSeconda    riga\r\n\r\n\r\nTerza riga con\tspazi\r\n  \r\nQuarta riga",
			want: "Prima riga\nSeconda riga\n\nTerza riga con spazi\n\nQuarta riga",
		},
		{
			name: "paragraph structure",
			in: strings.Join([]string{
				"INTRODUCTION",
				"",
				"Section 1: Overview",
				"This    is    the    first    paragraph   with    extra spaces.",
				"It continues on the next line with   more   spaces.",
				"",
				"",
				"Section 2: Details",
				"Another paragraph with relevant text.",
				"",
				"",
				"",
				"Conclusions",
			}, "\r\n"),
			want: strings.Join([]string{
				"INTRODUCTION",
				"",
				"Section 1: Overview",
				"This is the first paragraph with extra spaces.",
				"It continues on the next line with more spaces.",
				"",
				"Section 2: Details",
				"Another paragraph with relevant text.",
				"",
				"Conclusions",
			}, "\n"),
		},
		{
			name: "lone carriage returns and padding",
			in:   "\n\n  first\rsecond  \n\n",
			want: "first\nsecond",
		},
		{name: "empty", in: " \r\n\t ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanPDFText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "\r")
			assert.NotContains(t, got, "\n\n\n")
		})
	}
}

func TestParse_Text(t *testing.T) {
	f, err := New().Parse("refund-policy.txt", []byte("Refunds take five days."))
	require.NoError(t, err)

	assert.Equal(t, "refund-policy", f.Title)
	assert.Equal(t, "Refunds take five days.", f.Content)
	assert.Equal(t, CategoryFile, f.Category)
	assert.Equal(t, "uploaded_file_refund-policy.txt", f.Source)
}

func TestParse_Markdown(t *testing.T) {
	f, err := New().Parse("guide.md", []byte("---\ntitle: Support Guide\n---\n# Hours\n\nNine to five.\n"))
	require.NoError(t, err)

	assert.Equal(t, "Support Guide", f.Title)
	assert.Equal(t, "# Hours\n\nNine to five.", f.Content)
	assert.Equal(t, CategoryFile, f.Category)
	assert.Equal(t, "uploaded_file_guide.md", f.Source)
}

func TestParse_MarkdownWithoutHeadings(t *testing.T) {
	f, err := New().Parse("notes.markdown", []byte("Just a note."))
	require.NoError(t, err)
	assert.Equal(t, "notes", f.Title)
}

func TestParse_Unsupported(t *testing.T) {
	_, err := New().Parse("photo.png", []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParse_MalformedPDF(t *testing.T) {
	_, err := New().Parse("broken.pdf", []byte("%PDF-1.4 this is not really a pdf"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.txt")
	require.NoError(t, os.WriteFile(path, []byte("Question and answer."), 0o644))

	f, err := New().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "faq.txt", f.Name)
	assert.Equal(t, "faq", f.Title)

	_, err = New().LoadFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.txt": true, "b.MD": true, "c.pdf": true, "d.markdown": true,
		"e.docx": false, "f": false, "g.png": false,
	} {
		assert.Equal(t, want, Supported(name), name)
	}
}
