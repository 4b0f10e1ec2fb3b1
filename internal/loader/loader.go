// Package loader turns files into ingestable documents.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bull/knowledge-rag/internal/markdown"
)

// Categories and source prefixes assigned to uploaded files.
const (
	CategoryPDF  = "pdf_upload"
	CategoryFile = "file_upload"

	pdfSourcePrefix  = "uploaded_pdf_"
	fileSourcePrefix = "uploaded_file_"
)

// ErrUnsupported is returned for file types the loader cannot read.
var ErrUnsupported = errors.New("unsupported file type")

// File is a loaded document ready for ingestion.
type File struct {
	Name     string // Base name of the file
	Title    string
	Content  string
	Category string
	Source   string
}

// Loader reads text, markdown and PDF files.
type Loader struct {
	md *markdown.Parser
}

// New creates a Loader.
func New() *Loader {
	return &Loader{md: markdown.NewParser()}
}

// Supported reports whether name has an extension the loader reads.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

// LoadFile reads the file at path.
func (l *Loader) LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.Parse(filepath.Base(path), data)
}

// Parse builds a File from the name and raw bytes of an upload.
func (l *Loader) Parse(name string, data []byte) (*File, error) {
	f := &File{
		Name:     name,
		Title:    strings.TrimSuffix(name, filepath.Ext(name)),
		Category: CategoryFile,
		Source:   fileSourcePrefix + name,
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err := ExtractPDFText(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from %s: %w", name, err)
		}
		f.Content = CleanPDFText(text)
		f.Category = CategoryPDF
		f.Source = pdfSourcePrefix + name
	case ".md", ".markdown":
		doc, err := l.md.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		f.Content = doc.Body
		if doc.Title != "" {
			f.Title = doc.Title
		}
	case ".txt", ".text":
		f.Content = string(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	return f, nil
}

// ExtractPDFText returns the plain text of every page, pages separated by
// a blank line.
func ExtractPDFText(r io.ReaderAt, size int64) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", err
	}

	fonts := make(map[string]*pdf.Font)
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(content) != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLineRuns   = regexp.MustCompile(`\n{3,}`)
)

// CleanPDFText normalizes extracted PDF text: line endings become "\n",
// whitespace runs inside a line collapse to one space, lines are trimmed,
// runs of blank lines collapse to one and the result is trimmed.
func CleanPDFText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
