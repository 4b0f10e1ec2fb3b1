// Package markdown extracts the title and heading outline of markdown
// files so they can be ingested with a meaningful title.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
	"gopkg.in/yaml.v3"
)

// Heading is one entry of a document outline.
type Heading struct {
	Level int    // Depth in the outline, 1 for top-level headings
	Title string // Heading text
	Path  string // Hierarchy: "Getting Started > Installation"
}

// Document is a parsed markdown file.
type Document struct {
	Title       string    // Front matter title, else the first heading
	Description string    // Front matter description, if any
	Outline     []Heading // Headings down to MaxOutlineDepth, in order
	Body        string    // Source without front matter, trimmed
}

// MaxOutlineDepth is the deepest heading level kept in the outline.
const MaxOutlineDepth = 3

// Parser parses markdown files.
type Parser struct {
	md goldmark.Markdown
}

// NewParser creates a new parser configured with goldmark.
func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Parser{md: md}
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Parse reads source. Malformed front matter is an error; a document
// without headings has an empty outline.
func (p *Parser) Parse(source []byte) (*Document, error) {
	fm, body, err := splitFrontMatter(source)
	if err != nil {
		return nil, err
	}

	root := p.md.Parser().Parse(text.NewReader(body))
	tree, err := toc.Inspect(root, body,
		toc.MinDepth(1),
		toc.MaxDepth(MaxOutlineDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	doc := &Document{
		Title:       fm.Title,
		Description: fm.Description,
		Body:        strings.TrimSpace(string(body)),
	}
	collectOutline(tree.Items, nil, &doc.Outline)

	if doc.Title == "" {
		doc.Title = firstHeading(root, body)
	}
	return doc, nil
}

// splitFrontMatter separates a leading "---" YAML block from the body.
func splitFrontMatter(source []byte) (frontMatter, []byte, error) {
	var fm frontMatter
	normalized := bytes.ReplaceAll(source, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return fm, normalized, nil
	}
	rest := normalized[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm, normalized, nil
	}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return fm, nil, fmt.Errorf("parse front matter: %w", err)
	}
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return fm, body, nil
}

// collectOutline walks TOC items depth first, building hierarchy paths.
func collectOutline(items toc.Items, ancestors []string, out *[]Heading) {
	for _, item := range items {
		title := string(item.Title)
		path := append(append([]string(nil), ancestors...), title)
		if title != "" {
			*out = append(*out, Heading{
				Level: len(path),
				Title: title,
				Path:  formatHeaderPath(path),
			})
		}
		if len(item.Items) > 0 {
			collectOutline(item.Items, path, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "Installation > Prerequisites"
func formatHeaderPath(path []string) string {
	var parts []string
	for _, segment := range path {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, " > ")
}

// firstHeading returns the text of the first heading of any level.
func firstHeading(root ast.Node, source []byte) string {
	var title string
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			title = strings.TrimSpace(string(headingSource(n, source)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// headingSource returns the raw source lines of a heading.
func headingSource(n ast.Node, source []byte) []byte {
	lines := n.Lines()
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.Bytes()
}
