package splitter

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/bull/speechqa/internal/loader"
)

// Section is the text under one H1 or H2 heading, heading line included.
type Section struct {
	HeaderPath string // Hierarchy: "# Doc Title > ## Section Name"
	Content    string
}

// Markdown splits at H1 and H2 boundaries, then runs each section through the
// character splitter so no chunk crosses a section or exceeds the size bound.
type Markdown struct {
	parser    goldmark.Markdown
	character *Character
}

// NewMarkdown creates a markdown splitter on top of character.
func NewMarkdown(character *Character) *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{
		parser:    md,
		character: character,
	}
}

// SplitDocument implements Splitter.
func (m *Markdown) SplitDocument(doc *loader.Document) ([]Chunk, error) {
	sections, err := m.Sections([]byte(doc.Content))
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, section := range sections {
		texts, err := m.character.SplitText(section.Content)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, toChunks(doc.Source, texts, len(chunks))...)
	}
	return chunks, nil
}

// Sections returns the document's sections in order. Text before the first
// heading becomes a section with an empty header path.
func (m *Markdown) Sections(source []byte) ([]Section, error) {
	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	type boundary struct {
		path  string
		start int
	}
	var bounds []boundary
	var walk func(items toc.Items, ancestors []string)
	walk = func(items toc.Items, ancestors []string) {
		for _, item := range items {
			path := append(append([]string(nil), ancestors...), string(item.Title))
			if heading := findHeadingByID(doc, string(item.ID)); heading != nil && heading.Lines().Len() > 0 {
				bounds = append(bounds, boundary{
					path:  formatHeaderPath(path),
					start: lineStart(source, heading.Lines().At(0).Start),
				})
			}
			walk(item.Items, path)
		}
	}
	walk(tree.Items, nil)
	slices.SortStableFunc(bounds, func(a, b boundary) int { return a.start - b.start })

	var sections []Section
	firstStart := len(source)
	if len(bounds) > 0 {
		firstStart = bounds[0].start
	}
	if preamble := strings.TrimSpace(string(source[:firstStart])); preamble != "" {
		sections = append(sections, Section{Content: preamble})
	}

	for i, b := range bounds {
		end := len(source)
		if i+1 < len(bounds) {
			end = bounds[i+1].start
		}
		if end < b.start {
			continue
		}
		content := strings.TrimSpace(string(source[b.start:end]))
		if content == "" {
			continue
		}
		sections = append(sections, Section{HeaderPath: b.path, Content: content})
	}
	return sections, nil
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment)
	}
	return strings.Join(parts, " > ")
}

// findHeadingByID locates a heading node by its auto-generated ID.
func findHeadingByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok {
				if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart returns the offset of the beginning of the line containing pos.
func lineStart(source []byte, pos int) int {
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}
