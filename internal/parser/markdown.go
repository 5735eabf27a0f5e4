package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jkeller/pilot/internal/models"
)

// MarkdownParser parses scenario definitions embedded in Markdown documents.
// The scenario itself lives in the first fenced ```yaml code block; the
// surrounding prose is free-form documentation for humans and for the LLM
// evaluation step.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a MarkdownParser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

// Parse extracts the scenario YAML block from a Markdown document and decodes
// it. When the document title (first level-1 heading) is present it is used as
// the scenario name unless the YAML block sets one.
func (p *MarkdownParser) Parse(r io.Reader) (*models.Scenario, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	reader := text.NewReader(content)
	doc := p.markdown.Parser().Parse(reader)

	var yamlBlock []byte
	var title string

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && title == "" {
				title = string(node.Text(content))
			}
		case *ast.FencedCodeBlock:
			lang := string(node.Language(content))
			if (lang == "yaml" || lang == "yml") && yamlBlock == nil {
				var buf bytes.Buffer
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					segment := lines.At(i)
					buf.Write(segment.Value(content))
				}
				yamlBlock = buf.Bytes()
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown AST: %w", err)
	}

	if yamlBlock == nil {
		return nil, fmt.Errorf("no ```yaml scenario block found in markdown document")
	}

	scenario, err := NewYAMLParser().Parse(bytes.NewReader(yamlBlock))
	if err != nil {
		return nil, err
	}

	if scenario.Name == "" {
		scenario.Name = title
	}
	if scenario.Description == "" && title != "" {
		scenario.Description = title
	}

	return scenario, nil
}
