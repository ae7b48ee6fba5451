// Package render turns stored page bytes into HTML fragments. It never
// modifies the stored content; a failed render is reported to the caller.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"path"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Format names a supported input format.
type Format string

const (
	Markdown Format = "markdown"
	HTML     Format = "html"
	Text     Format = "text"
	Code     Format = "code"
)

// ErrUnsupportedFormat is returned for a format the renderer does not know.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Formats lists every supported format.
func Formats() []Format {
	return []Format{Markdown, HTML, Text, Code}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case Markdown, HTML, Text, Code:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFor picks a format from a file name.
func FormatFor(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return Markdown
	case ".html", ".htm":
		return HTML
	case ".txt", ".text", "":
		return Text
	}
	if lexers.Match(path.Base(name)) != nil {
		return Code
	}
	return Text
}

// Document is a rendered page.
type Document struct {
	FrontMatter *FrontMatter
	HTML        []byte
}

// Renderer renders pages. The zero value is not usable; call New.
type Renderer struct {
	style string
}

// New returns a renderer that highlights code with the named chroma style.
func New(style string) *Renderer {
	if style == "" {
		style = "github"
	}
	return &Renderer{style: style}
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func markdownEngine() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
				extension.DefinitionList,
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		)
	})
	return markdown
}

// Render converts src in format f to HTML. name is used to pick a lexer for
// Code and may be empty otherwise.
func (r *Renderer) Render(f Format, name string, src []byte) (*Document, error) {
	switch f {
	case Markdown:
		fm, body, err := SplitFrontMatter(src)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := markdownEngine().Convert(body, &buf); err != nil {
			return nil, fmt.Errorf("markdown: %w", err)
		}
		return &Document{FrontMatter: fm, HTML: buf.Bytes()}, nil
	case HTML:
		fm, body, err := SplitFrontMatter(src)
		if err != nil {
			return nil, err
		}
		return &Document{FrontMatter: fm, HTML: body}, nil
	case Text:
		return &Document{HTML: []byte("<pre>" + html.EscapeString(string(src)) + "</pre>")}, nil
	case Code:
		out, err := r.highlight(name, src)
		if err != nil {
			return nil, err
		}
		return &Document{HTML: out}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

func (r *Renderer) highlight(name string, src []byte) ([]byte, error) {
	lexer := lexers.Match(path.Base(name))
	if lexer == nil {
		lexer = lexers.Analyse(string(src))
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(r.style)
	if style == nil {
		style = styles.Fallback
	}

	it, err := lexer.Tokenise(nil, string(src))
	if err != nil {
		return nil, fmt.Errorf("highlight: %w", err)
	}
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.TabWidth(4), chromahtml.WithLineNumbers(true))
	if err := formatter.Format(&buf, style, it); err != nil {
		return nil, fmt.Errorf("highlight: %w", err)
	}
	return buf.Bytes(), nil
}
