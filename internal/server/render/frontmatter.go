package render

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// ErrFrontMatter is returned when a delimited header is not valid YAML.
var ErrFrontMatter = errors.New("invalid front matter")

// FrontMatter is the optional YAML header of a page.
type FrontMatter struct {
	Title      string   `yaml:"title" json:"title,omitempty"`
	Categories []string `yaml:"categories" json:"categories,omitempty"`
}

// SplitFrontMatter separates a leading "---" delimited YAML block from the
// body. Without a header the whole input is returned as body.
func SplitFrontMatter(src []byte) (*FrontMatter, []byte, error) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	first, rest, ok := cutLine(src)
	if !ok || string(bytes.TrimRight(first, " \t\r")) != frontMatterDelimiter {
		return nil, src, nil
	}

	var header []byte
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = cutLine(rest)
		if string(bytes.TrimRight(line, " \t\r")) == frontMatterDelimiter {
			fm := &FrontMatter{}
			if err := yaml.Unmarshal(header, fm); err != nil {
				return nil, src, fmt.Errorf("%w: %w", ErrFrontMatter, err)
			}
			return fm, rest, nil
		}
		header = append(header, line...)
		header = append(header, '\n')
	}
	// No closing delimiter: not front matter.
	return nil, src, nil
}

func cutLine(b []byte) (line, rest []byte, found bool) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, len(b) > 0
}
