package partition

import (
	"context"
	"io"
	"iter"
	"strings"
)

// Markdown partitions Markdown into sections at ATX headings, then paragraphs.
// Fenced code blocks are kept whole.
type Markdown struct {
	opts options
}

var _ Partitioner = (*Markdown)(nil)

// NewMarkdown creates a Markdown partitioner.
func NewMarkdown(opts ...Option) *Markdown {
	return &Markdown{opts: buildOptions(opts)}
}

// Partition yields paragraphs tagged with the nearest preceding heading.
func (m *Markdown) Partition(ctx context.Context, r io.Reader) iter.Seq2[Element, error] {
	return paragraphScanner{opts: m.opts, markdown: true}.run(ctx, r)
}

// atxHeading parses "# Title" style lines. Trailing closing hashes are dropped.
func atxHeading(line string) (string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return "", false
	}
	rest := line[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSpace(strings.TrimRight(rest, "#"))
	return rest, true
}
