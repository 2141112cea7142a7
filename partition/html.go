package partition

import (
	"context"
	"fmt"
	"html"
	"io"
	"iter"
	"regexp"
	"strings"
)

// HTML strips markup and partitions the remaining text.
// The whole document is buffered, since tag stripping needs complete elements.
type HTML struct {
	opts options
}

var _ Partitioner = (*HTML)(nil)

// NewHTML creates an HTML partitioner.
func NewHTML(opts ...Option) *HTML {
	return &HTML{opts: buildOptions(opts)}
}

// Partition yields paragraphs of visible text. Every element carries the page title when present.
func (h *HTML) Partition(ctx context.Context, r io.Reader) iter.Seq2[Element, error] {
	return func(yield func(Element, error) bool) {
		raw, err := io.ReadAll(r)
		if err != nil {
			yield(Element{}, fmt.Errorf("%w: %w", ErrReadFailed, err))
			return
		}
		content := string(raw)

		base := map[string]any{}
		if title := extractTitle(content); title != "" {
			base[MetaTitle] = title
		}

		scanner := paragraphScanner{opts: h.opts, base: base}
		for el, err := range scanner.run(ctx, strings.NewReader(stripHTML(content))) {
			if !yield(el, err) {
				return
			}
		}
	}
}

var (
	titleTag      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropTags      = regexp.MustCompile(`(?is)<(script|style|noscript|svg|template)[^>]*>.*?</(script|style|noscript|svg|template)>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|ul|ol|tr|table|blockquote|pre|section|article|header|footer|main|nav)[^>]*>`)
	lineBreaks    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

func extractTitle(content string) string {
	m := titleTag.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

// stripHTML keeps block structure as blank lines so paragraphs survive.
func stripHTML(content string) string {
	content = dropTags.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = blockElements.ReplaceAllString(content, "\n\n")
	content = lineBreaks.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	content = strings.Join(lines, "\n")
	return strings.TrimSpace(multiNewlines.ReplaceAllString(content, "\n\n"))
}
