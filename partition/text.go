package partition

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"strings"
	"unicode/utf8"
)

// maxLineBytes bounds a single physical line.
const maxLineBytes = 1 << 20

// Text partitions plain text into paragraphs separated by blank lines.
type Text struct {
	opts options
}

var _ Partitioner = (*Text)(nil)

// NewText creates a plain text partitioner.
func NewText(opts ...Option) *Text {
	return &Text{opts: buildOptions(opts)}
}

// Partition yields one element per paragraph, splitting long paragraphs at sentence boundaries.
func (t *Text) Partition(ctx context.Context, r io.Reader) iter.Seq2[Element, error] {
	return paragraphScanner{opts: t.opts}.run(ctx, r)
}

// paragraphScanner is the line-oriented engine shared by all partitioners.
type paragraphScanner struct {
	opts     options
	markdown bool
	base     map[string]any
}

func (p paragraphScanner) run(ctx context.Context, r io.Reader) iter.Seq2[Element, error] {
	return func(yield func(Element, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		var (
			buf       []string
			lineNo    int
			startLine int
			index     int
			heading   string
			inFence   bool
		)

		flush := func() bool {
			if len(buf) == 0 {
				return true
			}
			text := strings.TrimSpace(strings.Join(buf, "\n"))
			buf = buf[:0]
			if text == "" {
				return true
			}
			if !utf8.ValidString(text) {
				idx := index
				index++
				return yield(Element{}, fmt.Errorf("%w: element %d at line %d", ErrInvalidUTF8, idx, startLine))
			}

			pieces, typ := []string{text}, "paragraph"
			if utf8.RuneCountInString(text) > p.opts.maxChars {
				pieces, typ = splitLong(text, p.opts.maxChars), "paragraph_part"
			}
			for _, piece := range pieces {
				if !yield(p.element(piece, typ, index, startLine, heading), nil) {
					return false
				}
				index++
			}
			return true
		}

		for sc.Scan() {
			lineNo++
			if err := ctx.Err(); err != nil {
				yield(Element{}, err)
				return
			}
			line := sc.Text()
			trimmed := strings.TrimSpace(line)

			if p.markdown {
				if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
					inFence = !inFence
				} else if !inFence {
					if h, ok := atxHeading(trimmed); ok {
						if !flush() {
							return
						}
						heading = h
						continue
					}
				}
			}

			if trimmed == "" && !inFence {
				if !flush() {
					return
				}
				continue
			}
			if len(buf) == 0 {
				startLine = lineNo
			}
			buf = append(buf, line)
		}

		if err := sc.Err(); err != nil {
			yield(Element{}, fmt.Errorf("%w: %w", ErrReadFailed, err))
			return
		}
		flush()
	}
}

func (p paragraphScanner) element(text, typ string, index, line int, heading string) Element {
	meta := make(map[string]any, len(p.base)+4)
	maps.Copy(meta, p.base)
	meta[MetaElementType] = typ
	meta[MetaElementIndex] = index
	meta[MetaLineStart] = line
	if heading != "" {
		meta[MetaHeading] = heading
	}
	return Element{Text: text, Metadata: meta}
}

// splitLong groups sentences into pieces of at most max runes.
func splitLong(text string, max int) []string {
	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	push := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, s := range sentences(text) {
		for _, piece := range hardWrap(s, max) {
			n := utf8.RuneCountInString(piece)
			if curLen > 0 && curLen+1+n > max {
				push()
			}
			if curLen > 0 {
				cur.WriteByte(' ')
				curLen++
			}
			cur.WriteString(piece)
			curLen += n
		}
	}
	push()
	return out
}

// sentences cuts text after terminal punctuation followed by whitespace.
// Only ASCII bytes are inspected, which never occur inside multi-byte runes.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !isTerminal(text[i]) {
			continue
		}
		j := i + 1
		for j < len(text) && (isTerminal(text[j]) || isCloser(text[j])) {
			j++
		}
		if j < len(text) && !isSpace(text[j]) {
			continue
		}
		if s := strings.TrimSpace(text[start:j]); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// hardWrap breaks a single over-long sentence at word boundaries, and words at rune boundaries.
func hardWrap(s string, max int) []string {
	if utf8.RuneCountInString(s) <= max {
		return []string{s}
	}
	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	push := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, w := range strings.Fields(s) {
		for utf8.RuneCountInString(w) > max {
			push()
			r := []rune(w)
			out = append(out, string(r[:max]))
			w = string(r[max:])
		}
		n := utf8.RuneCountInString(w)
		if curLen > 0 && curLen+1+n > max {
			push()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(w)
		curLen += n
	}
	push()
	return out
}

func isTerminal(c byte) bool { return c == '.' || c == '!' || c == '?' }
func isCloser(c byte) bool   { return c == '"' || c == '\'' || c == ')' || c == ']' }
func isSpace(c byte) bool    { return c == ' ' || c == '\n' || c == '\t' || c == '\r' }
