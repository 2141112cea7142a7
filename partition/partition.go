// Package partition splits raw documents into text elements ready for embedding.
//
// Partitioners are lazy: Partition returns an iter.Seq2 that reads the
// underlying io.Reader as it is consumed. A sequence is finite and cannot be
// restarted. Errors for a single segment (for example invalid UTF-8) are
// yielded in place of that element and iteration continues; errors wrapping
// ErrReadFailed or a context error end the sequence.
package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned by ForFile for unknown document types.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidUTF8 marks a segment that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("segment is not valid UTF-8")

	// ErrReadFailed wraps failures of the underlying reader.
	ErrReadFailed = errors.New("reading document failed")
)

// Metadata keys set on every element.
const (
	MetaElementType  = "element_type"
	MetaElementIndex = "element_index"
	MetaLineStart    = "line_start"
	MetaHeading      = "heading"
	MetaTitle        = "title"
)

// DefaultMaxChars is the size above which a paragraph is split at sentence boundaries.
const DefaultMaxChars = 1500

// Element is one segment of a document.
type Element struct {
	Text     string
	Metadata map[string]any
}

// Partitioner turns a raw document into a lazy sequence of elements.
type Partitioner interface {
	Partition(ctx context.Context, r io.Reader) iter.Seq2[Element, error]
}

// Option configures a partitioner.
type Option func(*options)

type options struct {
	maxChars int
}

// WithMaxChars sets the paragraph size limit. Values below 1 keep the default.
func WithMaxChars(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxChars = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxChars: DefaultMaxChars}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ForFile selects a partitioner from the file extension.
func ForFile(name string, opts ...Option) (Partitioner, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case "", ".txt", ".text", ".log":
		return NewText(opts...), nil
	case ".md", ".markdown":
		return NewMarkdown(opts...), nil
	case ".html", ".htm", ".xhtml":
		return NewHTML(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Collect drains a sequence, returning elements and per-segment errors separately.
// It stops at the first error that ends the sequence.
func Collect(seq iter.Seq2[Element, error]) ([]Element, []error) {
	var elems []Element
	var errs []error
	for el, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		elems = append(elems, el)
	}
	return elems, errs
}

// IsFatal reports whether err ends a partition sequence rather than skipping one segment.
func IsFatal(err error) bool {
	return errors.Is(err, ErrReadFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
