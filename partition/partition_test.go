package partition

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_Paragraphs(t *testing.T) {
	input := "First paragraph\ncontinues here.\n\n\nSecond paragraph.\n   \nThird."

	elems, errs := Collect(NewText().Partition(context.Background(), strings.NewReader(input)))
	require.Empty(t, errs)
	require.Len(t, elems, 3)

	assert.Equal(t, "First paragraph\ncontinues here.", elems[0].Text)
	assert.Equal(t, "Second paragraph.", elems[1].Text)
	assert.Equal(t, "Third.", elems[2].Text)

	assert.Equal(t, "paragraph", elems[0].Metadata[MetaElementType])
	assert.Equal(t, 0, elems[0].Metadata[MetaElementIndex])
	assert.Equal(t, 1, elems[0].Metadata[MetaLineStart])
	assert.Equal(t, 2, elems[2].Metadata[MetaElementIndex])
	assert.Equal(t, 7, elems[2].Metadata[MetaLineStart])
}

func TestText_Empty(t *testing.T) {
	elems, errs := Collect(NewText().Partition(context.Background(), strings.NewReader("\n  \n\n")))
	assert.Empty(t, elems)
	assert.Empty(t, errs)
}

func TestText_SplitsLongParagraphs(t *testing.T) {
	input := "First sentence is here. Second sentence is here. Third one."

	elems, errs := Collect(NewText(WithMaxChars(40)).Partition(context.Background(), strings.NewReader(input)))
	require.Empty(t, errs)
	require.Len(t, elems, 2)
	assert.Equal(t, "First sentence is here.", elems[0].Text)
	assert.Equal(t, "Second sentence is here. Third one.", elems[1].Text)
	assert.Equal(t, "paragraph_part", elems[0].Metadata[MetaElementType])
	assert.Equal(t, 1, elems[1].Metadata[MetaElementIndex])
}

func TestText_HardWrapsRunOnSentence(t *testing.T) {
	input := strings.Repeat("word ", 30) + strings.Repeat("x", 25)

	elems, errs := Collect(NewText(WithMaxChars(20)).Partition(context.Background(), strings.NewReader(input)))
	require.Empty(t, errs)
	require.NotEmpty(t, elems)
	for _, el := range elems {
		assert.LessOrEqual(t, len([]rune(el.Text)), 20, "piece %q too long", el.Text)
	}
}

func TestText_InvalidUTF8IsSkipped(t *testing.T) {
	input := "good one\n\nbad \xff\xfe bytes\n\ngood two"

	elems, errs := Collect(NewText().Partition(context.Background(), strings.NewReader(input)))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInvalidUTF8)
	assert.False(t, IsFatal(errs[0]))

	require.Len(t, elems, 2)
	assert.Equal(t, "good one", elems[0].Text)
	assert.Equal(t, "good two", elems[1].Text)
	// Skipped segment still consumes an index so ordinals stay stable
	assert.Equal(t, 2, elems[1].Metadata[MetaElementIndex])
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestText_ReadFailureIsFatal(t *testing.T) {
	elems, errs := Collect(NewText().Partition(context.Background(), io.MultiReader(strings.NewReader("partial\n"), failingReader{})))
	assert.Empty(t, elems)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrReadFailed)
	assert.True(t, IsFatal(errs[0]))
}

func TestText_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, errs := Collect(NewText().Partition(ctx, strings.NewReader("a\n\nb")))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.True(t, IsFatal(errs[0]))
}

func TestText_EarlyBreak(t *testing.T) {
	seen := 0
	for range NewText().Partition(context.Background(), strings.NewReader("a\n\nb\n\nc")) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestMarkdown_Headings(t *testing.T) {
	input := strings.Join([]string{
		"Intro text.",
		"",
		"# Overview",
		"Overview body.",
		"## Details ##",
		"Details body.",
		"",
		"```go",
		"x := 1",
		"",
		"# not a heading",
		"```",
	}, "\n")

	elems, errs := Collect(NewMarkdown().Partition(context.Background(), strings.NewReader(input)))
	require.Empty(t, errs)
	require.Len(t, elems, 4)

	assert.Equal(t, "Intro text.", elems[0].Text)
	assert.NotContains(t, elems[0].Metadata, MetaHeading)
	assert.Equal(t, "Overview body.", elems[1].Text)
	assert.Equal(t, "Overview", elems[1].Metadata[MetaHeading])
	assert.Equal(t, "Details", elems[2].Metadata[MetaHeading])
	assert.Contains(t, elems[3].Text, "# not a heading")
	assert.Equal(t, "Details", elems[3].Metadata[MetaHeading])
}

func TestAtxHeading(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"# Title", "Title", true},
		{"###### Deep", "Deep", true},
		{"####### Too deep", "", false},
		{"#hashtag", "", false},
		{"## Closed ##", "Closed", true},
		{"plain", "", false},
	}
	for _, tt := range tests {
		got, ok := atxHeading(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestHTML_StripsMarkup(t *testing.T) {
	input := `<html><head><title>Quarterly &amp; Annual</title><style>p{color:red}</style></head>
<body><script>alert("x")</script><!-- hidden -->
<h1>Revenue</h1><p>Revenue grew <b>12%</b>.</p><p>Costs&nbsp;fell.<br>Margins rose.</p></body></html>`

	elems, errs := Collect(NewHTML().Partition(context.Background(), strings.NewReader(input)))
	require.Empty(t, errs)
	require.Len(t, elems, 3)

	assert.Equal(t, "Revenue", elems[0].Text)
	assert.Equal(t, "Revenue grew 12%.", elems[1].Text)
	assert.Contains(t, elems[2].Text, "Margins rose.")
	for _, el := range elems {
		assert.Equal(t, "Quarterly & Annual", el.Metadata[MetaTitle])
		assert.NotContains(t, el.Text, "alert")
		assert.NotContains(t, el.Text, "hidden")
		assert.NotContains(t, el.Text, "color")
	}
}

func TestForFile(t *testing.T) {
	tests := []struct {
		name    string
		want    Partitioner
		wantErr bool
	}{
		{"notes.txt", &Text{}, false},
		{"README", &Text{}, false},
		{"guide.MD", &Markdown{}, false},
		{"page.html", &HTML{}, false},
		{"demo.pdf", nil, true},
		{"sheet.xlsx", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ForFile(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}
