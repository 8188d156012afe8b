package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
)

func testDoc(text string) corpus.Document {
	return corpus.Document{
		ID:       "doc-1",
		Title:    "Tax Code",
		Source:   "tax/tax-code.md",
		Category: "tax",
		Text:     text,
	}
}

func TestChunk_EmptyDocument(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)

	_, err = c.Chunk(testDoc("   \n\n  "))
	require.Error(t, err)
	assert.ErrorIs(t, err, corpus.ErrInvalidDocument)
}

func TestChunk_InvalidConfig(t *testing.T) {
	_, err := New(Config{MaxChars: 100, Overlap: 100})
	assert.Error(t, err, "overlap equal to max must be rejected")

	_, err = New(Config{MaxChars: 100, Overlap: -1})
	assert.Error(t, err, "negative overlap must be rejected")
}

func TestChunk_SingleSmallDocument(t *testing.T) {
	c, err := New(Config{MaxChars: 500, Overlap: 50})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc("A short legal provision. It fits in one segment."))
	require.NoError(t, err)
	require.Len(t, segs, 1)

	assert.Equal(t, 0, segs[0].Index)
	assert.Equal(t, "doc-1", segs[0].DocumentID)
	assert.Equal(t, 0, segs[0].Start)
	assert.Equal(t, "A short legal provision. It fits in one segment.", segs[0].Text)
}

func TestChunk_OffsetsReconstructText(t *testing.T) {
	text := strings.Repeat("The taxpayer shall file a return before the deadline. ", 40)
	doc := testDoc(text)

	c, err := New(Config{MaxChars: 300, Overlap: 60})
	require.NoError(t, err)

	segs, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(segs), 1, "long text should produce multiple segments")

	normalized := corpus.NormalizeText(text)
	for i, seg := range segs {
		assert.Equal(t, normalized[seg.Start:seg.End], seg.Text, "segment %d text must match its offsets", i)
		assert.LessOrEqual(t, seg.End-seg.Start, 300, "segment %d exceeds max size", i)
	}

	// Coverage: each segment starts at or before the previous one ends.
	assert.Equal(t, 0, segs[0].Start)
	for i := 1; i < len(segs); i++ {
		assert.LessOrEqual(t, segs[i].Start, segs[i-1].End, "gap between segments %d and %d", i-1, i)
	}
	assert.Equal(t, len(normalized), segs[len(segs)-1].End, "last segment must reach end of text")
}

func TestChunk_OverlapBounded(t *testing.T) {
	text := strings.Repeat("Short sentence here. ", 100)
	c, err := New(Config{MaxChars: 200, Overlap: 40})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)

	for i := 1; i < len(segs); i++ {
		overlap := segs[i-1].End - segs[i].Start
		assert.GreaterOrEqual(t, overlap, 0)
		assert.LessOrEqual(t, overlap, 40, "overlap between %d and %d exceeds configured bound", i-1, i)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Repeat("A provision of the labor code applies. ", 60)
	c, err := New(Config{MaxChars: 250, Overlap: 50})
	require.NoError(t, err)

	first, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	second, err := c.Chunk(testDoc(text))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Start, second[i].Start)
		assert.Equal(t, first[i].End, second[i].End)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Section, second[i].Section)
	}
}

func TestChunk_MarkdownSections(t *testing.T) {
	text := `# Tax Code

General provisions of the tax code.

## Late Filing

A penalty applies to late filings.

## Deductions

Standard deductions are defined here.
`

	c, err := New(Config{MaxChars: 2000, Overlap: 100})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, "# Tax Code", segs[0].Section)
	assert.Contains(t, segs[0].Text, "General provisions")

	assert.Equal(t, "# Tax Code > ## Late Filing", segs[1].Section)
	assert.Contains(t, segs[1].Text, "penalty applies")

	assert.Equal(t, "# Tax Code > ## Deductions", segs[2].Section)
	assert.Contains(t, segs[2].Text, "Standard deductions")

	// Sections must not duplicate each other's content.
	assert.NotContains(t, segs[0].Text, "penalty applies")
	assert.NotContains(t, segs[1].Text, "Standard deductions")
}

func TestChunk_PreambleBeforeFirstHeading(t *testing.T) {
	text := `Issued by the ministry in 2024.

# Traffic Law

Speed limits are defined per road class.
`

	c, err := New(Config{MaxChars: 2000, Overlap: 0})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "", segs[0].Section)
	assert.Contains(t, segs[0].Text, "Issued by the ministry")
	assert.Equal(t, "# Traffic Law", segs[1].Section)
}

func TestChunk_PlainTextNoHeadings(t *testing.T) {
	text := "Article 1. Scope of application. Article 2. Definitions apply throughout."

	c, err := New(Config{MaxChars: 2000, Overlap: 0})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "", segs[0].Section)
	assert.Equal(t, text, segs[0].Text)
}

func TestChunk_OversizedSentenceHardSplit(t *testing.T) {
	// One sentence far beyond the budget, no terminator until the end.
	text := strings.Repeat("clause and ", 100) + "end."

	c, err := New(Config{MaxChars: 200, Overlap: 20})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)

	for i, seg := range segs {
		assert.LessOrEqual(t, seg.End-seg.Start, 200, "segment %d exceeds max size", i)
	}
	assert.Equal(t, 0, segs[0].Start)
	for i := 1; i < len(segs); i++ {
		assert.LessOrEqual(t, segs[i].Start, segs[i-1].End)
	}
}

func TestChunk_MultibyteTextStaysValidUTF8(t *testing.T) {
	// Accented runes and no sentence terminators, forcing hard splits
	// whose raw byte offsets would land mid-rune.
	text := strings.TrimSpace(strings.Repeat("người nộp thuế ", 100))

	c, err := New(Config{MaxChars: 200, Overlap: 40})
	require.NoError(t, err)

	segs, err := c.Chunk(testDoc(text))
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)

	for i, seg := range segs {
		assert.True(t, utf8.ValidString(seg.Text), "segment %d is not valid UTF-8", i)
		assert.Equal(t, text[seg.Start:seg.End], seg.Text, "segment %d offsets do not reconstruct the text", i)
		assert.LessOrEqual(t, seg.End-seg.Start, 200, "segment %d exceeds max size", i)
	}
	assert.Equal(t, 0, segs[0].Start)
	assert.Equal(t, len(text), segs[len(segs)-1].End)
	for i := 1; i < len(segs); i++ {
		assert.LessOrEqual(t, segs[i].Start, segs[i-1].End, "gap before segment %d", i)
	}
}

func TestSentenceSpans_Contiguous(t *testing.T) {
	text := "First. Second! Third? Fourth"
	spans := sentenceSpans(text, 0, len(text))

	require.NotEmpty(t, spans)
	assert.Equal(t, 0, spans[0][0])
	for i := 1; i < len(spans); i++ {
		assert.Equal(t, spans[i-1][1], spans[i][0], "spans must abut exactly")
	}
	assert.Equal(t, len(text), spans[len(spans)-1][1])
}
