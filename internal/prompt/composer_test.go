package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

func scored(segID, docID string, start, end int, text string, score float64) vectorstore.Scored {
	return vectorstore.Scored{
		Entry: vectorstore.Entry{
			SegmentID: segID,
			Meta: vectorstore.Metadata{
				DocumentID: docID,
				Title:      "Doc " + docID,
				Section:    "# Section",
				Start:      start,
				End:        end,
				Text:       text,
			},
		},
		Score: score,
	}
}

func TestCompose_DefaultTemplate(t *testing.T) {
	c := NewComposer(0)
	results := []vectorstore.Scored{
		scored("s1", "d1", 0, 40, "A penalty of 5% applies to late filings.", 0.9),
	}

	p, err := c.Compose("What is the penalty for late filing?", "", results)
	require.NoError(t, err)

	assert.Contains(t, p.Text, "What is the penalty for late filing?")
	assert.Contains(t, p.Text, "[1] Doc d1 (# Section):")
	assert.Contains(t, p.Text, "A penalty of 5% applies")
	require.Len(t, p.Segments, 1)
	assert.Equal(t, "s1", p.Segments[0].SegmentID)
}

func TestCompose_CategoryTemplateSelection(t *testing.T) {
	c := NewComposer(0)
	results := []vectorstore.Scored{
		scored("s1", "d1", 0, 10, "Tax text.", 0.9),
	}

	p, err := c.Compose("q", corpus.CategoryTax, results)
	require.NoError(t, err)
	assert.Contains(t, p.Text, "specializing in tax law")

	// Unknown categories fall back to the default template, never fail.
	p, err = c.Compose("q", "maritime", results)
	require.NoError(t, err)
	assert.NotContains(t, p.Text, "specializing")
	assert.Contains(t, p.Text, "You are a legal assistant.")
}

func TestCompose_EveryKnownCategoryHasTemplate(t *testing.T) {
	c := NewComposer(0)
	for _, cat := range corpus.KnownCategories() {
		_, ok := c.templates[cat]
		assert.True(t, ok, "category %q has no template", cat)
	}
}

func TestCompose_EmptyRetrievalTakesNoContextBranch(t *testing.T) {
	c := NewComposer(0)

	p, err := c.Compose("What is the penalty for late filing?", corpus.CategoryTax, nil)
	require.NoError(t, err, "empty retrieval must compose a valid prompt, not fail")

	assert.Contains(t, p.Text, "No relevant legal provisions were found")
	assert.Contains(t, p.Text, "What is the penalty for late filing?")
	assert.Empty(t, p.Segments)
}

func TestCompose_DeduplicatesOverlappingSegments(t *testing.T) {
	c := NewComposer(0)
	results := []vectorstore.Scored{
		scored("s1", "d1", 0, 100, "First version of the passage.", 0.9),
		scored("s2", "d1", 50, 150, "Overlapping version of the passage.", 0.8),
		scored("s3", "d1", 200, 300, "A different passage in the same document.", 0.7),
		scored("s4", "d2", 0, 100, "Same offsets in a different document.", 0.6),
	}

	p, err := c.Compose("q", "", results)
	require.NoError(t, err)

	ids := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		ids[i] = s.SegmentID
	}
	// s2 overlaps s1 within d1 and is lower-ranked: dropped. s3 is the
	// same document but disjoint; s4 overlaps offsets but another doc.
	assert.Equal(t, []string{"s1", "s3", "s4"}, ids)
}

func TestCompose_BudgetDropsLowestSimilarityFirst(t *testing.T) {
	c := NewComposer(100)
	long := strings.Repeat("x", 60)
	results := []vectorstore.Scored{
		scored("s1", "d1", 0, 60, long, 0.9),
		scored("s2", "d2", 0, 60, long, 0.8),
		scored("s3", "d3", 0, 60, long, 0.7),
	}

	p, err := c.Compose("q", "", results)
	require.NoError(t, err)

	// Only the top segment fits whole; the remaining 40 chars are below
	// the useful-truncation floor, so s2 and s3 are dropped entirely.
	require.Len(t, p.Segments, 1)
	assert.Equal(t, "s1", p.Segments[0].SegmentID)
}

func TestCompose_TruncatesAtSentenceBoundary(t *testing.T) {
	c := NewComposer(200)
	text := strings.Repeat("A complete legal sentence ends here. ", 10) // 370 chars
	results := []vectorstore.Scored{
		scored("s1", "d1", 0, len(text), text, 0.9),
	}

	p, err := c.Compose("q", "", results)
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)

	kept := p.Segments[0].Meta.Text
	assert.LessOrEqual(t, len(kept), 200)
	assert.True(t, strings.HasSuffix(kept, "ends here."),
		"truncation must land on a sentence boundary, got %q tail", kept[len(kept)-20:])
}

func TestCutAtSentence_NoBoundaryFallsBackToHardCut(t *testing.T) {
	text := strings.Repeat("y", 500)
	cut := cutAtSentence(text, 120)
	assert.Len(t, cut, 120)
}

func TestCutAtSentence_HardCutStaysValidUTF8(t *testing.T) {
	// Two-byte runes with no sentence boundary; an odd limit lands
	// mid-rune and must be floored to the rune start.
	text := strings.Repeat("à", 300)
	cut := cutAtSentence(text, 121)

	assert.True(t, utf8.ValidString(cut), "hard cut sliced through a rune: %q tail", cut[len(cut)-4:])
	assert.LessOrEqual(t, len(cut), 121)
	assert.Len(t, cut, 120)
}
