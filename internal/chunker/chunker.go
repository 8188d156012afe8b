// Package chunker splits legal documents into bounded, overlapping
// segments while preserving byte offsets and section headings for
// citation reconstruction.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
)

const (
	// DefaultMaxChars bounds segment size. Roughly 300 tokens of legal
	// prose, small enough to keep several segments in a prompt budget.
	DefaultMaxChars = 1200

	// DefaultOverlap is the context carried between consecutive segments.
	DefaultOverlap = 200
)

// Config controls segment sizing. Overlap must be non-negative and
// strictly less than MaxChars.
type Config struct {
	MaxChars int
	Overlap  int
}

// Chunker produces a deterministic, finite segment sequence for a
// document: identical input and configuration always yield identical
// segments (ids aside).
type Chunker struct {
	cfg    Config
	parser goldmark.Markdown
}

// New creates a Chunker, applying defaults for zero-valued fields.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChars == 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxChars < 0 {
		return nil, fmt.Errorf("max chars must be positive, got %d", cfg.MaxChars)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChars {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", cfg.MaxChars, cfg.Overlap)
	}

	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{cfg: cfg, parser: md}, nil
}

// section is a heading-delimited region of the document text.
type section struct {
	title string // heading path, "" for preamble or headingless docs
	start int
	end   int
}

// Chunk splits the document into segments. Markdown headings (H1/H2)
// delimit sections; each section is then windowed into segments of at
// most MaxChars, consecutive windows sharing up to Overlap characters.
// Returns corpus.ErrInvalidDocument if the text is empty after
// normalization.
func (c *Chunker) Chunk(doc corpus.Document) ([]corpus.Segment, error) {
	txt := corpus.NormalizeText(doc.Text)
	if txt == "" {
		return nil, fmt.Errorf("%w: document %s has no text", corpus.ErrInvalidDocument, doc.Source)
	}

	sections := c.sections([]byte(txt))

	var segments []corpus.Segment
	for _, sec := range sections {
		for _, w := range c.windows(txt, sec.start, sec.end) {
			segments = append(segments, corpus.Segment{
				ID:         uuid.New().String(),
				DocumentID: doc.ID,
				Index:      len(segments),
				Section:    sec.title,
				Start:      w[0],
				End:        w[1],
				Text:       txt[w[0]:w[1]],
			})
		}
	}
	return segments, nil
}

// sections extracts H1/H2-delimited regions with their heading paths.
// Text before the first heading becomes an untitled preamble section;
// documents without headings are a single section.
func (c *Chunker) sections(source []byte) []section {
	reader := text.NewReader(source)
	doc := c.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return []section{{title: "", start: 0, end: len(source)}}
	}

	// Map heading IDs to their hierarchy path ("# A > ## B").
	titles := make(map[string]string)
	collectTitles(tree.Items, nil, titles)

	// Boundaries in document order: every H1/H2 heading line start.
	type boundary struct {
		start int
		title string
	}
	var bounds []boundary
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		heading := n.(*ast.Heading)
		if heading.Level > 2 || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		title := ""
		if idAttr, ok := heading.AttributeString("id"); ok {
			title = titles[string(idAttr.([]byte))]
		}
		if title == "" {
			title = string(heading.Lines().Value(source))
		}
		bounds = append(bounds, boundary{
			start: lineStart(source, heading.Lines().At(0).Start),
			title: title,
		})
		return ast.WalkContinue, nil
	})

	if len(bounds) == 0 {
		return []section{{title: "", start: 0, end: len(source)}}
	}

	var sections []section
	if pre := source[:bounds[0].start]; len(strings.TrimSpace(string(pre))) > 0 {
		sections = append(sections, section{title: "", start: 0, end: bounds[0].start})
	}
	for i, b := range bounds {
		end := len(source)
		if i+1 < len(bounds) {
			end = bounds[i+1].start
		}
		sections = append(sections, section{title: b.title, start: b.start, end: end})
	}
	return sections
}

// collectTitles walks TOC items building heading-path strings keyed by
// heading ID.
func collectTitles(items toc.Items, ancestors []string, out map[string]string) {
	for _, item := range items {
		path := append(ancestors, string(item.Title))

		var parts []string
		for depth, seg := range path {
			parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", depth+1), seg))
		}
		out[string(item.ID)] = strings.Join(parts, " > ")

		if len(item.Items) > 0 {
			collectTitles(item.Items, path, out)
		}
	}
}

// lineStart walks back from pos to the beginning of its line, so a
// section starts at the "#" marker rather than the heading text.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// windows covers text[from:to] with [start,end) spans of at most
// MaxChars, cut at sentence boundaries where possible. Consecutive
// windows overlap by up to Overlap characters; a window never starts
// after the previous one ends, so the section is covered without gaps.
func (c *Chunker) windows(txt string, from, to int) [][2]int {
	spans := sentenceSpans(txt, from, to)
	if len(spans) == 0 {
		return nil
	}

	var wins [][2]int
	i := 0
	for i < len(spans) {
		start := spans[i][0]

		// A single sentence longer than the budget is split mid-sentence;
		// no boundary-respecting alternative exists.
		if spans[i][1]-start > c.cfg.MaxChars {
			wins = append(wins, c.hardSplit(txt, start, spans[i][1])...)
			i++
			continue
		}

		// Greedily append whole sentences while they fit.
		j := i
		end := spans[i][1]
		for j+1 < len(spans) && spans[j+1][1]-start <= c.cfg.MaxChars {
			j++
			end = spans[j][1]
		}
		wins = append(wins, [2]int{start, end})

		if j+1 >= len(spans) {
			break
		}

		// Restart at the earliest sentence inside the overlap tail.
		next := j + 1
		for k := i + 1; k <= j; k++ {
			if spans[k][0] >= end-c.cfg.Overlap {
				next = k
				break
			}
		}
		i = next
	}
	return wins
}

// hardSplit cuts [start,end) into pieces of at most MaxChars stepping
// by MaxChars-Overlap, preserving the overlap contract for oversized
// sentences. Cut points are floored to rune boundaries so no window
// slices through a multi-byte character.
func (c *Chunker) hardSplit(txt string, start, end int) [][2]int {
	step := c.cfg.MaxChars - c.cfg.Overlap
	var wins [][2]int
	for s := start; s < end; {
		e := runeFloor(txt, min(s+c.cfg.MaxChars, end))
		if e <= s {
			_, n := utf8.DecodeRuneInString(txt[s:])
			e = s + n
		}
		wins = append(wins, [2]int{s, e})
		if e == end {
			break
		}
		next := runeFloor(txt, s+step)
		if next <= s {
			next = e
		}
		s = next
	}
	return wins
}

// runeFloor backs i off to the nearest rune start at or before it.
func runeFloor(txt string, i int) int {
	for i > 0 && i < len(txt) && !utf8.RuneStart(txt[i]) {
		i--
	}
	return i
}

// sentenceSpans partitions text[from:to] into contiguous spans ending
// after a sentence terminator or newline, trailing whitespace attached
// to the preceding span. Spans abut exactly: span[k+1] starts where
// span[k] ends.
func sentenceSpans(txt string, from, to int) [][2]int {
	var spans [][2]int
	start := from
	for i := from; i < to; i++ {
		switch txt[i] {
		case '.', '!', '?', '\n':
			end := i + 1
			for end < to && (txt[end] == ' ' || txt[end] == '\t' || txt[end] == '\n') {
				end++
			}
			spans = append(spans, [2]int{start, end})
			start = end
			i = end - 1
		}
	}
	if start < to {
		spans = append(spans, [2]int{start, to})
	}
	return spans
}
