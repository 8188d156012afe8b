// Package prompt assembles model-ready prompts from a question and
// retrieved legal segments.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

const (
	// DefaultContextBudget caps the total characters of segment text in a
	// prompt, keeping the composed prompt well inside model context
	// limits with room for the instruction and question.
	DefaultContextBudget = 6000

	// minTruncated is the smallest useful truncated segment. Below this,
	// the segment is dropped instead of truncated.
	minTruncated = 80
)

// Prompt is a composed, model-ready prompt. Segments lists exactly the
// evidence included in Text, in the order it appears; the answer
// generator echoes these back as sources.
type Prompt struct {
	Text     string
	Question string
	Segments []vectorstore.Scored
}

// Composer selects a category template, deduplicates and budgets the
// evidence, and renders the prompt.
type Composer struct {
	budget    int
	templates map[string]*template.Template
	fallback  *template.Template
	noContext *template.Template
}

// NewComposer creates a Composer with the given context budget.
// budget <= 0 selects DefaultContextBudget.
func NewComposer(budget int) *Composer {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	return &Composer{
		budget:    budget,
		templates: categoryTemplates,
		fallback:  defaultTemplate,
		noContext: noContextTemplate,
	}
}

type templateData struct {
	Question string
	Sources  []sourceBlock
}

type sourceBlock struct {
	Ref     string // "[1]"
	Title   string
	Section string
	Text    string
}

// Compose renders the prompt for the question and retrieval results.
// An empty result set takes the no-context branch and is still a valid
// prompt, never an error. The category selects a template variant,
// falling back to the default for unknown or empty categories.
func (c *Composer) Compose(question, category string, results []vectorstore.Scored) (*Prompt, error) {
	kept := c.budgeted(dedupe(results))

	tmpl := c.fallback
	if len(kept) == 0 {
		tmpl = c.noContext
	} else if t, ok := c.templates[category]; ok {
		tmpl = t
	}

	data := templateData{Question: question}
	for i, seg := range kept {
		data.Sources = append(data.Sources, sourceBlock{
			Ref:     fmt.Sprintf("[%d]", i+1),
			Title:   seg.Meta.Title,
			Section: seg.Meta.Section,
			Text:    seg.Meta.Text,
		})
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("render prompt template: %w", err)
	}

	return &Prompt{
		Text:     sb.String(),
		Question: question,
		Segments: kept,
	}, nil
}

// dedupe drops segments that are near-identical to a higher-ranked one:
// same document with overlapping offset ranges. Results arrive ordered
// by similarity descending, so the first occurrence wins.
func dedupe(results []vectorstore.Scored) []vectorstore.Scored {
	var kept []vectorstore.Scored
	for _, r := range results {
		dup := false
		for _, k := range kept {
			if k.Meta.DocumentID == r.Meta.DocumentID && overlaps(k.Meta, r.Meta) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, r)
		}
	}
	return kept
}

func overlaps(a, b vectorstore.Metadata) bool {
	return a.Start < b.End && b.Start < a.End
}

// budgeted keeps the highest-similarity prefix that fits the context
// budget; lower-similarity segments are dropped first. If the first
// segment that does not fit whole is the only remaining candidate with
// meaningful room, its text is cut at a sentence boundary instead.
func (c *Composer) budgeted(results []vectorstore.Scored) []vectorstore.Scored {
	var kept []vectorstore.Scored
	used := 0
	for _, r := range results {
		remaining := c.budget - used
		if len(r.Meta.Text) <= remaining {
			kept = append(kept, r)
			used += len(r.Meta.Text)
			continue
		}
		if remaining >= minTruncated {
			truncated := r
			truncated.Meta.Text = cutAtSentence(r.Meta.Text, remaining)
			kept = append(kept, truncated)
		}
		break // everything after ranks lower; drop it
	}
	return kept
}

// cutAtSentence truncates text to at most limit bytes, preferring the
// last sentence boundary before the limit when one leaves enough text
// to be useful. The hard cut is floored to a rune boundary so the
// truncated text stays valid UTF-8.
func cutAtSentence(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for i := limit - 1; i >= minTruncated; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return strings.TrimRight(text[:i+1], " \t\n")
		}
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
