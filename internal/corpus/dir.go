package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source loads legal documents from some backing location.
type Source interface {
	Load(ctx context.Context) ([]Document, error)
}

// DirSource loads documents from a local directory tree. The first path
// element below the root is the legal category, e.g. tax/late-filing.md.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

// Load walks the directory and returns one Document per .md/.txt file.
// Files that are empty after normalization are skipped with an
// ErrInvalidDocument-wrapped reason left to the caller's logging.
func (s *DirSource) Load(ctx context.Context) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !hasTextExt(d.Name()) {
			return nil
		}

		raw, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		doc, err := NewDocument(rel, categoryFromPath(rel), string(raw))
		if err != nil {
			// Unreadable corpus files fail ingestion loudly; empty ones
			// are a content problem the operator must fix.
			return fmt.Errorf("%s: %w", rel, err)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus dir %s: %w", s.root, err)
	}

	return docs, nil
}

// NewDocument builds a Document from a source path, category and raw text.
// Returns ErrInvalidDocument if the text is empty after normalization.
func NewDocument(source, category, raw string) (Document, error) {
	text := NormalizeText(raw)
	if text == "" {
		return Document{}, fmt.Errorf("%w: empty text for %s", ErrInvalidDocument, source)
	}
	return Document{
		ID:         uuid.New().String(),
		Title:      titleFromSource(source),
		Source:     source,
		Category:   category,
		Text:       text,
		Version:    1,
		IngestedAt: time.Now().UTC(),
	}, nil
}

// NormalizeText canonicalizes line endings and trims surrounding
// whitespace. Identical raw inputs normalize identically, which the
// chunker and embedder rely on.
func NormalizeText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.TrimSpace(text)
}

func hasTextExt(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".txt":
		return true
	}
	return false
}

func categoryFromPath(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return ""
}

// titleFromSource derives a citation title from the file name:
// "tax/late-filing-penalties.md" -> "Late Filing Penalties".
func titleFromSource(source string) string {
	base := path.Base(source)
	base = strings.TrimSuffix(base, path.Ext(base))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
