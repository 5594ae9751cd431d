package store

import (
	"context"
	"strings"
	"unicode"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Kinds of indexed rows.
const (
	KindTitle     = "title"
	KindPublisher = "publisher"
)

// SearchEntry is one document of the full-text index.
type SearchEntry struct {
	ID    int64
	Kind  string
	RefID int64
	Body  string
}

var searchMapping = database.Mapping[SearchEntry]{
	Key:     "docid",
	Columns: []string{"kind", "ref_id", "body"},
	ID:      func(r *SearchEntry) *int64 { return &r.ID },
	Values:  func(r *SearchEntry) []any { return []any{r.Kind, r.RefID, r.Body} },
	Targets: func(r *SearchEntry) []any { return []any{&r.Kind, &r.RefID, &r.Body} },
}

// SearchTable wraps mem.search, a full-text index over titles and publishers.
type SearchTable struct {
	*database.TableBase[SearchEntry]
}

// NewSearchTable binds the search table.
func NewSearchTable(b database.Binding) *SearchTable {
	return &SearchTable{database.NewTableBase(b, ddl.MustGet("search"), searchMapping)}
}

// Rebuild replaces the index content with the current titles and publishers.
// It reads both tables without tracking their rows.
//
// Returns:
//   - int: Number of indexed documents
//   - error: If reading the sources or writing the index fails
func (t *SearchTable) Rebuild(ctx context.Context, titles *TitleTable, publishers *PublisherTable) (int, error) {
	if err := t.Truncate(ctx); err != nil {
		return 0, err
	}

	ts, err := titles.Snapshot(ctx, "", "")
	if err != nil {
		return 0, err
	}
	for _, r := range ts {
		t.Add(&SearchEntry{Kind: KindTitle, RefID: r.ID, Body: joinText(r.Title, r.Notes)})
	}

	ps, err := publishers.Snapshot(ctx, "", "")
	if err != nil {
		return 0, err
	}
	for _, r := range ps {
		t.Add(&SearchEntry{Kind: KindPublisher, RefID: r.ID, Body: joinText(r.Name, r.Notes)})
	}

	if err := t.Save(ctx); err != nil {
		return 0, err
	}
	return len(ts) + len(ps), nil
}

// Search returns the documents matching every word of text as a prefix,
// in index order. Text is reduced to letters and digits, so user input
// cannot inject query operators. Blank text matches nothing.
func (t *SearchTable) Search(ctx context.Context, text string) ([]*SearchEntry, error) {
	query := matchQuery(text)
	if query == "" {
		return nil, nil
	}
	return t.Select(ctx, t.Name()+" MATCH ?", "", query)
}

// matchQuery builds a prefix query from free text.
func matchQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		words[i] = strings.ToLower(w) + "*"
	}
	return strings.Join(words, " ")
}

func joinText(parts ...string) string {
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
