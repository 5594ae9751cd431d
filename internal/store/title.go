package store

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Title is a piece of writing.
type Title struct {
	ID      int64
	Title   string
	Written time.Time
	Notes   string

	// Ready marks titles that may be submitted.
	Ready bool

	// Flagged marks titles the writer wants to revisit.
	Flagged bool

	Added   time.Time
	Updated time.Time
}

// Validate checks the fields the table requires.
func (r *Title) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrTitleRequired
	}
	if r.Written.IsZero() {
		return ErrWrittenRequired
	}
	return nil
}

var titleMapping = database.Mapping[Title]{
	Key:     "id",
	Columns: []string{"title", "written", "notes", "ready", "flagged", "added", "updated"},
	ID:      func(r *Title) *int64 { return &r.ID },
	Values: func(r *Title) []any {
		return []any{r.Title, r.Written, r.Notes, r.Ready, r.Flagged, r.Added, r.Updated}
	},
	Targets: func(r *Title) []any {
		return []any{&r.Title, &r.Written, &r.Notes, &r.Ready, &r.Flagged, &r.Added, &r.Updated}
	},
	Validate: (*Title).Validate,
}

// TitleTable wraps panama.title.
type TitleTable struct {
	*database.TableBase[Title]
}

// NewTitleTable binds the title table.
func NewTitleTable(b database.Binding) *TitleTable {
	return &TitleTable{database.NewTableBase(b, ddl.MustGet("title"), titleMapping)}
}

// NewTitle buffers a title added now.
func (t *TitleTable) NewTitle(title string, written time.Time) *Title {
	now := time.Now().UTC()
	return t.Add(&Title{Title: title, Written: written, Added: now, Updated: now})
}

// EnumerateTitles yields every title ordered by title.
func (t *TitleTable) EnumerateTitles(ctx context.Context) iter.Seq2[*Title, error] {
	return t.Enumerate(ctx, "", "title COLLATE NOCASE")
}

// EnumerateReady yields titles marked ready that have no pending or accepted
// submission, ordered by title.
func (t *TitleTable) EnumerateReady(ctx context.Context) iter.Seq2[*Title, error] {
	where := "ready = 1 AND id NOT IN (SELECT title_id FROM " + t.Schema() +
		".submission WHERE status IN ('pending', 'accepted'))"
	return t.Enumerate(ctx, where, "title COLLATE NOCASE")
}

// EnumerateWithTag yields the titles carrying a tag.
func (t *TitleTable) EnumerateWithTag(ctx context.Context, tagID int64) iter.Seq2[*Title, error] {
	where := "id IN (SELECT title_id FROM " + t.Schema() + ".titletag WHERE tag_id = ?)"
	return t.Enumerate(ctx, where, "title COLLATE NOCASE", tagID)
}

// Touch stamps a title as updated now.
func (t *TitleTable) Touch(r *Title) {
	r.Updated = time.Now().UTC()
}
