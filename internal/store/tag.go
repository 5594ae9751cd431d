package store

import (
	"context"
	"database/sql"
	"iter"
	"strings"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Tag is a label that can be attached to titles.
type Tag struct {
	ID          int64
	Name        string
	Description string
	ColorID     sql.NullInt64
}

var tagMapping = database.Mapping[Tag]{
	Key:     "id",
	Columns: []string{"name", "description", "color_id"},
	ID:      func(r *Tag) *int64 { return &r.ID },
	Values:  func(r *Tag) []any { return []any{r.Name, r.Description, nullInt(r.ColorID)} },
	Targets: func(r *Tag) []any { return []any{&r.Name, &r.Description, &r.ColorID} },
	Validate: func(r *Tag) error {
		if strings.TrimSpace(r.Name) == "" {
			return ErrNameRequired
		}
		return nil
	},
}

// TagTable wraps panama.tag.
type TagTable struct {
	*database.TableBase[Tag]
}

// NewTagTable binds the tag table.
func NewTagTable(b database.Binding) *TagTable {
	return &TagTable{database.NewTableBase(b, ddl.MustGet("tag"), tagMapping)}
}

// EnumerateTags yields every tag ordered by name.
func (t *TagTable) EnumerateTags(ctx context.Context) iter.Seq2[*Tag, error] {
	return t.Enumerate(ctx, "", "name COLLATE NOCASE")
}

// LookupByName finds a tag by case-insensitive name.
func (t *TagTable) LookupByName(ctx context.Context, name string) (*Tag, bool, error) {
	return t.Lookup(ctx, "name = ? COLLATE NOCASE", name)
}

// TitleTag links a title to a tag.
type TitleTag struct {
	ID      int64
	TitleID int64
	TagID   int64
}

var titleTagMapping = database.Mapping[TitleTag]{
	Key:     "id",
	Columns: []string{"title_id", "tag_id"},
	ID:      func(r *TitleTag) *int64 { return &r.ID },
	Values:  func(r *TitleTag) []any { return []any{r.TitleID, r.TagID} },
	Targets: func(r *TitleTag) []any { return []any{&r.TitleID, &r.TagID} },
}

// TitleTagTable wraps panama.titletag.
type TitleTagTable struct {
	*database.TableBase[TitleTag]
}

// NewTitleTagTable binds the titletag table.
func NewTitleTagTable(b database.Binding) *TitleTagTable {
	return &TitleTagTable{database.NewTableBase(b, ddl.MustGet("titletag"), titleTagMapping)}
}

// EnumerateForTitle yields the tag links of one title.
func (t *TitleTagTable) EnumerateForTitle(ctx context.Context, titleID int64) iter.Seq2[*TitleTag, error] {
	return t.Enumerate(ctx, "title_id = ?", "", titleID)
}

// EnumerateForTag yields the title links of one tag.
func (t *TitleTagTable) EnumerateForTag(ctx context.Context, tagID int64) iter.Seq2[*TitleTag, error] {
	return t.Enumerate(ctx, "tag_id = ?", "", tagID)
}

// Link buffers a title/tag link.
func (t *TitleTagTable) Link(titleID, tagID int64) *TitleTag {
	return t.Add(&TitleTag{TitleID: titleID, TagID: tagID})
}

// nullInt converts an optional key to its driver value.
func nullInt(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}
