package store

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// DefaultLanguage is the language of a version when the dataset sets none.
const DefaultLanguage = "en"

// TitleVersion is one manuscript file of a title.
type TitleVersion struct {
	ID        int64
	TitleID   int64
	FileName  string
	Version   int
	Revision  int
	Language  string
	WordCount int
	Updated   time.Time
	Note      string
}

var titleVersionMapping = database.Mapping[TitleVersion]{
	Key: "id",
	Columns: []string{
		"title_id", "file_name", "version", "revision", "language", "word_count", "updated", "note",
	},
	ID: func(r *TitleVersion) *int64 { return &r.ID },
	Values: func(r *TitleVersion) []any {
		return []any{r.TitleID, r.FileName, r.Version, r.Revision, r.Language, r.WordCount, r.Updated, r.Note}
	},
	Targets: func(r *TitleVersion) []any {
		return []any{&r.TitleID, &r.FileName, &r.Version, &r.Revision, &r.Language, &r.WordCount, &r.Updated, &r.Note}
	},
	Validate: func(r *TitleVersion) error {
		if strings.TrimSpace(r.FileName) == "" {
			return ErrFileNameRequired
		}
		return nil
	},
}

// TitleVersionTable wraps panama.titleversion.
type TitleVersionTable struct {
	*database.TableBase[TitleVersion]
}

// NewTitleVersionTable binds the titleversion table.
func NewTitleVersionTable(b database.Binding) *TitleVersionTable {
	return &TitleVersionTable{database.NewTableBase(b, ddl.MustGet("titleversion"), titleVersionMapping)}
}

// NewVersion buffers version 1 of a file for a title.
func (t *TitleVersionTable) NewVersion(titleID int64, fileName, language string) *TitleVersion {
	if language == "" {
		language = DefaultLanguage
	}
	return t.Add(&TitleVersion{
		TitleID:  titleID,
		FileName: fileName,
		Version:  1,
		Language: language,
		Updated:  time.Now().UTC(),
	})
}

// EnumerateVersions yields the versions of a title, most recently updated first.
func (t *TitleVersionTable) EnumerateVersions(ctx context.Context, titleID int64) iter.Seq2[*TitleVersion, error] {
	return t.Enumerate(ctx, "title_id = ?", "updated DESC", titleID)
}

// Latest returns the most recently updated version of a title.
func (t *TitleVersionTable) Latest(ctx context.Context, titleID int64) (*TitleVersion, bool, error) {
	for v, err := range t.EnumerateVersions(ctx, titleID) {
		return v, err == nil, err
	}
	return nil, false, nil
}

// LookupByFileName finds the version stored in a file.
func (t *TitleVersionTable) LookupByFileName(ctx context.Context, fileName string) (*TitleVersion, bool, error) {
	return t.Lookup(ctx, "file_name = ?", fileName)
}
