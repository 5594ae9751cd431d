package store

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Publisher is a market titles are submitted to.
type Publisher struct {
	ID    int64
	Name  string
	URL   string
	Notes string

	// Exclusive publishers do not accept simultaneous submissions.
	Exclusive bool

	// Defunct publishers are kept for history but no longer accept work.
	Defunct bool

	Added time.Time
}

var publisherMapping = database.Mapping[Publisher]{
	Key:     "id",
	Columns: []string{"name", "url", "notes", "is_exclusive", "is_defunct", "added"},
	ID:      func(r *Publisher) *int64 { return &r.ID },
	Values: func(r *Publisher) []any {
		return []any{r.Name, r.URL, r.Notes, r.Exclusive, r.Defunct, r.Added}
	},
	Targets: func(r *Publisher) []any {
		return []any{&r.Name, &r.URL, &r.Notes, &r.Exclusive, &r.Defunct, &r.Added}
	},
	Validate: func(r *Publisher) error {
		if strings.TrimSpace(r.Name) == "" {
			return ErrNameRequired
		}
		return nil
	},
}

// PublisherTable wraps panama.publisher.
type PublisherTable struct {
	*database.TableBase[Publisher]
}

// NewPublisherTable binds the publisher table.
func NewPublisherTable(b database.Binding) *PublisherTable {
	return &PublisherTable{database.NewTableBase(b, ddl.MustGet("publisher"), publisherMapping)}
}

// NewPublisher buffers a publisher added now.
func (t *PublisherTable) NewPublisher(name string) *Publisher {
	return t.Add(&Publisher{Name: name, Added: time.Now().UTC()})
}

// EnumeratePublishers yields publishers ordered by name. Defunct publishers
// are included only when asked.
func (t *PublisherTable) EnumeratePublishers(ctx context.Context, includeDefunct bool) iter.Seq2[*Publisher, error] {
	if includeDefunct {
		return t.Enumerate(ctx, "", "name COLLATE NOCASE")
	}
	return t.Enumerate(ctx, "is_defunct = 0", "name COLLATE NOCASE")
}

// LookupByName finds a publisher by case-insensitive name.
func (t *PublisherTable) LookupByName(ctx context.Context, name string) (*Publisher, bool, error) {
	return t.Lookup(ctx, "name = ? COLLATE NOCASE", name)
}
