package store

import (
	"context"
	"time"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// SchemaRecord is the single row describing when the dataset was created
// and with which schema version.
type SchemaRecord struct {
	ID      int64
	Version int
	Created time.Time
}

var schemaMapping = database.Mapping[SchemaRecord]{
	Key:     "id",
	Columns: []string{"version", "created"},
	ID:      func(r *SchemaRecord) *int64 { return &r.ID },
	Values:  func(r *SchemaRecord) []any { return []any{r.Version, r.Created} },
	Targets: func(r *SchemaRecord) []any { return []any{&r.Version, &r.Created} },
}

// SchemaTable wraps panama.schema.
type SchemaTable struct {
	*database.TableBase[SchemaRecord]
}

// NewSchemaTable binds the schema table.
func NewSchemaTable(b database.Binding) *SchemaTable {
	return &SchemaTable{database.NewTableBase(b, ddl.MustGet("schema"), schemaMapping)}
}

// Seed records the version the dataset was created with.
func (t *SchemaTable) Seed(ctx context.Context, exec database.Execer) error {
	_, err := exec.ExecContext(ctx,
		"INSERT INTO "+t.QualifiedName()+" (version, created) VALUES (?, ?)",
		SchemaVersion, time.Now().UTC())
	return err
}

// Current returns the creation record.
func (t *SchemaTable) Current(ctx context.Context) (*SchemaRecord, bool, error) {
	return t.Lookup(ctx, "")
}
