package store

import (
	"context"
	"time"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// SchemaInfo describes one attached schema.
type SchemaInfo struct {
	ID          int64
	Schema      string
	FileName    string
	Version     int
	Tables      int
	Provisioned int
	Attached    time.Time
}

var schemaInfoMapping = database.Mapping[SchemaInfo]{
	Key:     "id",
	Columns: []string{"schema_name", "file_name", "version", "tables", "provisioned", "attached"},
	ID:      func(r *SchemaInfo) *int64 { return &r.ID },
	Values: func(r *SchemaInfo) []any {
		return []any{r.Schema, r.FileName, r.Version, r.Tables, r.Provisioned, r.Attached}
	},
	Targets: func(r *SchemaInfo) []any {
		return []any{&r.Schema, &r.FileName, &r.Version, &r.Tables, &r.Provisioned, &r.Attached}
	},
}

// SchemaInfoTable wraps mem.schemainfo, a queryable copy of the controller's
// attachment list.
type SchemaInfoTable struct {
	*database.TableBase[SchemaInfo]
}

// NewSchemaInfoTable binds the schemainfo table.
func NewSchemaInfoTable(b database.Binding) *SchemaInfoTable {
	return &SchemaInfoTable{database.NewTableBase(b, ddl.MustGet("schemainfo"), schemaInfoMapping)}
}

// Record replaces the table content with the given attachments.
func (t *SchemaInfoTable) Record(ctx context.Context, atts []database.Attachment) error {
	if err := t.Truncate(ctx); err != nil {
		return err
	}
	for _, a := range atts {
		t.Add(&SchemaInfo{
			Schema:      a.Schema,
			FileName:    a.FileName,
			Version:     a.Version,
			Tables:      len(a.Tables),
			Provisioned: len(a.Provisioned),
			Attached:    a.AttachedAt,
		})
	}
	return t.Save(ctx)
}

// LookupSchema returns the row of one schema.
func (t *SchemaInfoTable) LookupSchema(ctx context.Context, schema string) (*SchemaInfo, bool, error) {
	return t.Lookup(ctx, "schema_name = ?", schema)
}
