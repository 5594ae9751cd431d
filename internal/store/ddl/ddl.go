// Package ddl embeds the versioned table definitions of the Panama schemas.
//
// Each resource is named after the table it creates and starts with a
// "-- version: N" header. Objects are qualified with {{schema}} so the same
// text can be executed against any attached schema.
package ddl

import (
	"embed"
	"fmt"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

var definitions = mustLoad()

func mustLoad() map[string]database.Definition {
	defs, err := database.LoadDefinitions(files, ".")
	if err != nil {
		panic(fmt.Sprintf("ddl: %v", err))
	}
	return defs
}

// Get returns the definition of a table.
func Get(table string) (database.Definition, bool) {
	def, ok := definitions[table]
	return def, ok
}

// MustGet returns the definition of a table and panics when it is missing.
// Table names are compile-time constants, so a miss is a packaging bug.
func MustGet(table string) database.Definition {
	def, ok := definitions[table]
	if !ok {
		panic(fmt.Sprintf("ddl: no definition for table %q", table))
	}
	return def
}

// Tables returns the names of every embedded definition.
func Tables() []string {
	out := make([]string, 0, len(definitions))
	for name := range definitions {
		out = append(out, name)
	}
	return out
}
