package database

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// DDL resource constants.
const (
	// SchemaToken is replaced with the attaching schema name when a
	// definition is executed, so one resource serves any schema.
	SchemaToken = "{{schema}}"

	// versionHeader prefixes the first line of every definition file.
	// Format: "-- version: 3"
	versionHeader = "-- version:"

	// ddlExtension is the file extension of definition resources.
	ddlExtension = ".sql"
)

// Definition is the versioned creation text for a single table.
// The table name is the resource's file name without extension.
type Definition struct {
	// Table is the physical table name (lowercase identifier).
	Table string

	// Version is the revision of the DDL text, taken from its header line.
	Version int

	// Text holds CREATE TABLE and any CREATE INDEX statements, with every
	// object qualified by SchemaToken.
	Text string
}

// Expand returns the definition text bound to a concrete schema.
func (d Definition) Expand(schema string) string {
	return strings.ReplaceAll(d.Text, SchemaToken, schema)
}

// ParseDefinition builds a Definition from a resource's name and content.
//
// Parameters:
//   - table: Table name the resource defines
//   - text: Resource content; the first line must be a version header
//
// Returns:
//   - Definition: Parsed definition
//   - error: If the table name or header is invalid
func ParseDefinition(table, text string) (Definition, error) {
	if !validIdentifier(table) {
		return Definition{}, fmt.Errorf("definition %q: invalid table name", table)
	}

	first, _, _ := strings.Cut(strings.TrimLeft(text, "\n"), "\n")
	first = strings.TrimSpace(first)
	if !strings.HasPrefix(first, versionHeader) {
		return Definition{}, fmt.Errorf("definition %q: missing %q header", table, versionHeader)
	}

	version, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(first, versionHeader)))
	if err != nil || version < 1 {
		return Definition{}, fmt.Errorf("definition %q: invalid version %q", table, first)
	}

	if !strings.Contains(text, SchemaToken+"."+table) {
		return Definition{}, fmt.Errorf("definition %q: table is not qualified with %s", table, SchemaToken)
	}

	return Definition{Table: table, Version: version, Text: text}, nil
}

// LoadDefinitions reads every definition resource in dir of fsys.
// Files without the .sql extension are ignored.
//
// Parameters:
//   - fsys: Filesystem holding the resources (usually an embed.FS)
//   - dir: Directory within fsys ("." for the root)
//
// Returns:
//   - map[string]Definition: Definitions keyed by table name
//   - error: If a resource cannot be read or parsed
func LoadDefinitions(fsys fs.FS, dir string) (map[string]Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ddlExtension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	defs := make(map[string]Definition, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		def, err := ParseDefinition(strings.TrimSuffix(name, ddlExtension), string(data))
		if err != nil {
			return nil, err
		}
		defs[def.Table] = def
	}

	return defs, nil
}

// validIdentifier reports whether s is a plain lowercase SQL identifier.
// Schema and table names are interpolated into statements, so nothing else is accepted.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
