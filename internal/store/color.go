package store

import (
	"context"
	"strings"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Color is a named ARGB value used to mark tags.
type Color struct {
	ID   int64
	Name string
	ARGB int64
}

// defaultColors are inserted when the color table is created.
var defaultColors = []Color{
	{Name: "Red", ARGB: 0xFFE53935},
	{Name: "Orange", ARGB: 0xFFFB8C00},
	{Name: "Yellow", ARGB: 0xFFFDD835},
	{Name: "Green", ARGB: 0xFF43A047},
	{Name: "Blue", ARGB: 0xFF1E88E5},
	{Name: "Purple", ARGB: 0xFF8E24AA},
	{Name: "Gray", ARGB: 0xFF757575},
}

var colorMapping = database.Mapping[Color]{
	Key:     "id",
	Columns: []string{"name", "argb"},
	ID:      func(r *Color) *int64 { return &r.ID },
	Values:  func(r *Color) []any { return []any{r.Name, r.ARGB} },
	Targets: func(r *Color) []any { return []any{&r.Name, &r.ARGB} },
	Validate: func(r *Color) error {
		if strings.TrimSpace(r.Name) == "" {
			return ErrNameRequired
		}
		return nil
	},
}

// ColorTable wraps panama.color.
type ColorTable struct {
	*database.TableBase[Color]
}

// NewColorTable binds the color table.
func NewColorTable(b database.Binding) *ColorTable {
	return &ColorTable{database.NewTableBase(b, ddl.MustGet("color"), colorMapping)}
}

// Seed inserts the default palette.
func (t *ColorTable) Seed(ctx context.Context, exec database.Execer) error {
	query := "INSERT INTO " + t.QualifiedName() + " (name, argb) VALUES (?, ?)"
	for _, c := range defaultColors {
		if _, err := exec.ExecContext(ctx, query, c.Name, c.ARGB); err != nil {
			return err
		}
	}
	return nil
}

// LookupByName finds a color by case-insensitive name.
func (t *ColorTable) LookupByName(ctx context.Context, name string) (*Color, bool, error) {
	return t.Lookup(ctx, "name = ? COLLATE NOCASE", name)
}
