package store

import (
	"context"
	"strings"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Well-known setting names.
const (
	// SettingCredentialSalt holds the base64 salt for credential key derivation.
	SettingCredentialSalt = "credential.salt"

	// SettingDefaultLanguage is the language given to new title versions.
	SettingDefaultLanguage = "version.language"
)

// Setting is one name/value pair of the dataset configuration.
type Setting struct {
	ID    int64
	Name  string
	Value string
}

var settingMapping = database.Mapping[Setting]{
	Key:     "id",
	Columns: []string{"name", "value"},
	ID:      func(r *Setting) *int64 { return &r.ID },
	Values:  func(r *Setting) []any { return []any{r.Name, r.Value} },
	Targets: func(r *Setting) []any { return []any{&r.Name, &r.Value} },
	Validate: func(r *Setting) error {
		if strings.TrimSpace(r.Name) == "" {
			return ErrNameRequired
		}
		return nil
	},
}

// ConfigTable wraps panama.config, the dataset's own settings.
type ConfigTable struct {
	*database.TableBase[Setting]

	pending map[string]*Setting
}

// NewConfigTable binds the config table.
func NewConfigTable(b database.Binding) *ConfigTable {
	return &ConfigTable{
		TableBase: database.NewTableBase(b, ddl.MustGet("config"), settingMapping),
		pending:   make(map[string]*Setting),
	}
}

// Value returns a setting's value, including values set but not yet saved.
func (t *ConfigTable) Value(ctx context.Context, name string) (string, bool, error) {
	if s, ok := t.pending[name]; ok {
		return s.Value, true, nil
	}
	s, ok, err := t.Lookup(ctx, "name = ?", name)
	if err != nil || !ok {
		return "", false, err
	}
	return s.Value, true, nil
}

// Set buffers a setting change for the next Save.
func (t *ConfigTable) Set(ctx context.Context, name, value string) error {
	if s, ok := t.pending[name]; ok {
		s.Value = value
		return nil
	}
	s, ok, err := t.Lookup(ctx, "name = ?", name)
	if err != nil {
		return err
	}
	if !ok {
		s = t.Add(&Setting{Name: name})
	}
	s.Value = value
	t.pending[name] = s
	return nil
}

// Put sets a setting and writes it at once. Other buffered settings stay
// buffered.
func (t *ConfigTable) Put(ctx context.Context, name, value string) error {
	if err := t.Set(ctx, name, value); err != nil {
		return err
	}
	if err := t.SaveRow(ctx, t.pending[name]); err != nil {
		return err
	}
	delete(t.pending, name)
	return nil
}

// Save writes buffered settings.
func (t *ConfigTable) Save(ctx context.Context) error {
	if err := t.TableBase.Save(ctx); err != nil {
		return err
	}
	clear(t.pending)
	return nil
}

// Reset discards buffered settings.
func (t *ConfigTable) Reset() {
	t.TableBase.Reset()
	clear(t.pending)
}
