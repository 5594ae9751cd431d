package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errEmptyBody = errors.New("note: body is required")

type note struct {
	ID      int64
	Body    string
	Created time.Time
}

type noteTable struct {
	*TableBase[note]
}

func newNoteTable(b Binding) *noteTable {
	return &noteTable{NewTableBase(b, mustDefinition("note", `-- version: 1
CREATE TABLE {{schema}}.note (
    id      INTEGER PRIMARY KEY,
    body    TEXT NOT NULL,
    created DATETIME NOT NULL
);
CREATE UNIQUE INDEX {{schema}}.idx_note_body ON note (body);
`), Mapping[note]{
		Key:     "id",
		Columns: []string{"body", "created"},
		ID:      func(r *note) *int64 { return &r.ID },
		Values:  func(r *note) []any { return []any{r.Body, r.Created} },
		Targets: func(r *note) []any { return []any{&r.Body, &r.Created} },
		Validate: func(r *note) error {
			if r.Body == "" {
				return errEmptyBody
			}
			return nil
		},
	})}
}

type label struct {
	ID   int64
	Name string
}

type labelTable struct {
	*TableBase[label]
}

func newLabelTable(b Binding) *labelTable {
	return &labelTable{NewTableBase(b, mustDefinition("label", `-- version: 1
CREATE TABLE {{schema}}.label (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);
`), Mapping[label]{
		Key:     "id",
		Columns: []string{"name"},
		ID:      func(r *label) *int64 { return &r.ID },
		Values:  func(r *label) []any { return []any{r.Name} },
		Targets: func(r *label) []any { return []any{&r.Name} },
	})}
}

// Seed inserts the default labels.
func (t *labelTable) Seed(ctx context.Context, exec Execer) error {
	for _, name := range []string{"draft", "final"} {
		if _, err := exec.ExecContext(ctx, "INSERT INTO "+t.QualifiedName()+" (name) VALUES (?)", name); err != nil {
			return err
		}
	}
	return nil
}

func mustDefinition(table, text string) Definition {
	def, err := ParseDefinition(table, text)
	if err != nil {
		panic(err)
	}
	return def
}

func registerNotes(ctx context.Context, s *Session) error {
	if _, err := CreateAndRegisterTable(ctx, s, newLabelTable); err != nil {
		return err
	}
	_, err := CreateAndRegisterTable(ctx, s, newNoteTable)
	return err
}

func testSpecs() []SchemaSpec {
	return []SchemaSpec{
		{Name: "scratch", Ephemeral: true},
		{Name: "data", Version: 1, Register: registerNotes},
	}
}

// setupController initialises a controller on a temp root and closes it on cleanup.
func setupController(t *testing.T, root string, specs ...SchemaSpec) *Controller {
	t.Helper()
	c := NewController(Config{FileID: "MAIN0-test.db", BusyTimeout: 1}, specs...)
	if err := c.Init(context.Background(), root); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		c.Shutdown(context.Background(), false) //nolint:errcheck // Test cleanup
	})
	return c
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
