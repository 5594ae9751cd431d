package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Attachment records one attached schema.
type Attachment struct {
	Schema    string
	FileID    string
	FileName  string
	Ephemeral bool

	// Version is the schema version stored in the file after attach.
	Version int

	// Tables lists registered tables in registration order.
	Tables []string

	// Provisioned lists the tables whose DDL ran during this attach.
	Provisioned []string

	AttachedAt time.Time
}

func (a *Attachment) clone() Attachment {
	out := *a
	out.Tables = slices.Clone(a.Tables)
	out.Provisioned = slices.Clone(a.Provisioned)
	return out
}

// Session is handed to a RegisterFunc while its schema is being attached.
// Tables created through it are bound to the session's schema.
type Session struct {
	ctrl       *Controller
	attachment *Attachment
	binding    Binding
}

// Schema returns the schema being attached.
func (s *Session) Schema() string { return s.attachment.Schema }

// FileName returns the resolved location the schema is attached to.
func (s *Session) FileName() string { return s.attachment.FileName }

// Ephemeral reports whether the schema lives in memory.
func (s *Session) Ephemeral() bool { return s.attachment.Ephemeral }

// Binding returns the binding new tables of this schema receive.
func (s *Session) Binding() Binding { return s.binding }

// Provisioned returns the tables whose DDL ran so far in this session.
func (s *Session) Provisioned() []string { return slices.Clone(s.attachment.Provisioned) }

// Attach binds a schema name to a file (or MemoryFileID), then calls register
// to create and register the schema's tables, then checks and stamps the
// schema version. Attaching a name that is already attached returns
// ErrAlreadyAttached and registers nothing.
//
// If the file cannot be opened or register fails, the schema is detached
// again and any tables it registered are removed from the directory.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - name: Schema name
//   - fileID: Dataset file identifier, resolved with FileName
//   - register: Table registration callback (may be nil)
//
// Returns:
//   - error: If the schema cannot be attached
func (c *Controller) Attach(ctx context.Context, name, fileID string, register RegisterFunc) error {
	if !validIdentifier(name) || name == "main" || name == "temp" {
		return fmt.Errorf("%w: %q", ErrInvalidSchemaName, name)
	}
	db, err := c.engine()
	if err != nil {
		return err
	}
	fileName, err := c.FileName(fileID)
	if err != nil {
		return fmt.Errorf("attaching %s: %w", name, err)
	}

	att := &Attachment{
		Schema:    name,
		FileID:    fileID,
		FileName:  fileName,
		Ephemeral: fileName == MemoryFileID,
	}

	// Reserve the name before touching the engine so a concurrent attach fails fast.
	c.mu.Lock()
	if _, ok := c.attached[name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("attaching %s: %w", name, ErrAlreadyAttached)
	}
	c.attached[name] = att
	logger := c.logger
	c.mu.Unlock()

	if err := c.attach(ctx, db, att, register, logger); err != nil {
		c.mu.Lock()
		delete(c.attached, name)
		c.removeTablesLocked(name)
		c.mu.Unlock()
		return fmt.Errorf("attaching %s (%s): %w", name, fileName, err)
	}

	c.mu.Lock()
	c.order = append(c.order, name)
	c.mu.Unlock()

	logger.Info("schema attached",
		"schema", name,
		"file", fileName,
		"version", att.Version,
		"tables", len(att.Tables),
		"provisioned", len(att.Provisioned),
	)
	return nil
}

// attach runs the engine side of Attach. On failure the engine attachment is undone.
func (c *Controller) attach(ctx context.Context, db *DB, att *Attachment, register RegisterFunc, logger Logger) error {
	conn := db.Conn()

	if !att.Ephemeral {
		if err := os.MkdirAll(filepath.Dir(att.FileName), dirPermissions); err != nil {
			return fmt.Errorf("creating dataset directory: %w", err)
		}
	}

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+att.Schema, att.FileName); err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			if _, err := conn.ExecContext(ctx, "DETACH DATABASE "+att.Schema); err != nil {
				logger.Warn("detaching after failed attach", "schema", att.Schema, "error", err)
			}
		}
	}()

	// SQLite reads the file header lazily; touch the catalogue to surface corrupt files now.
	var objects int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+att.Schema+".sqlite_master").Scan(&objects); err != nil {
		return fmt.Errorf("reading schema catalogue: %w", err)
	}

	want := c.specVersion(att.Schema)
	versioned := want > 0 && !att.Ephemeral
	var stored int
	if versioned {
		v, err := userVersion(ctx, db, att.Schema)
		if err != nil {
			return err
		}
		if v > want {
			return fmt.Errorf("%w: file has %d, release supports %d", ErrSchemaTooNew, v, want)
		}
		stored = v
	}

	if register != nil {
		s := &Session{
			ctrl:       c,
			attachment: att,
			binding:    Binding{Schema: att.Schema, conn: conn, logger: logger},
		}
		if err := register(ctx, s); err != nil {
			return fmt.Errorf("registering tables: %w", err)
		}
	}

	if versioned {
		switch {
		case stored == 0:
			if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA %s.user_version = %d", att.Schema, want)); err != nil {
				return fmt.Errorf("stamping schema version: %w", err)
			}
			stored = want
		case stored < want:
			logger.Warn("schema version is older than this release",
				"schema", att.Schema, "stored", stored, "release", want)
		}
	}
	att.Version = stored
	att.AttachedAt = time.Now().UTC()

	ok = true
	return nil
}

// Detach unbinds an attached schema and removes its tables from the
// directory. Detaching a schema that is not attached returns ErrNotAttached.
// Unsaved changes of the schema's tables are discarded with a warning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - name: Schema name
//
// Returns:
//   - error: ErrNotAttached, ErrClosed, or an engine failure
func (c *Controller) Detach(ctx context.Context, name string) error {
	db, err := c.engine()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, ok := c.attached[name]; !ok || !slices.Contains(c.order, name) {
		c.mu.Unlock()
		return fmt.Errorf("detaching %s: %w", name, ErrNotAttached)
	}
	logger := c.logger
	c.mu.Unlock()

	for _, t := range c.Tables(name) {
		if t.HasChanges() {
			logger.Warn("discarding unsaved changes on detach", "table", name+"."+t.Name())
		}
		t.Reset()
	}

	if _, err := db.Conn().ExecContext(ctx, "DETACH DATABASE "+name); err != nil {
		return fmt.Errorf("detaching %s: %w", name, err)
	}

	c.mu.Lock()
	delete(c.attached, name)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == name })
	c.removeTablesLocked(name)
	c.mu.Unlock()

	logger.Info("schema detached", "schema", name)
	return nil
}

// removeTablesLocked drops a schema's tables from the directory. c.mu must be held.
func (c *Controller) removeTablesLocked(schema string) {
	c.tables = slices.DeleteFunc(c.tables, func(e entry) bool {
		return e.table.Schema() == schema
	})
}

func userVersion(ctx context.Context, db *DB, schema string) (int, error) {
	var version int
	if err := db.Conn().QueryRowContext(ctx, "PRAGMA "+schema+".user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}
