package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// File identifier constants.
const (
	// MemoryFileID is the distinguished identifier of the in-memory store.
	// FileName returns it unchanged and it is never resolved to a path.
	MemoryFileID = ":memory:"

	// DefaultFileID is the persistent dataset used when none is configured.
	DefaultFileID = "MAIN0-panama.db"

	// fileIDPrefix starts every generated dataset identifier.
	fileIDPrefix = "MAIN0-"
)

// Logger defines the logging interface used by the Controller.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the controller lifecycle position.
type State int

// Controller lifecycle states.
const (
	StateUninitialized State = iota
	StateAttaching
	StateReady
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAttaching:
		return "attaching"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RegisterFunc registers every table of a schema during Attach.
// It receives the attachment session instead of reading controller state.
type RegisterFunc func(ctx context.Context, s *Session) error

// SchemaSpec describes one schema Init attaches.
type SchemaSpec struct {
	// Name is the schema name (lowercase identifier).
	Name string

	// Ephemeral schemas are attached on MemoryFileID; others on the configured file.
	Ephemeral bool

	// Version is the schema version stamped into persistent files.
	// Zero disables version tracking.
	Version int

	// Register creates and registers the schema's tables.
	Register RegisterFunc
}

// entry is one slot of the table directory.
type entry struct {
	key   any
	table Table
}

// Controller owns the engine connection, the set of attached schemas and the
// directory of registered table wrappers.
//
// A Controller is built once by the composition root and passed to the
// components that need storage. It is initialised once and closed once;
// there is no way back from StateClosed.
//
// The directory and attachment set are guarded by a mutex. Table wrappers
// share the single connection and are not safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	specs    []SchemaSpec
	root     string
	db       *DB
	state    State
	attached map[string]*Attachment
	order    []string
	tables   []entry
	logger   Logger
}

// NewController creates a controller for the given schemas.
// Schemas are attached by Init in the order given.
func NewController(cfg Config, specs ...SchemaSpec) *Controller {
	if cfg.FileID == "" {
		cfg.FileID = DefaultFileID
	}
	return &Controller{
		cfg:      cfg,
		specs:    specs,
		attached: make(map[string]*Attachment),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the controller and the tables it registers.
func (c *Controller) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Root returns the database root directory given to Init.
func (c *Controller) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Init opens the engine on its in-memory handle and attaches every
// configured schema. It must be called exactly once; a second call returns
// ErrAlreadyInitialized.
//
// When an attach fails, Init returns the error and leaves the controller in
// StateAttaching. Schemas attached before the failure stay usable and
// Shutdown remains safe.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - root: Directory holding the dataset directories
//
// Returns:
//   - error: ErrInvalidRoot, ErrAlreadyInitialized, or an engine/attach failure
func (c *Controller) Init(ctx context.Context, root string) error {
	c.mu.Lock()
	switch c.state {
	case StateUninitialized:
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	default:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}

	if strings.TrimSpace(root) == "" {
		c.mu.Unlock()
		return ErrInvalidRoot
	}
	if err := os.MkdirAll(root, dirPermissions); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	db, err := Open(ctx, c.cfg)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.db = db
	c.root = root
	c.state = StateAttaching
	c.mu.Unlock()

	c.logger.Info("engine opened", "root", root, "dataset", DatasetID)

	for _, spec := range c.specs {
		fileID := c.cfg.FileID
		if spec.Ephemeral {
			fileID = MemoryFileID
		}
		if err := c.Attach(ctx, spec.Name, fileID, spec.Register); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("database ready", "schemas", len(c.specs))
	return nil
}

// FileName resolves a file identifier to the location passed to ATTACH.
// MemoryFileID maps to itself; any other identifier becomes
// <root>/<DatasetID>/<fileID>.
//
// Returns:
//   - string: Resolved location
//   - error: ErrInvalidFileID for empty or path-like identifiers,
//     ErrNotInitialized before Init
func (c *Controller) FileName(fileID string) (string, error) {
	if fileID == "" {
		return "", ErrInvalidFileID
	}
	if fileID == MemoryFileID {
		return fileID, nil
	}
	if filepath.Base(fileID) != fileID || fileID == "." || fileID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
	}

	c.mu.Lock()
	root := c.root
	c.mu.Unlock()
	if root == "" {
		return "", ErrNotInitialized
	}
	return filepath.Join(root, DatasetID, fileID), nil
}

// Attachments returns the attached schemas in attach order.
func (c *Controller) Attachments() []Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Attachment, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.attached[name].clone())
	}
	return out
}

// Attached reports whether a schema name is currently attached.
func (c *Controller) Attached(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attached[name]
	return ok
}

// Tables returns the registered tables of a schema in registration order.
// An empty schema name returns every table.
func (c *Controller) Tables(schema string) []Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Table
	for _, e := range c.tables {
		if schema == "" || e.table.Schema() == schema {
			out = append(out, e.table)
		}
	}
	return out
}

// SaveAll saves every registered table. Deletes are written first in reverse
// registration order, children before parents, then inserts and updates in
// registration order, parents before children. Each table commits on its own;
// all tables are attempted and failures are joined.
func (c *Controller) SaveAll(ctx context.Context) error {
	var errs []error
	c.flush(ctx, func(t Table, err error) {
		errs = append(errs, fmt.Errorf("saving %s.%s: %w", t.Schema(), t.Name(), err))
	})
	return errors.Join(errs...)
}

// flush writes pending changes in foreign key order and reports each failing
// table once. A table whose deletes fail is not saved further.
func (c *Controller) flush(ctx context.Context, failed func(Table, error)) {
	tables := c.Tables("")
	skip := make(map[Table]bool)
	for i := len(tables) - 1; i >= 0; i-- {
		if err := tables[i].SaveDeletes(ctx); err != nil {
			skip[tables[i]] = true
			failed(tables[i], err)
		}
	}
	for _, t := range tables {
		if skip[t] {
			continue
		}
		if err := t.Save(ctx); err != nil {
			failed(t, err)
		}
	}
}

// Vacuum rebuilds an attached schema's file to reclaim free pages.
func (c *Controller) Vacuum(ctx context.Context, schema string) error {
	db, err := c.engine()
	if err != nil {
		return err
	}
	if !c.Attached(schema) {
		return fmt.Errorf("vacuuming %s: %w", schema, ErrNotAttached)
	}
	if _, err := db.Conn().ExecContext(ctx, "VACUUM "+schema); err != nil {
		return fmt.Errorf("vacuuming %s: %w", schema, err)
	}
	c.logger.Info("schema vacuumed", "schema", schema)
	return nil
}

// HealthCheck verifies the engine connection is alive.
func (c *Controller) HealthCheck(ctx context.Context) error {
	db, err := c.engine()
	if err != nil {
		return err
	}
	return db.HealthCheck(ctx)
}

// Shutdown optionally saves every table, then detaches all schemas and
// closes the engine. Per-table save failures are logged and do not stop the
// shutdown. It is safe on a controller that was never or only partly
// initialised; later calls are no-ops.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - saveTables: Save pending changes before closing
//
// Returns:
//   - error: If closing the engine fails
func (c *Controller) Shutdown(ctx context.Context, saveTables bool) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	db := c.db
	c.mu.Unlock()

	if saveTables {
		c.flush(ctx, func(t Table, err error) {
			c.logger.Error("saving table on shutdown failed",
				"table", t.Schema()+"."+t.Name(), "error", err)
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if db != nil {
		for i := len(c.order) - 1; i >= 0; i-- {
			name := c.order[i]
			if _, err := db.Conn().ExecContext(ctx, "DETACH DATABASE "+name); err != nil {
				c.logger.Warn("detaching schema on shutdown failed", "schema", name, "error", err)
			}
		}
	}
	c.tables = nil
	c.order = nil
	clear(c.attached)
	c.db = nil
	c.state = StateClosed

	if err := db.Close(); err != nil {
		return err
	}
	c.logger.Info("database closed")
	return nil
}

// engine returns the open engine or the lifecycle error explaining why not.
func (c *Controller) engine() (*DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateClosed:
		return nil, ErrClosed
	case c.db == nil:
		return nil, ErrNotInitialized
	}
	return c.db, nil
}

// specVersion returns the configured version for a schema name.
func (c *Controller) specVersion(name string) int {
	for _, s := range c.specs {
		if s.Name == name {
			return s.Version
		}
	}
	return 0
}

// NewFileID returns a fresh dataset file identifier: MAIN0-<uuid>.db.
func NewFileID() string {
	return fileIDPrefix + uuid.NewString() + ".db"
}
