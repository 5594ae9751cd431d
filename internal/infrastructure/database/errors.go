package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Controller and table errors.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, database.ErrAlreadyAttached) {
//	    // schema is already bound to a file
//	}
var (
	// ErrInvalidRoot is returned by Init when the database root is empty.
	ErrInvalidRoot = errors.New("database: root directory is required")

	// ErrAlreadyInitialized is returned when Init is called a second time.
	ErrAlreadyInitialized = errors.New("database: controller already initialised")

	// ErrNotInitialized is returned when the engine has not been opened yet.
	ErrNotInitialized = errors.New("database: controller not initialised")

	// ErrClosed is returned for any operation after Shutdown.
	ErrClosed = errors.New("database: controller closed")

	// ErrInvalidSchemaName is returned for schema names that are not plain
	// lowercase identifiers or that collide with the engine's own schemas.
	ErrInvalidSchemaName = errors.New("database: invalid schema name")

	// ErrAlreadyAttached is returned when attaching a schema name that is bound.
	ErrAlreadyAttached = errors.New("database: schema already attached")

	// ErrNotAttached is returned when detaching a schema that is not bound.
	ErrNotAttached = errors.New("database: schema not attached")

	// ErrInvalidFileID is returned when a file identifier is empty or path-like.
	ErrInvalidFileID = errors.New("database: invalid file id")

	// ErrAlreadyRegistered is returned when a table type is registered twice.
	ErrAlreadyRegistered = errors.New("database: table already registered")

	// ErrTableNotRegistered is returned by GetTable for an unknown table type.
	ErrTableNotRegistered = errors.New("database: table not registered")

	// ErrSchemaTooNew is returned when a file was written by a newer release.
	ErrSchemaTooNew = errors.New("database: schema version is newer than this release")

	// ErrConstraint wraps engine constraint violations (unique, not null,
	// foreign key, check). Callers can recover by fixing the rows and saving again.
	ErrConstraint = errors.New("database: constraint violation")

	// ErrRowNotTracked is returned when deleting a row the table never materialised.
	ErrRowNotTracked = errors.New("database: row not tracked by table")
)

// classify maps engine errors onto the package taxonomy.
// Constraint failures become ErrConstraint while keeping the engine error in the chain.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}
