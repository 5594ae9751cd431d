package store

import (
	"context"
	"fmt"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
)

// Schema names.
const (
	// SchemaPanama is the persistent dataset schema.
	SchemaPanama = "panama"

	// SchemaMem is the in-memory scratch schema.
	SchemaMem = "mem"
)

// SchemaVersion is the panama schema version written by this release.
// Bump it whenever a definition under ddl/ changes incompatibly.
const SchemaVersion = 1

// Schemas returns the schema set attached by Open: mem first, then panama.
func Schemas() []database.SchemaSpec {
	return []database.SchemaSpec{
		{Name: SchemaMem, Ephemeral: true, Register: RegisterMem},
		{Name: SchemaPanama, Version: SchemaVersion, Register: RegisterPanama},
	}
}

// RegisterMem creates and registers the mem schema tables.
func RegisterMem(ctx context.Context, s *database.Session) error {
	if _, err := database.CreateAndRegisterTable(ctx, s, NewSearchTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewSchemaInfoTable); err != nil {
		return err
	}
	return nil
}

// RegisterPanama creates and registers the panama schema tables, parents
// before the tables that reference them.
func RegisterPanama(ctx context.Context, s *database.Session) error {
	if _, err := database.CreateAndRegisterTable(ctx, s, NewSchemaTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewConfigTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewColorTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewTagTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewPublisherTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewCredentialTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewTitleTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewTitleTagTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewTitleVersionTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewSubmissionBatchTable); err != nil {
		return err
	}
	if _, err := database.CreateAndRegisterTable(ctx, s, NewSubmissionTable); err != nil {
		return err
	}
	return nil
}

// Open builds a controller for the Panama schemas, initialises it on root
// and refreshes the mem schema. The caller owns the returned controller and
// must call Shutdown.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - cfg: Engine configuration
//   - root: Database root directory
//   - logger: Logger for the controller (nil keeps it silent)
//
// Returns:
//   - *database.Controller: Ready controller
//   - error: If initialisation or the refresh fails
func Open(ctx context.Context, cfg database.Config, root string, logger database.Logger) (*database.Controller, error) {
	ctrl := database.NewController(cfg, Schemas()...)
	if logger != nil {
		ctrl.SetLogger(logger)
	}

	if err := ctrl.Init(ctx, root); err != nil {
		ctrl.Shutdown(ctx, false) //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("initialising database: %w", err)
	}

	if err := Refresh(ctx, ctrl); err != nil {
		ctrl.Shutdown(ctx, false) //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return ctrl, nil
}

// Refresh rebuilds the derived mem tables from the current attachments and
// panama content. Call it after attaching or detaching schemas, or after
// bulk edits that should be searchable.
func Refresh(ctx context.Context, ctrl *database.Controller) error {
	info, err := database.GetTable[*SchemaInfoTable](ctrl)
	if err != nil {
		return err
	}
	if err := info.Record(ctx, ctrl.Attachments()); err != nil {
		return fmt.Errorf("recording attachments: %w", err)
	}

	if !ctrl.Attached(SchemaPanama) {
		return nil
	}
	search, err := database.GetTable[*SearchTable](ctrl)
	if err != nil {
		return err
	}
	titles, err := database.GetTable[*TitleTable](ctrl)
	if err != nil {
		return err
	}
	publishers, err := database.GetTable[*PublisherTable](ctrl)
	if err != nil {
		return err
	}
	if _, err := search.Rebuild(ctx, titles, publishers); err != nil {
		return fmt.Errorf("rebuilding search index: %w", err)
	}
	return nil
}
