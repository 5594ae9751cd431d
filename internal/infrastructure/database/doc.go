// Package database provides the embedded SQLite data layer for Panama Core.
//
// This package manages:
//   - One engine connection opened on a private in-memory handle
//   - Attaching and detaching named schemas (persistent files or in-memory)
//   - Lazy table creation from versioned DDL resources
//   - A directory of typed table wrappers, looked up with GetTable
//   - Row tracking with all-or-nothing Save
//
// Lifecycle:
//
//	ctrl := database.NewController(cfg, specs...)
//	if err := ctrl.Init(ctx, root); err != nil {
//	    return err
//	}
//	defer ctrl.Shutdown(ctx, true)
//
//	titles, err := database.GetTable[*store.TitleTable](ctrl)
//
// Schemas:
//
// Every schema is attached to the same connection, so statements can join
// across schemas but no transaction spans an attach or detach. Persistent
// schema files live at <root>/<DatasetID>/<file-id>; MemoryFileID attaches
// an empty in-memory store that disappears on detach.
//
// Schema Versions:
//
// Persistent schemas carry their version in PRAGMA user_version. A fresh
// file is stamped with the release's version; a file written by a newer
// release is refused with ErrSchemaTooNew; an older file is attached with a
// warning. Migrations between versions are not performed.
//
// Security Considerations:
//   - Values always travel as bound parameters
//   - Schema and table names are restricted to lowercase identifiers before
//     they are interpolated into statements
//   - Filter and order clauses passed to Select are trusted SQL fragments
package database
