// Package store defines the Panama schemas and their table wrappers.
//
// Two schemas are attached by Open:
//   - panama: the persistent dataset holding titles, their versions and
//     tags, publishers with their credentials, and submission batches
//   - mem: an in-memory scratch schema with derived tables (full-text
//     search index and attachment bookkeeping) rebuilt on every start
//
// Every table wrapper embeds *database.TableBase and is looked up through
// the controller's directory:
//
//	ctrl, err := store.Open(ctx, dbCfg, root, logger)
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Shutdown(ctx, true)
//
//	titles := database.MustGetTable[*store.TitleTable](ctrl)
//	for title, err := range titles.EnumerateTitles(ctx) {
//	    ...
//	}
//
// Tables are registered parents first. Generated IDs are only known after
// Save, so save a parent row before adding children that reference it.
package store
