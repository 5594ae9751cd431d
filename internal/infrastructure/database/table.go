package database

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
	"weak"
)

// Table is the directory view of a registered table wrapper.
// Every concrete wrapper satisfies it by embedding *TableBase.
type Table interface {
	Schema() string
	Name() string
	Definition() Definition
	HasChanges() bool
	Save(ctx context.Context) error
	SaveDeletes(ctx context.Context) error
	Reset()
}

// Execer is satisfied by *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Seeder is implemented by wrappers that insert default rows.
// Seed runs once, in the same transaction that creates the table.
type Seeder interface {
	Seed(ctx context.Context, exec Execer) error
}

// Binding ties a wrapper to one schema on the controller's connection.
// Sessions hand out bindings; wrappers never open or close connections.
type Binding struct {
	Schema string
	conn   *sql.Conn
	logger Logger
}

// Mapping describes how a row struct R maps onto its table's columns.
// Every table has an INTEGER PRIMARY KEY column named by Key.
type Mapping[R any] struct {
	// Key is the primary key column.
	Key string

	// Columns lists the non-key columns in statement order.
	Columns []string

	// ID returns a pointer to the row's primary key field.
	ID func(r *R) *int64

	// Values returns driver values for Columns. It is used for writes and
	// for change detection, so nullable fields must be dereferenced here.
	Values func(r *R) []any

	// Targets returns scan destinations for Columns.
	Targets func(r *R) []any

	// Validate optionally checks a row before it is inserted or updated.
	Validate func(r *R) error
}

// TableBase implements the query, tracking and save path shared by all wrappers.
//
// Rows materialised through Select, Enumerate or Lookup, and rows written by
// Save, are tracked together with a snapshot of their column values for as
// long as the caller holds them. Save writes every tracked row whose values
// changed, every row passed to Add and every row passed to Delete, in one
// transaction. A failing statement rolls back the whole batch and leaves the
// tracking state untouched so the caller can correct the rows and retry.
//
// Tracking holds rows weakly; a row the caller drops is forgotten.
//
// TableBase is not safe for concurrent use.
type TableBase[R any] struct {
	binding Binding
	def     Definition
	mapping Mapping[R]

	tracked map[weak.Pointer[R]][]any
	pruneAt int
	added   []*R
	deleted []*R
}

// minPruneAt is the tracking size at which unreferenced rows are first swept.
const minPruneAt = 256

// NewTableBase binds a table definition and row mapping to a schema.
// It does not touch the engine.
func NewTableBase[R any](b Binding, def Definition, m Mapping[R]) *TableBase[R] {
	return &TableBase[R]{
		binding: b,
		def:     def,
		mapping: m,
		tracked: make(map[weak.Pointer[R]][]any),
		pruneAt: minPruneAt,
	}
}

// Schema returns the schema the table is bound to.
func (t *TableBase[R]) Schema() string { return t.binding.Schema }

// Name returns the physical table name.
func (t *TableBase[R]) Name() string { return t.def.Table }

// Definition returns the table's DDL resource.
func (t *TableBase[R]) Definition() Definition { return t.def }

// QualifiedName returns schema.table as used in statements.
func (t *TableBase[R]) QualifiedName() string {
	return t.binding.Schema + "." + t.def.Table
}

// Exists reports whether the physical table is present in its schema.
func (t *TableBase[R]) Exists(ctx context.Context) (bool, error) {
	return tableExists(ctx, t.binding.conn, t.binding.Schema, t.def.Table)
}

// Ensure creates the table from its definition when it does not exist.
// If the wrapper implements Seeder, default rows are inserted in the same
// transaction. It reports whether the DDL was executed.
func (t *TableBase[R]) Ensure(ctx context.Context, seeder Seeder) (bool, error) {
	exists, err := t.Exists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	tx, err := t.binding.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, t.def.Expand(t.binding.Schema)); err != nil {
		return false, fmt.Errorf("creating %s: %w", t.QualifiedName(), err)
	}
	if seeder != nil {
		if err := seeder.Seed(ctx, tx); err != nil {
			return false, fmt.Errorf("seeding %s: %w", t.QualifiedName(), classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing %s: %w", t.QualifiedName(), err)
	}

	t.binding.logger.Debug("table created", "table", t.QualifiedName(), "ddl_version", t.def.Version)
	return true, nil
}

// Select returns all rows matching where, ordered by orderBy and then by the
// primary key so ties have a stable order. Both clauses are engine-native SQL
// fragments; values belong in args. Empty strings mean "all rows" and
// "primary key only".
func (t *TableBase[R]) Select(ctx context.Context, where, orderBy string, args ...any) ([]*R, error) {
	var out []*R
	for row, err := range t.Enumerate(ctx, where, orderBy, args...) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Enumerate is the lazy form of Select. The query is executed each time the
// sequence is ranged over; the sequence is a snapshot, not a live view.
// Do not call Save on the same table while ranging.
func (t *TableBase[R]) Enumerate(ctx context.Context, where, orderBy string, args ...any) iter.Seq2[*R, error] {
	query := t.selectSQL(where, orderBy, 0)
	return func(yield func(*R, error) bool) {
		rows, err := t.binding.conn.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("querying %s: %w", t.QualifiedName(), err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			row, err := t.scan(rows, true)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterating %s rows: %w", t.QualifiedName(), err))
		}
	}
}

// Snapshot returns copies of the matching rows without tracking them.
// Use it for read-only scans; changes to the copies are never saved.
func (t *TableBase[R]) Snapshot(ctx context.Context, where, orderBy string, args ...any) ([]R, error) {
	rows, err := t.binding.conn.QueryContext(ctx, t.selectSQL(where, orderBy, 0), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.QualifiedName(), err)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		row, err := t.scan(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", t.QualifiedName(), err)
	}
	return out, nil
}

// Lookup returns the first row matching where. A missing row is reported
// through the boolean, not as an error.
func (t *TableBase[R]) Lookup(ctx context.Context, where string, args ...any) (*R, bool, error) {
	rows, err := t.binding.conn.QueryContext(ctx, t.selectSQL(where, "", 1), args...)
	if err != nil {
		return nil, false, fmt.Errorf("querying %s: %w", t.QualifiedName(), err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("iterating %s rows: %w", t.QualifiedName(), err)
		}
		return nil, false, nil
	}
	row, err := t.scan(rows, true)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Get looks a row up by primary key.
func (t *TableBase[R]) Get(ctx context.Context, id int64) (*R, bool, error) {
	return t.Lookup(ctx, t.mapping.Key+" = ?", id)
}

// Count returns the number of stored rows matching where.
// Pending changes are not included.
func (t *TableBase[R]) Count(ctx context.Context, where string, args ...any) (int, error) {
	query := "SELECT COUNT(*) FROM " + t.QualifiedName()
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := t.binding.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.QualifiedName(), err)
	}
	return n, nil
}

// Truncate deletes every stored row immediately and discards buffered
// changes. It is meant for derived tables that are rebuilt, not for user data.
func (t *TableBase[R]) Truncate(ctx context.Context) error {
	if _, err := t.binding.conn.ExecContext(ctx, "DELETE FROM "+t.QualifiedName()); err != nil {
		return fmt.Errorf("truncating %s: %w", t.QualifiedName(), err)
	}
	t.Reset()
	return nil
}

// Add buffers a new row for insertion on the next Save.
// A zero primary key is filled in from the engine after the Save commits.
func (t *TableBase[R]) Add(row *R) *R {
	t.added = append(t.added, row)
	return row
}

// Track starts tracking a row this table did not hand out, such as a copy
// returned by Snapshot. The row is written by the next Save.
func (t *TableBase[R]) Track(row *R) {
	if slices.Contains(t.added, row) {
		return
	}
	t.tracked[weak.Make(row)] = nil // nil snapshot always compares as changed
}

// Delete buffers removal of a tracked row. Deleting a row that was added and
// never saved simply drops it.
func (t *TableBase[R]) Delete(row *R) error {
	if i := slices.Index(t.added, row); i >= 0 {
		t.added = slices.Delete(t.added, i, i+1)
		return nil
	}
	ref := weak.Make(row)
	if _, ok := t.tracked[ref]; !ok {
		return fmt.Errorf("deleting from %s: %w", t.QualifiedName(), ErrRowNotTracked)
	}
	delete(t.tracked, ref)
	t.deleted = append(t.deleted, row)
	return nil
}

// HasChanges reports whether Save has anything to write.
func (t *TableBase[R]) HasChanges() bool {
	if len(t.added) > 0 || len(t.deleted) > 0 {
		return true
	}
	for ref, snap := range t.tracked {
		row := ref.Value()
		if row == nil {
			delete(t.tracked, ref)
			continue
		}
		if changed(snap, t.mapping.Values(row)) {
			return true
		}
	}
	return false
}

// Reset discards all buffered changes and releases tracked rows.
func (t *TableBase[R]) Reset() {
	clear(t.tracked)
	t.added = nil
	t.deleted = nil
}

// Save writes all buffered changes in a single transaction.
//
// Statement order is deletes, inserts, then updates in primary key order. On
// any failure the transaction is rolled back, the error is returned
// (constraint failures wrap ErrConstraint) and the buffered state is kept as
// it was. After a successful Save, added rows carry their generated keys and
// every written row stays tracked, so later edits are saved again.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any statement or the commit fails
func (t *TableBase[R]) Save(ctx context.Context) error {
	if err := t.write(ctx, t.deleted, t.added, t.dirty()); err != nil {
		return err
	}
	t.added = nil
	t.deleted = nil
	return nil
}

// SaveDeletes writes only the buffered deletes. Inserts and updates stay
// buffered for the next Save.
func (t *TableBase[R]) SaveDeletes(ctx context.Context) error {
	if err := t.write(ctx, t.deleted, nil, nil); err != nil {
		return err
	}
	t.deleted = nil
	return nil
}

// SaveRow writes one added or tracked row in its own transaction and leaves
// every other buffered change in place.
func (t *TableBase[R]) SaveRow(ctx context.Context, row *R) error {
	if i := slices.Index(t.added, row); i >= 0 {
		if err := t.write(ctx, nil, []*R{row}, nil); err != nil {
			return err
		}
		t.added = slices.Delete(t.added, i, i+1)
		return nil
	}
	snap, ok := t.tracked[weak.Make(row)]
	if !ok {
		return fmt.Errorf("saving %s row: %w", t.QualifiedName(), ErrRowNotTracked)
	}
	if !changed(snap, t.mapping.Values(row)) {
		return nil
	}
	return t.write(ctx, nil, nil, []*R{row})
}

// write runs deletes, inserts and updates in one transaction. Only after the
// commit are generated keys assigned and snapshots refreshed.
func (t *TableBase[R]) write(ctx context.Context, deletes, adds, updates []*R) error {
	if len(deletes) == 0 && len(adds) == 0 && len(updates) == 0 {
		return nil
	}
	if err := t.validate(adds, updates); err != nil {
		return err
	}

	tx, err := t.binding.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.QualifiedName(), t.mapping.Key)
	for _, row := range deletes {
		if _, err := tx.ExecContext(ctx, deleteSQL, *t.mapping.ID(row)); err != nil {
			return fmt.Errorf("deleting from %s: %w", t.QualifiedName(), classify(err))
		}
	}

	ids := make([]int64, len(adds))
	for i, row := range adds {
		id, err := t.insert(ctx, tx, row)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	updateSQL := t.updateSQL()
	for _, row := range updates {
		args := append(t.mapping.Values(row), *t.mapping.ID(row))
		if _, err := tx.ExecContext(ctx, updateSQL, args...); err != nil {
			return fmt.Errorf("updating %s row %d: %w", t.QualifiedName(), *t.mapping.ID(row), classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", t.QualifiedName(), classify(err))
	}

	for i, row := range adds {
		*t.mapping.ID(row) = ids[i]
		t.track(row)
	}
	for _, row := range updates {
		t.track(row)
	}
	t.binding.logger.Debug("table saved",
		"table", t.QualifiedName(),
		"inserted", len(adds),
		"updated", len(updates),
		"deleted", len(deletes),
	)
	return nil
}

// dirty returns the tracked rows whose values differ from their snapshot,
// ordered by primary key.
func (t *TableBase[R]) dirty() []*R {
	var out []*R
	for ref, snap := range t.tracked {
		row := ref.Value()
		if row == nil {
			delete(t.tracked, ref)
			continue
		}
		if changed(snap, t.mapping.Values(row)) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b *R) int {
		return cmp.Compare(*t.mapping.ID(a), *t.mapping.ID(b))
	})
	return out
}

// track records row with a snapshot of its current values.
func (t *TableBase[R]) track(row *R) {
	t.tracked[weak.Make(row)] = t.mapping.Values(row)
	if len(t.tracked) >= t.pruneAt {
		t.prune()
		t.pruneAt = max(minPruneAt, 2*len(t.tracked))
	}
}

// prune forgets rows the caller no longer references.
func (t *TableBase[R]) prune() {
	for ref := range t.tracked {
		if ref.Value() == nil {
			delete(t.tracked, ref)
		}
	}
}

// validate runs the mapping's validator over every row about to be written.
func (t *TableBase[R]) validate(adds, updates []*R) error {
	if t.mapping.Validate == nil {
		return nil
	}
	for _, row := range adds {
		if err := t.mapping.Validate(row); err != nil {
			return fmt.Errorf("validating %s row: %w", t.QualifiedName(), err)
		}
	}
	for _, row := range updates {
		if err := t.mapping.Validate(row); err != nil {
			return fmt.Errorf("validating %s row %d: %w", t.QualifiedName(), *t.mapping.ID(row), err)
		}
	}
	return nil
}

// insert writes one added row and returns its primary key.
func (t *TableBase[R]) insert(ctx context.Context, tx *sql.Tx, row *R) (int64, error) {
	cols := t.mapping.Columns
	args := t.mapping.Values(row)
	if id := *t.mapping.ID(row); id != 0 {
		cols = append([]string{t.mapping.Key}, cols...)
		args = append([]any{id}, args...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.QualifiedName(),
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", t.QualifiedName(), classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading %s row id: %w", t.QualifiedName(), err)
	}
	return id, nil
}

func (t *TableBase[R]) selectSQL(where, orderBy string, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(t.mapping.Key)
	for _, c := range t.mapping.Columns {
		b.WriteString(", ")
		b.WriteString(c)
	}
	b.WriteString(" FROM ")
	b.WriteString(t.QualifiedName())
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	if orderBy != "" {
		b.WriteString(orderBy)
		b.WriteString(", ")
	}
	b.WriteString(t.mapping.Key)
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

func (t *TableBase[R]) updateSQL() string {
	sets := make([]string, len(t.mapping.Columns))
	for i, c := range t.mapping.Columns {
		sets[i] = c + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		t.QualifiedName(), strings.Join(sets, ", "), t.mapping.Key)
}

// scan materialises one row, tracking it when asked.
func (t *TableBase[R]) scan(rows *sql.Rows, track bool) (*R, error) {
	row := new(R)
	dest := append([]any{t.mapping.ID(row)}, t.mapping.Targets(row)...)
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning %s row: %w", t.QualifiedName(), err)
	}
	if track {
		t.track(row)
	}
	return row, nil
}

// changed compares a snapshot with current driver values.
func changed(snap, values []any) bool {
	if snap == nil || len(snap) != len(values) {
		return true
	}
	for i := range values {
		if !sameValue(snap[i], values[i]) {
			return true
		}
	}
	return false
}

func sameValue(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case sql.NullTime:
		bv, ok := b.(sql.NullTime)
		return ok && av.Valid == bv.Valid && av.Time.Equal(bv.Time)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	}
	if _, ok := b.([]byte); ok {
		return false
	}
	return a == b
}

// tableExists checks the schema's catalogue for a table or virtual table.
func tableExists(ctx context.Context, conn *sql.Conn, schema, table string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?", schema)
	var n int
	if err := conn.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("checking %s.%s: %w", schema, table, err)
	}
	return n > 0, nil
}
