package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arena/internal/catalog"
	"arena/internal/core/apperror"
)

// psql builds queries with PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Compile-time check that Store satisfies the catalog resolver contract.
var _ catalog.Resolver = (*Store)(nil)

// Store is the generic row store. A single implementation serves every
// cataloged entity: descriptors drive column lists, key predicates and
// relationship updates, so adding an entity never adds repository code.
type Store struct {
	txm *TxManager
}

// NewStore creates a store on top of the transaction manager.
func NewStore(txm *TxManager) *Store {
	return &Store{txm: txm}
}

// selectColumns returns the full column list for an entity: primary key,
// scalar columns, then foreign-key columns, without duplicates (composite
// primary keys may share columns with foreign keys).
func selectColumns(desc *catalog.Descriptor) []string {
	seen := make(map[string]struct{})
	var cols []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
	}
	for _, c := range desc.PrimaryKey {
		add(c.Key)
	}
	for _, c := range desc.Columns {
		add(c.Key)
	}
	for _, name := range desc.ForeignKeyColumns() {
		add(name)
	}
	return cols
}

// pkEq builds the primary-key predicate for one instance.
func pkEq(desc *catalog.Descriptor, key catalog.Key) sq.Eq {
	eq := make(sq.Eq, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		eq[c.Key] = key[i]
	}
	return eq
}

// Resolve fetches one instance by primary key, or (nil, nil) when absent.
func (s *Store) Resolve(ctx context.Context, desc *catalog.Descriptor, key catalog.Key) (*catalog.Instance, error) {
	if len(key) != len(desc.PrimaryKey) {
		return nil, apperror.NewInternal(fmt.Errorf("key width %d for %s", len(key), desc.Name))
	}

	query, args, err := psql.Select(selectColumns(desc)...).
		From(desc.Table).
		Where(pkEq(desc, key)).
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	rows, err := s.txm.GetQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapPgError(err)
		}
		return nil, nil
	}
	return scanInstance(desc, rows)
}

// List fetches all instances of an entity ordered by primary key. A limit of
// zero means unbounded.
func (s *Store) List(ctx context.Context, desc *catalog.Descriptor, limit uint64) ([]*catalog.Instance, error) {
	builder := psql.Select(selectColumns(desc)...).
		From(desc.Table).
		OrderBy(pkOrder(desc)...)
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return s.queryInstances(ctx, desc, query, args)
}

// Insert creates a row from typed column values (scalars plus any owning
// foreign keys) and returns the generated primary key.
func (s *Store) Insert(ctx context.Context, desc *catalog.Descriptor, cols map[string]any) (catalog.Key, error) {
	returning := make([]string, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		returning[i] = c.Key
	}

	var query string
	var args []any
	var err error
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
			desc.Table, joinColumns(returning))
	} else {
		query, args, err = psql.Insert(desc.Table).
			SetMap(toDBMap(cols)).
			Suffix("RETURNING " + joinColumns(returning)).
			ToSql()
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
	}

	row := s.txm.GetQuerier(ctx).QueryRow(ctx, query, args...)
	key := make(catalog.Key, len(desc.PrimaryKey))
	dest := make([]any, len(key))
	for i := range key {
		dest[i] = &key[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, mapPgError(err)
	}
	return key, nil
}

// Update overwrites the given columns of an existing row. Columns absent from
// the map keep their stored value (merge semantics).
func (s *Store) Update(ctx context.Context, inst *catalog.Instance, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	query, args, err := psql.Update(inst.Desc.Table).
		SetMap(toDBMap(cols)).
		Where(pkEq(inst.Desc, inst.Key)).
		ToSql()
	if err != nil {
		return apperror.NewInternal(err)
	}
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(inst.Desc.Table, inst.Key)
	}
	return nil
}

// Delete removes an instance. Referential actions declared in the catalog
// (CASCADE, SET NULL) propagate inside the same transaction.
func (s *Store) Delete(ctx context.Context, inst *catalog.Instance) error {
	query, args, err := psql.Delete(inst.Desc.Table).
		Where(pkEq(inst.Desc, inst.Key)).
		ToSql()
	if err != nil {
		return apperror.NewInternal(err)
	}
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(inst.Desc.Table, inst.Key)
	}
	return nil
}

// Sublist fetches the instances on the far side of a relationship, ordered by
// the target's primary key. For a to-one relationship the result has zero or
// one element.
func (s *Store) Sublist(ctx context.Context, inst *catalog.Instance, rel *catalog.Relationship) ([]*catalog.Instance, error) {
	target := rel.TargetDescriptor()

	if rel.Owning() {
		key := make(catalog.Key, len(rel.ForeignKey))
		for i, col := range rel.ForeignKey {
			v, ok := inst.Columns[col].(int64)
			if !ok {
				return []*catalog.Instance{}, nil // NULL foreign key
			}
			key[i] = v
		}
		other, err := s.Resolve(ctx, target, key)
		if err != nil {
			return nil, err
		}
		if other == nil {
			return []*catalog.Instance{}, nil
		}
		return []*catalog.Instance{other}, nil
	}

	eq := make(sq.Eq, len(rel.Backref))
	for i, col := range rel.Backref {
		eq[col] = inst.Key[i]
	}
	query, args, err := psql.Select(selectColumns(target)...).
		From(target.Table).
		Where(eq).
		OrderBy(pkOrder(target)...).
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return s.queryInstances(ctx, target, query, args)
}

// FoldOwning splits decoded relationship values into foreign-key column
// values (for owning to-one relationships, applied on this entity's own row)
// and the remaining relationship values that must be applied on target rows.
func FoldOwning(desc *catalog.Descriptor, rels map[string]any) (map[string]any, map[string]any) {
	fkCols := make(map[string]any)
	remaining := make(map[string]any)
	for key, val := range rels {
		rel, _ := desc.Relationship(key)
		if !rel.Owning() {
			remaining[key] = val
			continue
		}
		if val == nil {
			for _, col := range rel.ForeignKey {
				fkCols[col] = nil
			}
			continue
		}
		other := val.(*catalog.Instance)
		for i, col := range rel.ForeignKey {
			fkCols[col] = other.Key[i]
		}
	}
	return fkCols, remaining
}

// ApplyRelationships applies decoded non-owning relationship values by
// rewriting back-reference columns on target rows. Assignment replaces the
// collection: members no longer listed have their back reference cleared,
// which fails with a conflict if the column is not nullable.
func (s *Store) ApplyRelationships(ctx context.Context, inst *catalog.Instance, rels map[string]any) error {
	for key, val := range rels {
		rel, ok := inst.Desc.Relationship(key)
		if !ok {
			return apperror.NewUnknownField(key)
		}
		if rel.Owning() {
			return apperror.NewInternal(fmt.Errorf("owning relationship %q not folded", key))
		}
		if err := s.applyBackref(ctx, inst, &rel, val); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyBackref(ctx context.Context, inst *catalog.Instance, rel *catalog.Relationship, val any) error {
	var members []*catalog.Instance
	labels := make(map[string]string) // target ref -> keyed label

	switch v := val.(type) {
	case nil:
	case *catalog.Instance:
		members = []*catalog.Instance{v}
	case []*catalog.Instance:
		members = v
	case map[string]*catalog.Instance:
		for label, m := range v {
			members = append(members, m)
			labels[refOf(m)] = label
		}
	default:
		return apperror.NewInternal(fmt.Errorf("unexpected relationship value %T", val))
	}

	current, err := s.Sublist(ctx, inst, rel)
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(members))
	for _, m := range members {
		keep[refOf(m)] = struct{}{}
	}

	// Detach rows that are no longer members.
	for _, row := range current {
		if _, ok := keep[refOf(row)]; ok {
			continue
		}
		clear := make(map[string]any, len(rel.Backref))
		for _, col := range rel.Backref {
			clear[col] = nil
		}
		if err := s.Update(ctx, row, clear); err != nil {
			return err
		}
	}

	// Attach (or re-label) the new members.
	for _, m := range members {
		set := make(map[string]any, len(rel.Backref)+1)
		for i, col := range rel.Backref {
			set[col] = inst.Key[i]
		}
		if rel.Cardinality == catalog.Keyed {
			set[rel.KeyColumn] = labels[refOf(m)]
		}
		if err := s.Update(ctx, m, set); err != nil {
			return err
		}
	}
	return nil
}

// refOf renders a key for set membership without importing the codec.
func refOf(inst *catalog.Instance) string {
	return fmt.Sprint([]int64(inst.Key))
}

func (s *Store) queryInstances(ctx context.Context, desc *catalog.Descriptor, query string, args []any) ([]*catalog.Instance, error) {
	rows, err := s.txm.GetQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]*catalog.Instance, 0)
	for rows.Next() {
		inst, err := scanInstance(desc, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// scanInstance converts the current row into a typed instance. Column order
// must match selectColumns.
func scanInstance(desc *catalog.Descriptor, rows pgx.Rows) (*catalog.Instance, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, mapPgError(err)
	}
	names := selectColumns(desc)
	if len(values) != len(names) {
		return nil, apperror.NewInternal(fmt.Errorf("%s: %d values for %d columns", desc.Table, len(values), len(names)))
	}

	inst := &catalog.Instance{
		Desc:    desc,
		Columns: make(map[string]any, len(names)),
	}
	for i, name := range names {
		if col, ok := desc.Column(name); ok {
			v, err := fromDB(col, values[i])
			if err != nil {
				return nil, err
			}
			inst.Columns[name] = v
			continue
		}
		// Primary-key and foreign-key columns are plain integers.
		if values[i] == nil {
			inst.Columns[name] = nil
			continue
		}
		v, ok := values[i].(int64)
		if !ok {
			return nil, apperror.NewInternal(fmt.Errorf("%s.%s: unexpected key type %T", desc.Table, name, values[i]))
		}
		inst.Columns[name] = v
	}

	inst.Key = make(catalog.Key, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		v, ok := inst.Columns[c.Key].(int64)
		if !ok {
			return nil, apperror.NewInternal(fmt.Errorf("%s: NULL primary key column %s", desc.Table, c.Key))
		}
		inst.Key[i] = v
	}
	return inst, nil
}

// fromDB converts a driver value into the semantic in-memory type. Durations
// are stored as microsecond bigints, timestamps as timestamptz.
func fromDB(col catalog.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case catalog.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case catalog.Int:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case catalog.Float:
		if f, ok := v.(float64); ok {
			return f, nil
		}
	case catalog.Latin1:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case catalog.Unicode:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case catalog.Timestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case catalog.Duration:
		if n, ok := v.(int64); ok {
			return time.Duration(n) * time.Microsecond, nil
		}
	}
	return nil, apperror.NewInternal(fmt.Errorf("column %s: unexpected driver type %T", col.Key, v))
}

// toDBMap converts typed column values into driver arguments.
func toDBMap(cols map[string]any) map[string]any {
	out := make(map[string]any, len(cols))
	for k, v := range cols {
		out[k] = toDB(v)
	}
	return out
}

func toDB(v any) any {
	if d, ok := v.(time.Duration); ok {
		return d.Microseconds()
	}
	return v
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func pkOrder(desc *catalog.Descriptor) []string {
	out := make([]string, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		out[i] = c.Key
	}
	return out
}

// mapPgError translates driver errors into the error taxonomy: integrity
// violations become conflicts, everything else a database error.
func mapPgError(err error) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperror.NewConflict("uniqueness constraint violated").
				WithDetail("constraint", pgErr.ConstraintName).WithCause(err)
		case "23503":
			return apperror.NewConflict("referential integrity violated").
				WithDetail("constraint", pgErr.ConstraintName).WithCause(err)
		case "23502":
			return apperror.NewConflict("required column missing").
				WithDetail("column", pgErr.ColumnName).WithCause(err)
		}
	}
	return apperror.NewDatabase(err)
}
