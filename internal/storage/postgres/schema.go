package postgres

import (
	"context"
	"fmt"
	"strings"

	"arena/internal/catalog"
	"arena/internal/core/apperror"
	"arena/pkg/logger"
)

// sqlType maps a semantic column type to its storage type. Durations are
// microsecond bigints so scanned values stay integral; latin1 byte strings
// are bytea.
func sqlType(t catalog.ColumnType) string {
	switch t {
	case catalog.Bool:
		return "BOOLEAN"
	case catalog.Int:
		return "BIGINT"
	case catalog.Float:
		return "DOUBLE PRECISION"
	case catalog.Latin1:
		return "BYTEA"
	case catalog.Unicode:
		return "TEXT"
	case catalog.Timestamp:
		return "TIMESTAMPTZ"
	case catalog.Duration:
		return "BIGINT"
	}
	return "TEXT"
}

// CreateTableSQL renders the CREATE TABLE statement for one entity. Foreign
// key constraints are emitted separately (see ForeignKeySQL): the catalog
// contains reference cycles, such as tasks pointing at their active dataset
// while datasets point back at their task.
func CreateTableSQL(desc *catalog.Descriptor) string {
	var defs []string

	single := len(desc.PrimaryKey) == 1
	fkCols := make(map[string]struct{})
	for _, name := range desc.ForeignKeyColumns() {
		fkCols[name] = struct{}{}
	}
	pkCols := make(map[string]struct{})
	for _, c := range desc.PrimaryKey {
		pkCols[c.Key] = struct{}{}
	}

	for _, c := range desc.PrimaryKey {
		if _, isFK := fkCols[c.Key]; single && !isFK {
			defs = append(defs, fmt.Sprintf("%s BIGSERIAL", c.Key))
		} else {
			defs = append(defs, fmt.Sprintf("%s BIGINT NOT NULL", c.Key))
		}
	}

	for _, c := range desc.Columns {
		def := fmt.Sprintf("%s %s", c.Key, sqlType(c.Type))
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}

	for _, rel := range desc.Relationships {
		for _, col := range rel.ForeignKey {
			if _, isPK := pkCols[col]; isPK {
				continue // declared with the primary key above
			}
			def := col + " BIGINT"
			if !rel.Nullable {
				def += " NOT NULL"
			}
			defs = append(defs, def)
		}
	}

	names := make([]string, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		names[i] = c.Key
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(names, ", ")))

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		desc.Table, strings.Join(defs, ",\n    "))
}

// ForeignKeySQL renders the ALTER TABLE statements adding the entity's
// foreign key constraints, idempotently.
func ForeignKeySQL(desc *catalog.Descriptor) []string {
	var stmts []string
	for i := range desc.Relationships {
		rel := &desc.Relationships[i]
		if !rel.Owning() {
			continue
		}
		target := rel.TargetDescriptor()
		targetCols := make([]string, len(target.PrimaryKey))
		for j, c := range target.PrimaryKey {
			targetCols[j] = c.Key
		}
		name := fmt.Sprintf("fk_%s_%s", desc.Table, rel.Key)
		action := ""
		if rel.OnDelete != "" {
			action = " ON DELETE " + rel.OnDelete
		}
		stmts = append(stmts,
			fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", desc.Table, name),
			fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
				desc.Table, name, strings.Join(rel.ForeignKey, ", "),
				target.Table, strings.Join(targetCols, ", "), action))
	}
	return stmts
}

// CreateSchema creates every cataloged table and its constraints. Tables come
// first, constraints after, so declaration order never matters.
func CreateSchema(ctx context.Context, txm *TxManager, reg *catalog.Registry) error {
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := txm.GetQuerier(ctx)
		for _, desc := range reg.List() {
			if _, err := q.Exec(ctx, CreateTableSQL(desc)); err != nil {
				return apperror.NewDatabase(err).WithDetail("table", desc.Table)
			}
			logger.Debug(ctx, "table ready", "table", desc.Table)
		}
		for _, desc := range reg.List() {
			for _, stmt := range ForeignKeySQL(desc) {
				if _, err := q.Exec(ctx, stmt); err != nil {
					return apperror.NewDatabase(err).WithDetail("table", desc.Table)
				}
			}
		}
		return nil
	})
}
