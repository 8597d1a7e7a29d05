// Package trigger installs the notification machinery inside PostgreSQL:
// one plpgsql procedure and one row trigger per cataloged table, emitting
// NOTIFY events that the watcher turns into callbacks.
package trigger

import (
	"context"
	"fmt"
	"strings"

	"arena/internal/catalog"
	"arena/internal/core/apperror"
	"arena/internal/storage/postgres"
	"arena/pkg/logger"
)

// Installer generates and installs notify triggers for every cataloged table.
type Installer struct {
	txm *postgres.TxManager
	reg *catalog.Registry
}

// NewInstaller creates an installer.
func NewInstaller(txm *postgres.TxManager, reg *catalog.Registry) *Installer {
	return &Installer{txm: txm, reg: reg}
}

// Install creates or replaces the procedure and trigger of every table. It is
// idempotent: re-running replaces existing definitions in place. Any failure
// aborts the whole installation.
func (i *Installer) Install(ctx context.Context) error {
	return i.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := i.txm.GetQuerier(ctx)
		for _, desc := range i.reg.List() {
			if _, err := q.Exec(ctx, FunctionSQL(desc)); err != nil {
				return apperror.NewDatabase(err).WithDetail("table", desc.Table)
			}
			for _, stmt := range TriggerSQL(desc) {
				if _, err := q.Exec(ctx, stmt); err != nil {
					return apperror.NewDatabase(err).WithDetail("table", desc.Table)
				}
			}
			logger.Debug(ctx, "notify trigger installed", "table", desc.Table)
		}
		return nil
	})
}

// keyExpr renders the notification payload's first line: the record's
// primary-key values, space-joined, in declaration order.
func keyExpr(record string, desc *catalog.Descriptor) string {
	parts := make([]string, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		parts[i] = fmt.Sprintf("%s.%s::text", record, c.Key)
	}
	return strings.Join(parts, " || ' ' || ")
}

// mutableColumns lists every column that can change under a stable primary
// key: scalars plus foreign keys, minus primary-key columns.
func mutableColumns(desc *catalog.Descriptor) []string {
	pk := make(map[string]struct{}, len(desc.PrimaryKey))
	for _, c := range desc.PrimaryKey {
		pk[c.Key] = struct{}{}
	}
	seen := make(map[string]struct{})
	var cols []string
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		if _, isPK := pk[name]; isPK {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
	}
	for _, c := range desc.Columns {
		add(c.Key)
	}
	for _, name := range desc.ForeignKeyColumns() {
		add(name)
	}
	return cols
}

// FunctionSQL renders the notify procedure for one table.
//
// Channels are named "<kind>_<table>". The payload's first line carries the
// primary-key values; update payloads append one line per column whose value
// differs (IS DISTINCT FROM, so NULL transitions count). An update that
// rewrites the primary key is reported as a deletion of the old key followed
// by a creation of the new one.
func FunctionSQL(desc *catalog.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE FUNCTION notify_%s() RETURNS TRIGGER AS $$\n", desc.Table)
	b.WriteString("DECLARE\n    changed TEXT := '';\nBEGIN\n")

	fmt.Fprintf(&b, "    IF TG_OP = 'INSERT' THEN\n")
	fmt.Fprintf(&b, "        PERFORM pg_notify('create_%s', %s);\n", desc.Table, keyExpr("NEW", desc))
	b.WriteString("        RETURN NEW;\n")

	fmt.Fprintf(&b, "    ELSIF TG_OP = 'DELETE' THEN\n")
	fmt.Fprintf(&b, "        PERFORM pg_notify('delete_%s', %s);\n", desc.Table, keyExpr("OLD", desc))
	b.WriteString("        RETURN OLD;\n")

	b.WriteString("    ELSIF TG_OP = 'UPDATE' THEN\n")

	pkChanged := make([]string, len(desc.PrimaryKey))
	for i, c := range desc.PrimaryKey {
		pkChanged[i] = fmt.Sprintf("OLD.%s IS DISTINCT FROM NEW.%s", c.Key, c.Key)
	}
	fmt.Fprintf(&b, "        IF %s THEN\n", strings.Join(pkChanged, " OR "))
	fmt.Fprintf(&b, "            PERFORM pg_notify('delete_%s', %s);\n", desc.Table, keyExpr("OLD", desc))
	fmt.Fprintf(&b, "            PERFORM pg_notify('create_%s', %s);\n", desc.Table, keyExpr("NEW", desc))
	b.WriteString("            RETURN NEW;\n        END IF;\n")

	for _, col := range mutableColumns(desc) {
		fmt.Fprintf(&b, "        IF OLD.%s IS DISTINCT FROM NEW.%s THEN\n", col, col)
		fmt.Fprintf(&b, "            changed := changed || E'\\n%s';\n", col)
		b.WriteString("        END IF;\n")
	}

	fmt.Fprintf(&b, "        PERFORM pg_notify('update_%s', %s || changed);\n", desc.Table, keyExpr("NEW", desc))
	b.WriteString("        RETURN NEW;\n    END IF;\n    RETURN NULL;\nEND;\n$$ LANGUAGE plpgsql")
	return b.String()
}

// TriggerSQL renders the statements binding the procedure to the table.
func TriggerSQL(desc *catalog.Descriptor) []string {
	name := desc.Table + "_notify"
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", name, desc.Table),
		fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION notify_%s()",
			name, desc.Table, desc.Table),
	}
}
