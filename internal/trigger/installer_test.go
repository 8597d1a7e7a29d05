package trigger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/catalog"
)

func descriptor(t *testing.T, name string) *catalog.Descriptor {
	t.Helper()
	desc, ok := catalog.Build().Get(name)
	require.True(t, ok, "entity %s", name)
	return desc
}

func TestFunctionSQLSimpleKey(t *testing.T) {
	sql := FunctionSQL(descriptor(t, "Contest"))

	assert.Contains(t, sql, "CREATE OR REPLACE FUNCTION notify_contests() RETURNS TRIGGER")
	assert.Contains(t, sql, "PERFORM pg_notify('create_contests', NEW.id::text);")
	assert.Contains(t, sql, "PERFORM pg_notify('delete_contests', OLD.id::text);")
	assert.Contains(t, sql, "PERFORM pg_notify('update_contests', NEW.id::text || changed);")
	assert.Contains(t, sql, "$$ LANGUAGE plpgsql")
}

func TestFunctionSQLCompositeKey(t *testing.T) {
	sql := FunctionSQL(descriptor(t, "SubmissionResult"))

	// Composite keys are space-joined in declaration order.
	assert.Contains(t, sql,
		"pg_notify('create_submission_results', NEW.submission_id::text || ' ' || NEW.dataset_id::text)")
	assert.Contains(t, sql,
		"pg_notify('delete_submission_results', OLD.submission_id::text || ' ' || OLD.dataset_id::text)")
	assert.Contains(t, sql,
		"IF OLD.submission_id IS DISTINCT FROM NEW.submission_id OR OLD.dataset_id IS DISTINCT FROM NEW.dataset_id THEN")
}

func TestFunctionSQLKeyChangeIsDeleteThenCreate(t *testing.T) {
	sql := FunctionSQL(descriptor(t, "Contest"))

	// A rewritten primary key must announce the old identity's death before
	// the new identity's birth, inside the UPDATE branch.
	updateBranch := sql[strings.Index(sql, "'UPDATE'"):]
	del := strings.Index(updateBranch, "pg_notify('delete_contests'")
	cre := strings.Index(updateBranch, "pg_notify('create_contests'")
	require.GreaterOrEqual(t, del, 0)
	require.GreaterOrEqual(t, cre, 0)
	assert.Less(t, del, cre)
}

func TestFunctionSQLChangedColumns(t *testing.T) {
	sql := FunctionSQL(descriptor(t, "User"))

	// Every scalar and FK column gets its own NULL-safe comparison; the
	// primary key never appears in the changed-column list.
	for _, col := range []string{"first_name", "username", "password", "access_level", "contest_id"} {
		assert.Contains(t, sql, "IF OLD."+col+" IS DISTINCT FROM NEW."+col+" THEN")
		assert.Contains(t, sql, `E'\n`+col+`'`)
	}
	assert.NotContains(t, sql, `E'\nid'`)
}

func TestFunctionSQLCompositeFKColumnsNotDuplicated(t *testing.T) {
	// submission_id and dataset_id are both PK and FK on submission_results:
	// they belong to the key-change branch, not the changed-column list.
	sql := FunctionSQL(descriptor(t, "SubmissionResult"))
	assert.NotContains(t, sql, `E'\nsubmission_id'`)
	assert.NotContains(t, sql, `E'\ndataset_id'`)
	assert.Contains(t, sql, `E'\nscore'`)
	assert.Contains(t, sql, `E'\ncompilation_outcome'`)
}

func TestTriggerSQL(t *testing.T) {
	stmts := TriggerSQL(descriptor(t, "Task"))
	require.Len(t, stmts, 2)
	assert.Equal(t, "DROP TRIGGER IF EXISTS tasks_notify ON tasks", stmts[0])
	assert.Equal(t,
		"CREATE TRIGGER tasks_notify AFTER INSERT OR UPDATE OR DELETE ON tasks FOR EACH ROW EXECUTE FUNCTION notify_tasks()",
		stmts[1])
}

func TestFunctionSQLIsIdempotentText(t *testing.T) {
	desc := descriptor(t, "Testcase")
	assert.Equal(t, FunctionSQL(desc), FunctionSQL(desc))
}
