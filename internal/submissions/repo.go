package submissions

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"arena/internal/core/apperror"
	"arena/internal/storage/postgres"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo runs the batched queries behind the aggregated view. The number of
// queries per request is fixed, independent of how many submissions match.
type Repo struct {
	txm *postgres.TxManager
}

// NewRepo creates a repo on top of the transaction manager.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

type submissionRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	TaskID    int64     `db:"task_id"`
	Timestamp time.Time `db:"timestamp"`
	Language  *string   `db:"language"`
}

type datasetRow struct {
	ID                  int64  `db:"id"`
	TaskID              int64  `db:"task_id"`
	ScoreType           string `db:"score_type"`
	ScoreTypeParameters string `db:"score_type_parameters"`
}

type fileRow struct {
	SubmissionID int64  `db:"submission_id"`
	Filename     string `db:"filename"`
	Digest       []byte `db:"digest"`
}

type tokenRow struct {
	SubmissionID int64     `db:"submission_id"`
	Timestamp    time.Time `db:"timestamp"`
}

type resultRow struct {
	SubmissionID int64 `db:"submission_id"`
	DatasetID    int64 `db:"dataset_id"`

	CompilationOutcome       *string  `db:"compilation_outcome"`
	CompilationText          *string  `db:"compilation_text"`
	CompilationTries         int64    `db:"compilation_tries"`
	CompilationStdout        *string  `db:"compilation_stdout"`
	CompilationStderr        *string  `db:"compilation_stderr"`
	CompilationTime          *float64 `db:"compilation_time"`
	CompilationWallClockTime *float64 `db:"compilation_wall_clock_time"`
	CompilationMemory        *int64   `db:"compilation_memory"`
	CompilationShard         *int64   `db:"compilation_shard"`
	CompilationSandbox       *string  `db:"compilation_sandbox"`

	EvaluationOutcome *string `db:"evaluation_outcome"`
	EvaluationTries   int64   `db:"evaluation_tries"`

	Score        *float64 `db:"score"`
	ScoreDetails *string  `db:"score_details"`
}

type testcaseRow struct {
	DatasetID int64  `db:"dataset_id"`
	Codename  string `db:"codename"`
	Public    bool   `db:"public"`
}

type evaluationRow struct {
	Codename               string   `db:"codename"`
	Outcome                *string  `db:"outcome"`
	Text                   *string  `db:"text"`
	ExecutionTime          *float64 `db:"execution_time"`
	ExecutionWallClockTime *float64 `db:"execution_wall_clock_time"`
	ExecutionMemory        *int64   `db:"execution_memory"`
	EvaluationShard        *int64   `db:"evaluation_shard"`
	EvaluationSandbox      *string  `db:"evaluation_sandbox"`
}

func (r *Repo) selectInto(ctx context.Context, dst any, builder sq.SelectBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return apperror.NewInternal(err)
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, query, args...); err != nil {
		return apperror.NewDatabase(err)
	}
	return nil
}

func (r *Repo) datasetsByID(ctx context.Context, ids []int64) ([]datasetRow, error) {
	var rows []datasetRow
	err := r.selectInto(ctx, &rows, psql.
		Select("id", "task_id", "score_type", "score_type_parameters").
		From("datasets").
		Where(sq.Eq{"id": ids}))
	return rows, err
}

// activeDatasets fetches the active dataset of each given task.
func (r *Repo) activeDatasets(ctx context.Context, taskIDs []int64) ([]datasetRow, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var rows []datasetRow
	err := r.selectInto(ctx, &rows, psql.
		Select("d.id", "d.task_id", "d.score_type", "d.score_type_parameters").
		From("datasets d").
		Join("tasks t ON d.id = t.active_dataset_id").
		Where(sq.Eq{"t.id": taskIDs}))
	return rows, err
}

func (r *Repo) submissions(ctx context.Context, f Filters) ([]submissionRow, error) {
	builder := psql.
		Select("s.id", "s.user_id", "s.task_id", "s.timestamp", "s.language").
		From("submissions s").
		OrderBy("s.id")
	if len(f.ContestIDs) > 0 {
		builder = builder.
			Join("tasks t ON t.id = s.task_id").
			Where(sq.Eq{"t.contest_id": f.ContestIDs})
	}
	if len(f.UserIDs) > 0 {
		builder = builder.Where(sq.Eq{"s.user_id": f.UserIDs})
	}
	if len(f.TaskIDs) > 0 {
		builder = builder.Where(sq.Eq{"s.task_id": f.TaskIDs})
	}
	var rows []submissionRow
	err := r.selectInto(ctx, &rows, builder)
	return rows, err
}

func (r *Repo) submissionByID(ctx context.Context, id int64) (*submissionRow, error) {
	var rows []submissionRow
	err := r.selectInto(ctx, &rows, psql.
		Select("id", "user_id", "task_id", "timestamp", "language").
		From("submissions").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *Repo) files(ctx context.Context, submissionIDs []int64) ([]fileRow, error) {
	if len(submissionIDs) == 0 {
		return nil, nil
	}
	var rows []fileRow
	err := r.selectInto(ctx, &rows, psql.
		Select("submission_id", "filename", "digest").
		From("files").
		Where(sq.Eq{"submission_id": submissionIDs}))
	return rows, err
}

func (r *Repo) tokens(ctx context.Context, submissionIDs []int64) ([]tokenRow, error) {
	if len(submissionIDs) == 0 {
		return nil, nil
	}
	var rows []tokenRow
	err := r.selectInto(ctx, &rows, psql.
		Select("submission_id", "timestamp").
		From("tokens").
		Where(sq.Eq{"submission_id": submissionIDs}))
	return rows, err
}

func (r *Repo) results(ctx context.Context, submissionIDs, datasetIDs []int64) ([]resultRow, error) {
	if len(submissionIDs) == 0 || len(datasetIDs) == 0 {
		return nil, nil
	}
	var rows []resultRow
	err := r.selectInto(ctx, &rows, psql.
		Select("submission_id", "dataset_id",
			"compilation_outcome", "compilation_text", "compilation_tries",
			"compilation_stdout", "compilation_stderr", "compilation_time",
			"compilation_wall_clock_time", "compilation_memory",
			"compilation_shard", "compilation_sandbox",
			"evaluation_outcome", "evaluation_tries",
			"score", "score_details").
		From("submission_results").
		Where(sq.Eq{"submission_id": submissionIDs}).
		Where(sq.Eq{"dataset_id": datasetIDs}))
	return rows, err
}

func (r *Repo) testcases(ctx context.Context, datasetIDs []int64) ([]testcaseRow, error) {
	if len(datasetIDs) == 0 {
		return nil, nil
	}
	var rows []testcaseRow
	err := r.selectInto(ctx, &rows, psql.
		Select("dataset_id", "codename", "public").
		From("testcases").
		Where(sq.Eq{"dataset_id": datasetIDs}).
		OrderBy("id"))
	return rows, err
}

// evaluations fetches one submission's per-testcase outcomes on one dataset,
// with the testcase codename joined in.
func (r *Repo) evaluations(ctx context.Context, submissionID, datasetID int64) ([]evaluationRow, error) {
	var rows []evaluationRow
	err := r.selectInto(ctx, &rows, psql.
		Select("tc.codename", "e.outcome", "e.text",
			"e.execution_time", "e.execution_wall_clock_time",
			"e.execution_memory", "e.evaluation_shard", "e.evaluation_sandbox").
		From("evaluations e").
		Join("testcases tc ON tc.id = e.testcase_id").
		Where(sq.Eq{"e.submission_id": submissionID, "e.dataset_id": datasetID}))
	return rows, err
}
