package submissions

import (
	"context"
	"time"

	"arena/internal/catalog"
	"arena/internal/codec"
	"arena/internal/core/apperror"
	"arena/internal/scoring"
	"arena/internal/storage/postgres"
	"arena/pkg/logger"
)

// Service assembles the aggregated view. All queries of one request run in a
// single read-only transaction so they observe one snapshot.
type Service struct {
	repo *Repo
	txm  *postgres.TxManager
}

// NewService creates the service.
func NewService(repo *Repo, txm *postgres.TxManager) *Service {
	return &Service{repo: repo, txm: txm}
}

// List returns summaries of every submission matching the filters. Explicit
// dataset filters must name at most one dataset per task; otherwise, or if a
// named dataset does not exist, the request conflicts.
func (s *Service) List(ctx context.Context, f Filters) ([]Summary, error) {
	var out []Summary
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.list(ctx, f)
		return err
	})
	return out, err
}

func (s *Service) list(ctx context.Context, f Filters) ([]Summary, error) {
	var datasets []datasetRow
	if len(f.DatasetIDs) > 0 {
		var err error
		datasets, err = s.repo.datasetsByID(ctx, f.DatasetIDs)
		if err != nil {
			return nil, err
		}
		if err := checkDatasetFilter(datasets, f.DatasetIDs); err != nil {
			return nil, err
		}
	}

	subs, err := s.repo.submissions(ctx, f)
	if err != nil {
		return nil, err
	}

	// Tasks not covered by an explicit dataset use their active one.
	covered := make(map[int64]struct{}, len(datasets))
	for _, d := range datasets {
		covered[d.TaskID] = struct{}{}
	}
	var needActive []int64
	seen := make(map[int64]struct{})
	for _, sub := range subs {
		if _, ok := covered[sub.TaskID]; ok {
			continue
		}
		if _, dup := seen[sub.TaskID]; dup {
			continue
		}
		seen[sub.TaskID] = struct{}{}
		needActive = append(needActive, sub.TaskID)
	}
	active, err := s.repo.activeDatasets(ctx, needActive)
	if err != nil {
		return nil, err
	}
	datasets = append(datasets, active...)

	datasetByTask := make(map[int64]datasetRow, len(datasets))
	datasetIDs := make([]int64, 0, len(datasets))
	for _, d := range datasets {
		datasetByTask[d.TaskID] = d
		datasetIDs = append(datasetIDs, d.ID)
	}
	submissionIDs := make([]int64, 0, len(subs))
	for _, sub := range subs {
		submissionIDs = append(submissionIDs, sub.ID)
	}

	files, err := s.repo.files(ctx, submissionIDs)
	if err != nil {
		return nil, err
	}
	tokens, err := s.repo.tokens(ctx, submissionIDs)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.results(ctx, submissionIDs, datasetIDs)
	if err != nil {
		return nil, err
	}
	testcases, err := s.repo.testcases(ctx, datasetIDs)
	if err != nil {
		return nil, err
	}

	maxScores, err := maxScoresByDataset(datasets, testcases)
	if err != nil {
		return nil, err
	}

	filesBySub := make(map[int64]map[string]string)
	for _, fr := range files {
		if filesBySub[fr.SubmissionID] == nil {
			filesBySub[fr.SubmissionID] = make(map[string]string)
		}
		filesBySub[fr.SubmissionID][fr.Filename] = latin1(fr.Digest)
	}
	tokenBySub := make(map[int64]float64, len(tokens))
	for _, tr := range tokens {
		tokenBySub[tr.SubmissionID] = wireTime(tr.Timestamp)
	}
	resultBySub := make(map[int64]resultRow, len(results))
	for _, rr := range results {
		resultBySub[rr.SubmissionID] = rr
	}

	out := make([]Summary, 0, len(subs))
	for _, sub := range subs {
		dataset, ok := datasetByTask[sub.TaskID]
		if !ok {
			// Task has neither an explicit nor an active dataset; there
			// is nothing to judge against, so skip the submission.
			logger.Warn(ctx, "submission skipped, task has no dataset",
				"submission_id", sub.ID, "task_id", sub.TaskID)
			continue
		}

		item := Summary{
			Ref:       codec.FormatKey(catalog.Key{sub.ID}),
			Dataset:   codec.FormatKey(catalog.Key{dataset.ID}),
			User:      codec.FormatKey(catalog.Key{sub.UserID}),
			Task:      codec.FormatKey(catalog.Key{sub.TaskID}),
			Timestamp: wireTime(sub.Timestamp),
			Language:  sub.Language,
			Files:     filesBySub[sub.ID],
			MaxScore:  maxScores[dataset.ID],
		}
		if item.Files == nil {
			item.Files = map[string]string{}
		}
		if t, ok := tokenBySub[sub.ID]; ok {
			item.Token = &t
		}
		if rr, ok := resultBySub[sub.ID]; ok {
			item.CompilationOutcome = compilationOutcome(rr.CompilationOutcome)
			item.CompilationTries = rr.CompilationTries
			item.EvaluationOutcome = evaluationOutcome(rr.EvaluationOutcome)
			item.EvaluationTries = rr.EvaluationTries
			item.Score = rr.Score
		}
		out = append(out, item)
	}
	return out, nil
}

// Get returns the full record of one submission, judged on the given dataset
// or, when nil, on its task's active dataset.
func (s *Service) Get(ctx context.Context, submissionID int64, datasetID *int64) (*Detail, error) {
	var out *Detail
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.get(ctx, submissionID, datasetID)
		return err
	})
	return out, err
}

func (s *Service) get(ctx context.Context, submissionID int64, datasetID *int64) (*Detail, error) {
	sub, err := s.repo.submissionByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperror.NewNotFound("submission", submissionID)
	}

	var datasets []datasetRow
	if datasetID != nil {
		datasets, err = s.repo.datasetsByID(ctx, []int64{*datasetID})
	} else {
		datasets, err = s.repo.activeDatasets(ctx, []int64{sub.TaskID})
	}
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		return nil, apperror.NewNotFound("dataset", datasetID)
	}
	dataset := datasets[0]

	testcases, err := s.repo.testcases(ctx, []int64{dataset.ID})
	if err != nil {
		return nil, err
	}
	maxScores, err := maxScoresByDataset([]datasetRow{dataset}, testcases)
	if err != nil {
		return nil, err
	}

	detail := &Detail{
		Ref:         codec.FormatKey(catalog.Key{sub.ID}),
		Dataset:     codec.FormatKey(catalog.Key{dataset.ID}),
		User:        codec.FormatKey(catalog.Key{sub.UserID}),
		Task:        codec.FormatKey(catalog.Key{sub.TaskID}),
		Timestamp:   wireTime(sub.Timestamp),
		Language:    sub.Language,
		Evaluations: map[string]Evaluation{},
		MaxScore:    maxScores[dataset.ID],
	}

	results, err := s.repo.results(ctx, []int64{sub.ID}, []int64{dataset.ID})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return detail, nil
	}
	rr := results[0]

	detail.CompilationOutcome = compilationOutcome(rr.CompilationOutcome)
	detail.CompilationText = rr.CompilationText
	detail.CompilationTries = rr.CompilationTries
	detail.CompilationStdout = rr.CompilationStdout
	detail.CompilationStderr = rr.CompilationStderr
	detail.CompilationTime = rr.CompilationTime
	detail.CompilationWallClockTime = rr.CompilationWallClockTime
	detail.CompilationMemory = rr.CompilationMemory
	detail.CompilationShard = rr.CompilationShard
	detail.CompilationSandbox = rr.CompilationSandbox
	detail.EvaluationOutcome = evaluationOutcome(rr.EvaluationOutcome)
	detail.EvaluationTries = rr.EvaluationTries
	detail.Score = rr.Score
	if rr.Score != nil {
		detail.ScoreDetails = rr.ScoreDetails
	}

	evals, err := s.repo.evaluations(ctx, sub.ID, dataset.ID)
	if err != nil {
		return nil, err
	}
	for _, ev := range evals {
		detail.Evaluations[ev.Codename] = Evaluation{
			Codename:               ev.Codename,
			Outcome:                ev.Outcome,
			Text:                   ev.Text,
			ExecutionTime:          ev.ExecutionTime,
			ExecutionWallClockTime: ev.ExecutionWallClockTime,
			ExecutionMemory:        ev.ExecutionMemory,
			EvaluationShard:        ev.EvaluationShard,
			EvaluationSandbox:      ev.EvaluationSandbox,
		}
	}
	return detail, nil
}

// checkDatasetFilter validates an explicit dataset filter against the rows it
// matched: every requested dataset must exist, and no two may belong to the
// same task, or the view could not pick one dataset per task.
func checkDatasetFilter(datasets []datasetRow, requested []int64) error {
	tasks := make(map[int64]struct{}, len(datasets))
	for _, d := range datasets {
		tasks[d.TaskID] = struct{}{}
	}
	if len(tasks) < len(requested) {
		return apperror.NewConflict("dataset filter must name existing datasets of distinct tasks")
	}
	return nil
}

// maxScoresByDataset reconstructs each dataset's maximum score from its
// score type and testcases.
func maxScoresByDataset(datasets []datasetRow, testcases []testcaseRow) (map[int64]float64, error) {
	tcByDataset := make(map[int64][]scoring.Testcase)
	for _, tc := range testcases {
		tcByDataset[tc.DatasetID] = append(tcByDataset[tc.DatasetID],
			scoring.Testcase{Codename: tc.Codename, Public: tc.Public})
	}
	out := make(map[int64]float64, len(datasets))
	for _, d := range datasets {
		st, err := scoring.New(d.ScoreType, d.ScoreTypeParameters, tcByDataset[d.ID])
		if err != nil {
			return nil, apperror.NewInternal(err).WithDetail("dataset", d.ID)
		}
		out[d.ID] = st.MaxScore()
	}
	return out, nil
}

func wireTime(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
