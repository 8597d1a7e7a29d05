// Package submissions provides the aggregated read view over submissions:
// one response carries data that would otherwise take one generic request
// per file, token, result and evaluation, plus scoring data that the generic
// surface cannot compute at all.
package submissions

// Filters restricts a submission listing. Values within one field are OR-ed,
// fields are AND-ed. DatasetIDs picks the judged dataset per task instead of
// the task's active one.
type Filters struct {
	ContestIDs []int64
	UserIDs    []int64
	TaskIDs    []int64
	DatasetIDs []int64
}

// Summary is one row of the submission list.
type Summary struct {
	Ref       string  `json:"_ref"`
	Dataset   string  `json:"dataset"`
	User      string  `json:"user"`
	Task      string  `json:"task"`
	Timestamp float64 `json:"timestamp"`
	Language  *string `json:"language"`

	Files map[string]string `json:"files"`
	Token *float64          `json:"token"`

	CompilationOutcome *bool    `json:"compilation_outcome"`
	CompilationTries   int64    `json:"compilation_tries"`
	EvaluationOutcome  *bool    `json:"evaluation_outcome"`
	EvaluationTries    int64    `json:"evaluation_tries"`
	Score              *float64 `json:"score"`
	MaxScore           float64  `json:"max_score"`
}

// Evaluation is one testcase outcome inside a Detail.
type Evaluation struct {
	Codename               string   `json:"codename"`
	Outcome                *string  `json:"outcome"`
	Text                   *string  `json:"text"`
	ExecutionTime          *float64 `json:"execution_time"`
	ExecutionWallClockTime *float64 `json:"execution_wall_clock_time"`
	ExecutionMemory        *int64   `json:"execution_memory"`
	EvaluationShard        *int64   `json:"evaluation_shard"`
	EvaluationSandbox      *string  `json:"evaluation_sandbox"`
}

// Detail is the full record of one submission on one dataset.
type Detail struct {
	Ref       string  `json:"_ref"`
	Dataset   string  `json:"dataset"`
	User      string  `json:"user"`
	Task      string  `json:"task"`
	Timestamp float64 `json:"timestamp"`
	Language  *string `json:"language"`

	CompilationOutcome       *bool    `json:"compilation_outcome"`
	CompilationText          *string  `json:"compilation_text"`
	CompilationTries         int64    `json:"compilation_tries"`
	CompilationStdout        *string  `json:"compilation_stdout"`
	CompilationStderr        *string  `json:"compilation_stderr"`
	CompilationTime          *float64 `json:"compilation_time"`
	CompilationWallClockTime *float64 `json:"compilation_wall_clock_time"`
	CompilationMemory        *int64   `json:"compilation_memory"`
	CompilationShard         *int64   `json:"compilation_shard"`
	CompilationSandbox       *string  `json:"compilation_sandbox"`

	EvaluationOutcome *bool                 `json:"evaluation_outcome"`
	EvaluationTries   int64                 `json:"evaluation_tries"`
	Evaluations       map[string]Evaluation `json:"evaluations"`

	Score        *float64 `json:"score"`
	MaxScore     float64  `json:"max_score"`
	ScoreDetails *string  `json:"score_details"`
}

// outcomeBool maps a stored compilation outcome to the wire form: "ok" is
// true, "fail" is false, anything else (including pending) is null.
func compilationOutcome(s *string) *bool {
	if s == nil {
		return nil
	}
	switch *s {
	case "ok":
		v := true
		return &v
	case "fail":
		v := false
		return &v
	}
	return nil
}

// evaluationOutcome maps a stored evaluation outcome: only "ok" becomes
// true, everything else is null.
func evaluationOutcome(s *string) *bool {
	if s == nil || *s != "ok" {
		return nil
	}
	v := true
	return &v
}
