package catalog

// Build assembles the full entity catalog. It is called once during startup
// wiring; the returned registry is shared read-only by every component.
func Build() *Registry {
	r := NewRegistry()

	id := []Column{{Key: "id", Type: Int}}

	r.Register(&Descriptor{
		Name:       "Contest",
		Table:      "contests",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "name", Type: Unicode, Unique: true},
			{Key: "description", Type: Unicode},
			{Key: "token_initial", Type: Int, Nullable: true},
			{Key: "start", Type: Timestamp},
			{Key: "stop", Type: Timestamp},
			{Key: "per_user_time", Type: Duration, Nullable: true},
		},
		Relationships: []Relationship{
			{Key: "tasks", Cardinality: List, Target: "Task", Backref: []string{"contest_id"}},
			{Key: "users", Cardinality: List, Target: "User", Backref: []string{"contest_id"}},
		},
	})

	r.Register(&Descriptor{
		Name:       "User",
		Table:      "users",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "first_name", Type: Unicode},
			{Key: "last_name", Type: Unicode},
			{Key: "username", Type: Unicode, Unique: true},
			{Key: "password", Type: Unicode},
			{Key: "email", Type: Unicode, Nullable: true},
			{Key: "access_level", Type: Int},
			{Key: "registration_time", Type: Timestamp},
		},
		Relationships: []Relationship{
			{Key: "contest", Cardinality: One, Target: "Contest", ForeignKey: []string{"contest_id"}, Nullable: true, OnDelete: "CASCADE"},
			{Key: "submissions", Cardinality: List, Target: "Submission", Backref: []string{"user_id"}},
		},
	})

	r.Register(&Descriptor{
		Name:       "Task",
		Table:      "tasks",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "num", Type: Int, Nullable: true},
			{Key: "name", Type: Unicode, Unique: true},
			{Key: "title", Type: Unicode},
			{Key: "access_level", Type: Int},
			{Key: "score_mode", Type: Unicode, Nullable: true},
		},
		Relationships: []Relationship{
			{Key: "contest", Cardinality: One, Target: "Contest", ForeignKey: []string{"contest_id"}, Nullable: true, OnDelete: "SET NULL"},
			{Key: "active_dataset", Cardinality: One, Target: "Dataset", ForeignKey: []string{"active_dataset_id"}, Nullable: true, OnDelete: "SET NULL"},
			{Key: "statements", Cardinality: Keyed, Target: "Statement", Backref: []string{"task_id"}, KeyColumn: "language"},
			{Key: "datasets", Cardinality: List, Target: "Dataset", Backref: []string{"task_id"}},
			{Key: "submissions", Cardinality: List, Target: "Submission", Backref: []string{"task_id"}},
		},
	})

	r.Register(&Descriptor{
		Name:       "Statement",
		Table:      "statements",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "language", Type: Unicode},
			{Key: "digest", Type: Latin1},
		},
		Relationships: []Relationship{
			{Key: "task", Cardinality: One, Target: "Task", ForeignKey: []string{"task_id"}, OnDelete: "CASCADE"},
		},
	})

	r.Register(&Descriptor{
		Name:       "Dataset",
		Table:      "datasets",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "description", Type: Unicode},
			{Key: "autojudge", Type: Bool},
			{Key: "time_limit", Type: Float, Nullable: true},
			{Key: "memory_limit", Type: Int, Nullable: true},
			{Key: "task_type", Type: Unicode},
			{Key: "task_type_parameters", Type: Unicode},
			{Key: "score_type", Type: Unicode},
			{Key: "score_type_parameters", Type: Unicode},
		},
		Relationships: []Relationship{
			{Key: "task", Cardinality: One, Target: "Task", ForeignKey: []string{"task_id"}, OnDelete: "CASCADE"},
			{Key: "testcases", Cardinality: Keyed, Target: "Testcase", Backref: []string{"dataset_id"}, KeyColumn: "codename"},
		},
	})

	r.Register(&Descriptor{
		Name:       "Testcase",
		Table:      "testcases",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "codename", Type: Unicode},
			{Key: "public", Type: Bool},
			{Key: "input", Type: Latin1},
			{Key: "output", Type: Latin1},
		},
		Relationships: []Relationship{
			{Key: "dataset", Cardinality: One, Target: "Dataset", ForeignKey: []string{"dataset_id"}, OnDelete: "CASCADE"},
		},
	})

	r.Register(&Descriptor{
		Name:       "Submission",
		Table:      "submissions",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "timestamp", Type: Timestamp},
			{Key: "language", Type: Unicode, Nullable: true},
		},
		Relationships: []Relationship{
			{Key: "user", Cardinality: One, Target: "User", ForeignKey: []string{"user_id"}, OnDelete: "CASCADE"},
			{Key: "task", Cardinality: One, Target: "Task", ForeignKey: []string{"task_id"}, OnDelete: "CASCADE"},
			{Key: "files", Cardinality: Keyed, Target: "File", Backref: []string{"submission_id"}, KeyColumn: "filename"},
			{Key: "token", Cardinality: One, Target: "Token", Backref: []string{"submission_id"}},
			{Key: "results", Cardinality: List, Target: "SubmissionResult", Backref: []string{"submission_id"}},
		},
	})

	r.Register(&Descriptor{
		Name:       "File",
		Table:      "files",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "filename", Type: Unicode},
			{Key: "digest", Type: Latin1},
		},
		Relationships: []Relationship{
			{Key: "submission", Cardinality: One, Target: "Submission", ForeignKey: []string{"submission_id"}, OnDelete: "CASCADE"},
		},
	})

	r.Register(&Descriptor{
		Name:       "Token",
		Table:      "tokens",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "timestamp", Type: Timestamp},
		},
		Relationships: []Relationship{
			{Key: "submission", Cardinality: One, Target: "Submission", ForeignKey: []string{"submission_id"}, OnDelete: "CASCADE"},
		},
	})

	// Composite primary key: its reference is "<submission_id>_<dataset_id>".
	r.Register(&Descriptor{
		Name:  "SubmissionResult",
		Table: "submission_results",
		PrimaryKey: []Column{
			{Key: "submission_id", Type: Int},
			{Key: "dataset_id", Type: Int},
		},
		Columns: []Column{
			{Key: "compilation_outcome", Type: Unicode, Nullable: true},
			{Key: "compilation_text", Type: Unicode, Nullable: true},
			{Key: "compilation_tries", Type: Int},
			{Key: "compilation_stdout", Type: Unicode, Nullable: true},
			{Key: "compilation_stderr", Type: Unicode, Nullable: true},
			{Key: "compilation_time", Type: Float, Nullable: true},
			{Key: "compilation_wall_clock_time", Type: Float, Nullable: true},
			{Key: "compilation_memory", Type: Int, Nullable: true},
			{Key: "compilation_shard", Type: Int, Nullable: true},
			{Key: "compilation_sandbox", Type: Unicode, Nullable: true},
			{Key: "evaluation_outcome", Type: Unicode, Nullable: true},
			{Key: "evaluation_tries", Type: Int},
			{Key: "score", Type: Float, Nullable: true},
			{Key: "score_details", Type: Unicode, Nullable: true},
		},
		Relationships: []Relationship{
			{Key: "submission", Cardinality: One, Target: "Submission", ForeignKey: []string{"submission_id"}, OnDelete: "CASCADE"},
			{Key: "dataset", Cardinality: One, Target: "Dataset", ForeignKey: []string{"dataset_id"}, OnDelete: "CASCADE"},
			{Key: "evaluations", Cardinality: List, Target: "Evaluation", Backref: []string{"submission_id", "dataset_id"}},
		},
	})

	r.Register(&Descriptor{
		Name:       "Evaluation",
		Table:      "evaluations",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "outcome", Type: Unicode, Nullable: true},
			{Key: "text", Type: Unicode, Nullable: true},
			{Key: "execution_time", Type: Float, Nullable: true},
			{Key: "execution_wall_clock_time", Type: Float, Nullable: true},
			{Key: "execution_memory", Type: Int, Nullable: true},
			{Key: "evaluation_shard", Type: Int, Nullable: true},
			{Key: "evaluation_sandbox", Type: Unicode, Nullable: true},
		},
		Relationships: []Relationship{
			{Key: "result", Cardinality: One, Target: "SubmissionResult", ForeignKey: []string{"submission_id", "dataset_id"}, OnDelete: "CASCADE"},
			{Key: "testcase", Cardinality: One, Target: "Testcase", ForeignKey: []string{"testcase_id"}, OnDelete: "CASCADE"},
		},
	})

	// Location hierarchy for the contestant-facing portal.
	r.Register(&Descriptor{
		Name:       "Region",
		Table:      "regions",
		PrimaryKey: id,
		Columns:    []Column{{Key: "name", Type: Unicode}},
		Relationships: []Relationship{
			{Key: "provinces", Cardinality: List, Target: "Province", Backref: []string{"region_id"}},
		},
	})
	r.Register(&Descriptor{
		Name:       "Province",
		Table:      "provinces",
		PrimaryKey: id,
		Columns:    []Column{{Key: "name", Type: Unicode}},
		Relationships: []Relationship{
			{Key: "region", Cardinality: One, Target: "Region", ForeignKey: []string{"region_id"}, OnDelete: "CASCADE"},
			{Key: "cities", Cardinality: List, Target: "City", Backref: []string{"province_id"}},
		},
	})
	r.Register(&Descriptor{
		Name:       "City",
		Table:      "cities",
		PrimaryKey: id,
		Columns:    []Column{{Key: "name", Type: Unicode}},
		Relationships: []Relationship{
			{Key: "province", Cardinality: One, Target: "Province", ForeignKey: []string{"province_id"}, OnDelete: "CASCADE"},
			{Key: "institutes", Cardinality: List, Target: "Institute", Backref: []string{"city_id"}},
		},
	})
	r.Register(&Descriptor{
		Name:       "Institute",
		Table:      "institutes",
		PrimaryKey: id,
		Columns:    []Column{{Key: "name", Type: Unicode}},
		Relationships: []Relationship{
			{Key: "city", Cardinality: One, Target: "City", ForeignKey: []string{"city_id"}, OnDelete: "CASCADE"},
		},
	})

	// Practice tests.
	r.Register(&Descriptor{
		Name:       "Test",
		Table:      "tests",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "name", Type: Unicode, Unique: true},
			{Key: "description", Type: Unicode},
			{Key: "access_level", Type: Int},
			{Key: "max_score", Type: Int},
		},
		Relationships: []Relationship{
			{Key: "questions", Cardinality: List, Target: "Question", Backref: []string{"test_id"}},
		},
	})
	r.Register(&Descriptor{
		Name:       "Question",
		Table:      "questions",
		PrimaryKey: id,
		Columns: []Column{
			{Key: "text", Type: Unicode},
			{Key: "answers", Type: Unicode},
			{Key: "type", Type: Unicode},
			{Key: "score", Type: Int},
			{Key: "wrong_score", Type: Int},
		},
		Relationships: []Relationship{
			{Key: "test", Cardinality: One, Target: "Test", ForeignKey: []string{"test_id"}, OnDelete: "CASCADE"},
		},
	})

	if err := r.Validate(); err != nil {
		panic(err)
	}
	return r
}
