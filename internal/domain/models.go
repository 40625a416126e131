// Package domain defines the core data types shared across judgerd.
// These types represent the Manager/Executor data model — not HTTP specifics.
//
// Design note on JSON tags: domain types carry json tags because they are
// directly serialized in HTTP bodies (heartbeat payloads, judgment context
// handed to the pipeline subprocess, result reports) rather than mapped
// through a separate DTO layer.
package domain

import (
	"errors"
	"time"
)

// Sentinel errors returned by store and client implementations so callers
// can branch on outcome without parsing error strings.
var (
	// ErrNotFound is returned when a lookup (task, executor, cache entry)
	// matches no record.
	ErrNotFound = errors.New("domain: not found")

	// ErrAlreadyExists is returned by inserts that would violate a uniqueness
	// invariant (e.g. a second Executor row for the same IP).
	ErrAlreadyExists = errors.New("domain: already exists")
)

// Task is a queued judgment awaiting dispatch. FIFO by ID; created by the
// Manager HTTP face on intake, consumed and destroyed by the dispatcher on
// successful assignment.
type Task struct {
	ID         int64
	JudgmentID int64
	CreatedAt  time.Time
}

// Executor is the Manager's view of one worker node, keyed by its unique IP.
// Data holds the most recent heartbeat payload verbatim; Idle is an
// advisory bit, not a lock — see SPEC_FULL.md §9 "Executor idle as advisory".
type Executor struct {
	ID          int64
	IP          string
	Data        HeartbeatPayload
	LastUpdated time.Time
	Idle        bool
}

// HeartbeatPayload is the JSON body an Executor posts to the Manager's
// heartbeat sink, and the shape Executor.Data decodes to.
type HeartbeatPayload struct {
	Hostname     string `json:"hostname"`
	CPUModelName string `json:"cpu_model_name"`
	NCPUs        int    `json:"n_cpus"`
	MemoryMiB    int    `json:"memory_mib"`
	IsAlive      bool   `json:"is_alive"`
}

// JudgeResult is the verdict vocabulary a pipeline may report.
type JudgeResult string

const (
	ResultPassed JudgeResult = "passed"
	ResultFailed JudgeResult = "failed"
	ResultError  JudgeResult = "error"
)

// JudgmentResultReport is the body an Executor's pipeline POSTs to the
// Manager's result sink, and the body the Manager forwards (minus
// FunctionImpls) to the Web backend.
type JudgmentResultReport struct {
	Result        JudgeResult `json:"result"`
	Log           string      `json:"log"`
	FunctionImpls []string    `json:"function_impls,omitempty"`
}

// JudgmentContext is the transient per-evaluation state an Executor
// assembles during intake and hands to the pipeline subprocess as JSON on
// its stdin (inside a PipelineInvocation).
type JudgmentContext struct {
	JudgmentID           int64                 `json:"judgment_id"`
	SubmissionID         int64                 `json:"submission_id"`
	ProblemID            int64                 `json:"problem_id"`
	TemplateID           int64                 `json:"template_id"`
	HasAutograder        bool                  `json:"has_autograder"`
	UnitTestName         string                `json:"unit_test_name,omitempty"`
	FunctionRequirements []FunctionRequirement `json:"function_requirements,omitempty"`
	WorkingDir           string                `json:"working_dir"`
}

// PipelineInvocation is the JSON payload an Executor writes to
// cmd/judge-pipeline's stdin: the judgment context plus the host settings
// the pipeline needs to reach the Manager and size its own build
// parallelism, neither of which belongs on JudgmentContext itself since
// they're Executor configuration, not per-judgment data.
type PipelineInvocation struct {
	ManagerIP     string          `json:"manager_ip"`
	ManagerPort   int             `json:"manager_port"`
	ParallelBuild int             `json:"parallel_build"`
	Judgment      JudgmentContext `json:"judgment"`
}

// FunctionParameter is one parameter of a FunctionSignature.
type FunctionParameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FunctionSignature names a function the extractor must locate. Name may be
// qualified as "Class::method"; Type strings are exactly as stored by the
// Web backend and must be reconciled against clang-canonical
// spellings by the extractor (see internal/extractor).
type FunctionSignature struct {
	ReturnType string              `json:"return_type"`
	Name       string              `json:"name"`
	Parameters []FunctionParameter `json:"parameters"`
}

// FunctionRequirement is a declarative request for the source text of one
// function in the submission.
type FunctionRequirement struct {
	ID                int64             `json:"id"`
	ProblemID         int64             `json:"problem_id"`
	SourceFilePath    string            `json:"source_file_path"`
	FunctionSignature FunctionSignature `json:"function_signature"`
}

// TemplateCacheEntry records what internal/templatecache knows about one
// cached problem template.
type TemplateCacheEntry struct {
	TemplateID int64
	UpdatedAt  string // ISO-8601, compared lexicographically, see SPEC_FULL.md §4.5
	Path       string // unpacked contents root
	DirName    string // basename of Path
}

// Judgment, Submission, Problem, SubmissionCode and TemplateMeta are the
// subset of Web-backend resource fields judgerd actually reads; the full
// judgment-submission-problem graph is owned and stored by the Web backend,
// not judgerd (spec.md §1).
type Judgment struct {
	ID           int64 `json:"id"`
	SubmissionID int64 `json:"submission_id"`
}

type Submission struct {
	ID        int64 `json:"id"`
	ProblemID int64 `json:"problem_id"`
}

type Problem struct {
	ID            int64  `json:"id"`
	TemplateID    int64  `json:"template_id"`
	HasAutograder bool   `json:"has_autograder"`
	UnitTestName  string `json:"unit_test_name,omitempty"`
}

type SubmissionCode struct {
	AttachmentID int64 `json:"attachment_id"`
}

type TemplateMeta struct {
	UpdatedAt string `json:"updated_at"`
}
