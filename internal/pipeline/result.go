package pipeline

// Outcome tags a pipeline result. Every code path returns one of these;
// failures never cross the boundary as panics.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeSuspended Outcome = "suspended"
	OutcomeFailure   Outcome = "failure"
)

// File is one parsed artifact of a successful run.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Result is the tagged outcome of Run or Resume.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// Success
	Output string `json:"output,omitempty"`
	Files  []File `json:"files,omitempty"`

	// Suspended
	Command   *Command            `json:"command,omitempty"`
	Suspended *SuspendedExecution `json:"suspended,omitempty"`

	// Failure
	Err             string `json:"error,omitempty"`
	RetrySuggestion string `json:"retry_suggestion,omitempty"`

	// Step log accumulated during this call, for the run journal.
	Logs []string `json:"logs,omitempty"`
}

func success(output string, files []File, logs []string) Result {
	return Result{Outcome: OutcomeSuccess, Output: output, Files: files, Logs: logs}
}

func suspended(s *SuspendedExecution, logs []string) Result {
	return Result{Outcome: OutcomeSuspended, Command: &s.Command, Suspended: s, Logs: logs}
}

func failure(err error, suggestion string, logs []string) Result {
	return Result{Outcome: OutcomeFailure, Err: err.Error(), RetrySuggestion: suggestion, Logs: logs}
}
