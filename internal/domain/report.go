package domain

// ErrorEntry is one error recorded by an engine task.
type ErrorEntry struct {
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace,omitempty"`
}

// TaskReport is the outcome record of one engine task.
type TaskReport struct {
	TaskName string                 `json:"taskName"`
	Success  bool                   `json:"success"`
	Summary  string                 `json:"summary"`
	Errors   []ErrorEntry           `json:"errors,omitempty"`
	Metrics  map[string]interface{} `json:"metrics,omitempty"`
}

// Passed reports whether the task succeeded without recording errors.
func (r *TaskReport) Passed() bool {
	return r.Success && len(r.Errors) == 0
}
