package domain

// CommandResult is what `oplockctl run` records as the operation result.
type CommandResult struct {
	Argv       []string `json:"argv"`
	ExitCode   int      `json:"exit_code"`
	Stdout     string   `json:"stdout"`
	Stderr     string   `json:"stderr,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	TimedOut   bool     `json:"timed_out,omitempty"`
}
