package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepStatus is the outcome of a single pipeline stage.
type StepStatus string

const (
	StepSuccess  StepStatus = "success"
	StepAlert    StepStatus = "alert"
	StepHigh     StepStatus = "high"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// AgentStep is one entry in a pipeline run's trace.
type AgentStep struct {
	Stage      string     `json:"stage"`
	Status     StepStatus `json:"status"`
	Message    string     `json:"message"`
	DurationMs int64      `json:"duration_ms"`
	Retries    int        `json:"retries,omitempty"`
	Fallback   bool       `json:"fallback,omitempty"`
}

// AgentTrace is the ordered, append-only log of stages for one pipeline
// run. It exists for observability and replay only; nothing in the
// pipeline consults it for control flow.
type AgentTrace struct {
	RunID uuid.UUID   `json:"run_id"`
	Steps []AgentStep `json:"steps"`

	mu sync.Mutex
}

// NewTrace starts an empty trace for a pipeline run.
func NewTrace() *AgentTrace {
	return &AgentTrace{RunID: uuid.New()}
}

// Append records a completed stage. Safe for concurrent stages.
func (t *AgentTrace) Append(step AgentStep) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Steps = append(t.Steps, step)
}

// Snapshot returns a copy of the recorded steps in order.
func (t *AgentTrace) Snapshot() []AgentStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AgentStep, len(t.Steps))
	copy(out, t.Steps)
	return out
}

// Record is a convenience wrapper that measures the stage duration from
// start and appends the step.
func (t *AgentTrace) Record(stage string, status StepStatus, message string, start time.Time) {
	t.Append(AgentStep{
		Stage:      stage,
		Status:     status,
		Message:    message,
		DurationMs: time.Since(start).Milliseconds(),
	})
}
