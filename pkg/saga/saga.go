package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/retry"
)

// Status represents the outcome of a saga execution
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusCompensated Status = "compensated"
	StatusFailed      Status = "failed"
)

// StepStatus represents the status of a saga step
type StepStatus string

const (
	StepStatusCompleted     StepStatus = "completed"
	StepStatusFailed        StepStatus = "failed"
	StepStatusCompensated   StepStatus = "compensated"
	StepStatusCompensateErr StepStatus = "compensation_failed"
)

// Step is one unit of work operating on the shared saga state
type Step[T any] struct {
	Name       string
	Execute    func(ctx context.Context, state *T) error
	Compensate func(ctx context.Context, state *T) error
	Timeout    time.Duration
	// Retries is the number of extra in-process attempts for errors not marked retry.Permanent
	Retries int
}

// StepResult records what happened to a step
type StepResult struct {
	StepName string        `json:"step_name"`
	Status   StepStatus    `json:"status"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Execution is the record of one run of a Definition
type Execution struct {
	Saga        string        `json:"saga"`
	Status      Status        `json:"status"`
	StepResults []*StepResult `json:"step_results"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// StepFailedError is returned by Run when a step fails. It unwraps to the step error.
type StepFailedError struct {
	Step string
	Err  error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("saga step %s failed: %v", e.Step, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }

// Definition is an ordered list of steps
type Definition[T any] struct {
	Name    string
	Steps   []*Step[T]
	Timeout time.Duration
}

// NewDefinition creates a saga definition with a default timeout of one minute
func NewDefinition[T any](name string) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Timeout: time.Minute,
	}
}

// AddStep appends a step, defaulting its timeout to 10s
func (d *Definition[T]) AddStep(step *Step[T]) *Definition[T] {
	if step.Timeout == 0 {
		step.Timeout = 10 * time.Second
	}
	d.Steps = append(d.Steps, step)
	return d
}

// WithTimeout sets the overall saga timeout
func (d *Definition[T]) WithTimeout(timeout time.Duration) *Definition[T] {
	d.Timeout = timeout
	return d
}

// Run executes the steps in order. When a step fails, completed steps are
// compensated in reverse order and the step error is returned wrapped in a
// StepFailedError.
func (d *Definition[T]) Run(ctx context.Context, state *T) (*Execution, error) {
	log := logger.Get().With(zap.String("saga", d.Name))
	exec := &Execution{
		Saga:      d.Name,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	sagaCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	completed := make([]int, 0, len(d.Steps))
	var failure error

	for i, step := range d.Steps {
		if err := sagaCtx.Err(); err != nil {
			failure = &StepFailedError{Step: step.Name, Err: err}
			break
		}

		result, err := d.runStep(sagaCtx, step, state)
		exec.StepResults = append(exec.StepResults, result)
		if err != nil {
			log.Warn(fmt.Sprintf("Step %s failed", step.Name), zap.Error(err), zap.Int("attempts", result.Attempts))
			failure = &StepFailedError{Step: step.Name, Err: err}
			break
		}
		completed = append(completed, i)
	}

	if failure == nil {
		exec.Status = StatusCompleted
		exec.FinishedAt = time.Now()
		return exec, nil
	}

	exec.Status = StatusCompensated
	// compensation uses the caller context so it still runs after a saga timeout
	for j := len(completed) - 1; j >= 0; j-- {
		idx := completed[j]
		step := d.Steps[idx]
		if step.Compensate == nil {
			continue
		}
		stepCtx, stepCancel := context.WithTimeout(ctx, step.Timeout)
		err := step.Compensate(stepCtx, state)
		stepCancel()
		if err != nil {
			exec.Status = StatusFailed
			exec.StepResults[idx].Status = StepStatusCompensateErr
			exec.StepResults[idx].Error = err.Error()
			log.Error(fmt.Sprintf("Compensation for step %s failed", step.Name), zap.Error(err))
			continue
		}
		exec.StepResults[idx].Status = StepStatusCompensated
	}

	exec.FinishedAt = time.Now()
	return exec, failure
}

func (d *Definition[T]) runStep(ctx context.Context, step *Step[T], state *T) (*StepResult, error) {
	start := time.Now()
	result := &StepResult{StepName: step.Name}

	r := retry.New(&retry.Config{
		MaxRetries:      step.Retries,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	})

	var lastErr error
	res := r.Do(ctx, func(ctx context.Context) error {
		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		defer cancel()
		lastErr = step.Execute(stepCtx, state)
		return lastErr
	})

	result.Attempts = res.Attempts
	result.Duration = time.Since(start)
	if res.Err == nil {
		result.Status = StepStatusCompleted
		return result, nil
	}

	// lastErr keeps any retry.Permanent marker the step attached
	err := lastErr
	if err == nil {
		err = res.Err
	}
	result.Status = StepStatusFailed
	result.Error = err.Error()
	return result, err
}
