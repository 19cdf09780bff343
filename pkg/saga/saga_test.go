package saga

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prohmpiriya/slot-booking/pkg/retry"
)

type counterState struct {
	log []string
}

func appendStep(name string, fail error) *Step[counterState] {
	return &Step[counterState]{
		Name: name,
		Execute: func(ctx context.Context, s *counterState) error {
			if fail != nil {
				return fail
			}
			s.log = append(s.log, "exec:"+name)
			return nil
		},
		Compensate: func(ctx context.Context, s *counterState) error {
			s.log = append(s.log, "undo:"+name)
			return nil
		},
	}
}

func TestNewDefinition(t *testing.T) {
	def := NewDefinition[counterState]("finalize")

	if def.Name != "finalize" {
		t.Errorf("expected name 'finalize', got '%s'", def.Name)
	}
	if def.Timeout != time.Minute {
		t.Errorf("expected default timeout of 1 minute, got %v", def.Timeout)
	}

	def.AddStep(appendStep("a", nil)).WithTimeout(5 * time.Second)
	if def.Steps[0].Timeout != 10*time.Second {
		t.Errorf("expected default step timeout of 10 seconds, got %v", def.Steps[0].Timeout)
	}
	if def.Timeout != 5*time.Second {
		t.Errorf("expected timeout of 5 seconds, got %v", def.Timeout)
	}
}

func TestRunSuccess(t *testing.T) {
	def := NewDefinition[counterState]("finalize").
		AddStep(appendStep("a", nil)).
		AddStep(appendStep("b", nil))

	state := &counterState{}
	exec, err := def.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", exec.Status)
	}
	if len(exec.StepResults) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(exec.StepResults))
	}
	if got := state.log; len(got) != 2 || got[0] != "exec:a" || got[1] != "exec:b" {
		t.Errorf("unexpected execution order: %v", got)
	}
}

func TestRunCompensatesInReverse(t *testing.T) {
	stepErr := errors.New("store unavailable")
	def := NewDefinition[counterState]("finalize").
		AddStep(appendStep("a", nil)).
		AddStep(appendStep("b", nil)).
		AddStep(appendStep("c", stepErr))

	state := &counterState{}
	exec, err := def.Run(context.Background(), state)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, stepErr) {
		t.Errorf("expected error to wrap step error, got %v", err)
	}

	var sfe *StepFailedError
	if !errors.As(err, &sfe) || sfe.Step != "c" {
		t.Errorf("expected StepFailedError for step c, got %v", err)
	}

	if exec.Status != StatusCompensated {
		t.Errorf("expected status compensated, got %s", exec.Status)
	}

	want := []string{"exec:a", "exec:b", "undo:b", "undo:a"}
	if len(state.log) != len(want) {
		t.Fatalf("expected %v, got %v", want, state.log)
	}
	for i := range want {
		if state.log[i] != want[i] {
			t.Errorf("expected %v, got %v", want, state.log)
			break
		}
	}
	if exec.StepResults[2].Status != StepStatusFailed {
		t.Errorf("expected failed status for step c, got %s", exec.StepResults[2].Status)
	}
	if exec.StepResults[0].Status != StepStatusCompensated {
		t.Errorf("expected compensated status for step a, got %s", exec.StepResults[0].Status)
	}
}

func TestRunCompensationFailure(t *testing.T) {
	def := NewDefinition[counterState]("finalize").
		AddStep(&Step[counterState]{
			Name:    "a",
			Execute: func(ctx context.Context, s *counterState) error { return nil },
			Compensate: func(ctx context.Context, s *counterState) error {
				return errors.New("undo failed")
			},
		}).
		AddStep(appendStep("b", errors.New("boom")))

	exec, err := def.Run(context.Background(), &counterState{})
	if err == nil {
		t.Fatal("expected error")
	}
	if exec.Status != StatusFailed {
		t.Errorf("expected status failed, got %s", exec.Status)
	}
	if exec.StepResults[0].Status != StepStatusCompensateErr {
		t.Errorf("expected compensation_failed, got %s", exec.StepResults[0].Status)
	}
}

func TestRunStepRetries(t *testing.T) {
	var attempts int32
	def := NewDefinition[counterState]("finalize").
		AddStep(&Step[counterState]{
			Name:    "flaky",
			Retries: 2,
			Execute: func(ctx context.Context, s *counterState) error {
				if atomic.AddInt32(&attempts, 1) < 3 {
					return errors.New("temporary")
				}
				return nil
			},
		})

	exec, err := def.Run(context.Background(), &counterState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.StepResults[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exec.StepResults[0].Attempts)
	}
}

func TestRunPermanentErrorSkipsRetries(t *testing.T) {
	var attempts int32
	notFound := errors.New("not found")
	def := NewDefinition[counterState]("finalize").
		AddStep(&Step[counterState]{
			Name:    "load",
			Retries: 3,
			Execute: func(ctx context.Context, s *counterState) error {
				atomic.AddInt32(&attempts, 1)
				return retry.Permanent(notFound)
			},
		})

	_, err := def.Run(context.Background(), &counterState{})
	if !retry.IsPermanent(err) {
		t.Errorf("expected permanent error to surface, got %v", err)
	}
	if !errors.Is(err, notFound) {
		t.Errorf("expected wrapped not found, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRunTimeout(t *testing.T) {
	def := NewDefinition[counterState]("finalize").
		AddStep(&Step[counterState]{
			Name:    "slow",
			Timeout: 20 * time.Millisecond,
			Execute: func(ctx context.Context, s *counterState) error {
				<-ctx.Done()
				return ctx.Err()
			},
		})

	_, err := def.Run(context.Background(), &counterState{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
