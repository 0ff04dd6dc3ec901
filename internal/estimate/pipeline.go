package estimate

import (
	"context"
	"fmt"
	"time"
)

// Stage is one step of a pipeline.
type Stage[In, Out any] struct {
	Name string
	Run  func(ctx context.Context, in In) (Out, error)
}

// StageError reports which stage of a pipeline failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Hook observes every finished stage run.
type Hook func(ctx context.Context, stage string, elapsed time.Duration, err error)

// Pipeline runs two dependent stages: the output of First is the input of
// Second. Both the intermediate and the final value are returned.
type Pipeline[In, Mid, Out any] struct {
	First  Stage[In, Mid]
	Second Stage[Mid, Out]
	Hook   Hook
}

// Run executes the stages in order. A failing stage stops the pipeline and no
// partial result is returned.
func (p Pipeline[In, Mid, Out]) Run(ctx context.Context, in In) (Mid, Out, error) {
	var (
		zeroMid Mid
		zeroOut Out
	)

	mid, err := runStage(ctx, p.First, in, p.Hook)
	if err != nil {
		return zeroMid, zeroOut, err
	}

	out, err := runStage(ctx, p.Second, mid, p.Hook)
	if err != nil {
		return zeroMid, zeroOut, err
	}
	return mid, out, nil
}

func runStage[In, Out any](ctx context.Context, stage Stage[In, Out], in In, hook Hook) (Out, error) {
	if err := ctx.Err(); err != nil {
		var zero Out
		return zero, &StageError{Stage: stage.Name, Err: err}
	}

	start := time.Now()
	out, err := stage.Run(ctx, in)
	if hook != nil {
		hook(ctx, stage.Name, time.Since(start), err)
	}
	if err != nil {
		var zero Out
		return zero, &StageError{Stage: stage.Name, Err: err}
	}
	return out, nil
}
