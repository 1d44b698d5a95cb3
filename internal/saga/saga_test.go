package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaga_RunsStepsInOrder(t *testing.T) {
	var trace []string
	s := NewSaga("ordered", zap.NewNop())
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.AddStep(SagaStep{
			Name:    name,
			Execute: func(context.Context) error { trace = append(trace, name); return nil },
		})
	}

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, trace)
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	var trace []string
	boom := errors.New("boom")
	s := NewSaga("compensating", zap.NewNop())
	s.AddStep(SagaStep{
		Name:       "first",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { trace = append(trace, "undo first"); return nil },
	})
	s.AddStep(SagaStep{
		Name:       "second",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { trace = append(trace, "undo second"); return nil },
	})
	s.AddStep(SagaStep{
		Name:       "third",
		Execute:    func(context.Context) error { return boom },
		Compensate: func(context.Context) error { trace = append(trace, "undo third"); return nil },
	})

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "third", stepErr.Step)
	assert.True(t, stepErr.Compensated())
	assert.Equal(t, []string{"undo second", "undo first"}, trace)
}

func TestSaga_CompensationSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compensateErr error

	s := NewSaga("cancelled", zap.NewNop())
	s.AddStep(SagaStep{
		Name:       "save",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(ctx context.Context) error { compensateErr = ctx.Err(); return nil },
	})
	s.AddStep(SagaStep{
		Name: "call",
		Execute: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	})

	err := s.Execute(ctx)
	require.Error(t, err)
	assert.NoError(t, compensateErr)
}

func TestSaga_ReportsCompensationFailure(t *testing.T) {
	undoErr := errors.New("undo failed")
	s := NewSaga("broken", zap.NewNop())
	s.AddStep(SagaStep{
		Name:       "save",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { return undoErr },
	})
	s.AddStep(SagaStep{
		Name:    "call",
		Execute: func(context.Context) error { return errors.New("call failed") },
	})

	err := s.Execute(context.Background())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.False(t, stepErr.Compensated())
	assert.ErrorIs(t, stepErr.CompensationErr, undoErr)
	assert.Contains(t, err.Error(), "compensation failed")
}
