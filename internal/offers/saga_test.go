package offers

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
	step := func(name string) sagaStep {
		return sagaStep{
			name:       name,
			run:        func(context.Context) error { trace = append(trace, name); return nil },
			compensate: func(context.Context) error { trace = append(trace, "undo-"+name); return nil },
		}
	}

	err := newSaga(zap.NewNop(), step("a"), step("b"), step("c")).execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, trace)
}

func TestSaga_CompensatesInReverseOrder(t *testing.T) {
	var trace []string
	ok := func(name string) sagaStep {
		return sagaStep{
			name:       name,
			run:        func(context.Context) error { trace = append(trace, name); return nil },
			compensate: func(context.Context) error { trace = append(trace, "undo-"+name); return nil },
		}
	}
	boom := errors.New("boom")
	failing := sagaStep{name: "c", run: func(context.Context) error { return boom }}

	err := newSaga(zap.NewNop(), ok("a"), ok("b"), failing).execute(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `step "c"`)
	assert.Equal(t, []string{"a", "b", "undo-b", "undo-a"}, trace)
}

func TestSaga_NilCompensateIsSkipped(t *testing.T) {
	var trace []string
	irreversible := sagaStep{
		name:       "fulfill",
		run:        func(context.Context) error { trace = append(trace, "fulfill"); return nil },
		compensate: nil,
	}
	failing := sagaStep{name: "status", run: func(context.Context) error { return errors.New("db down") }}

	err := newSaga(zap.NewNop(), irreversible, failing).execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"fulfill"}, trace, "no rollback attempted for the irreversible step")
}

func TestSaga_CompensationErrorDoesNotMaskOriginal(t *testing.T) {
	boom := errors.New("original failure")
	step1 := sagaStep{
		name:       "reserve",
		run:        func(context.Context) error { return nil },
		compensate: func(context.Context) error { return errors.New("rollback also failed") },
	}
	step2 := sagaStep{name: "status", run: func(context.Context) error { return boom }}

	err := newSaga(zap.NewNop(), step1, step2).execute(context.Background())
	require.ErrorIs(t, err, boom)
}
