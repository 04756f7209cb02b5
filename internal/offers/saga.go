package offers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// sagaStep is one {action, compensation} pair. A nil compensate means the
// step is irreversible; if a later step fails that fact is logged loudly
// instead of attempting a rollback that could double-count.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga executes steps in order and, on failure, runs the compensations of
// already-completed steps in reverse order. Compensation errors are logged,
// never returned: the original failure is what the caller needs to see.
type saga struct {
	steps []sagaStep
	log   *zap.Logger
}

func newSaga(log *zap.Logger, steps ...sagaStep) *saga {
	return &saga{steps: steps, log: log.Named("saga")}
}

func (s *saga) execute(ctx context.Context) error {
	var done []sagaStep
	for _, st := range s.steps {
		if err := st.run(ctx); err != nil {
			s.rollback(ctx, done, st.name)
			return fmt.Errorf("step %q: %w", st.name, err)
		}
		done = append(done, st)
	}
	return nil
}

func (s *saga) rollback(ctx context.Context, done []sagaStep, failedStep string) {
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.compensate == nil {
			s.log.Error("irreversible step cannot be compensated, manual reconciliation required",
				zap.String("step", st.name), zap.String("failed_step", failedStep))
			continue
		}
		if err := st.compensate(ctx); err != nil {
			s.log.Error("compensation failed",
				zap.String("step", st.name), zap.String("failed_step", failedStep), zap.Error(err))
		}
	}
}
