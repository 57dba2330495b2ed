package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/cnap-oss/actorflow/internal/runner"
	"go.uber.org/zap"
)

// Evaluator는 케이스마다 Runner를 만들어 정해진 횟수만큼 실행합니다.
type Evaluator struct {
	manager    *runner.RunnerManager
	args       runner.Arguments
	runs       int
	output     string
	runnerOpts []runner.RunnerOption
	logger     *zap.Logger
}

// Option은 Evaluator 옵션입니다.
type Option func(*Evaluator)

// WithLogger는 logger를 설정합니다.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithOutput은 실행이 끝날 때마다 기록을 저장할 경로를 설정합니다.
func WithOutput(path string) Option {
	return func(e *Evaluator) {
		e.output = path
	}
}

// WithRunnerOptions는 생성되는 Runner에 전달할 옵션을 추가합니다.
func WithRunnerOptions(opts ...runner.RunnerOption) Option {
	return func(e *Evaluator) {
		e.runnerOpts = append(e.runnerOpts, opts...)
	}
}

// NewEvaluator는 args로 케이스마다 runs번 실행하는 Evaluator를 만듭니다.
func NewEvaluator(manager *runner.RunnerManager, args runner.Arguments, runs int, opts ...Option) (*Evaluator, error) {
	if manager == nil {
		return nil, errors.New("eval: runner manager is required")
	}
	if runs <= 0 {
		return nil, fmt.Errorf("eval: runs must be positive, got %d", runs)
	}
	e := &Evaluator{
		manager: manager,
		args:    args,
		runs:    runs,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// NewEvaluation은 이 Evaluator 설정으로 빈 평가 기록을 만듭니다.
func (e *Evaluator) NewEvaluation(cases *Cases) *Evaluation {
	return NewEvaluation(e.args, e.runs, cases.Len())
}

// Run은 모든 케이스를 실행해 ev에 기록합니다.
// ev에 이미 끝난 실행은 건너뛰고, step 없이 끝난 실행은 지운 뒤 다시 실행합니다.
// 컨텍스트가 취소되면 그때까지의 기록을 저장하고 에러를 반환합니다.
func (e *Evaluator) Run(ctx context.Context, cases *Cases, ev *Evaluation) error {
	for _, c := range cases.Items {
		for idx := ev.NumRuns(c.Name) - 1; idx >= 0; idx-- {
			if !ev.IsRunDone(c.Name, idx) {
				e.logger.Debug("Discarding unfinished run", zap.String("case", c.Name), zap.Int("run", idx+1))
				if err := ev.RemoveRun(c.Name, idx); err != nil {
					return err
				}
			}
		}

		for idx := ev.NumRuns(c.Name); idx < e.runs; idx++ {
			out, err := e.runCase(ctx, c)
			if err != nil {
				if saveErr := e.save(ev); saveErr != nil {
					e.logger.Warn("Failed to save evaluation", zap.Error(saveErr))
				}
				return fmt.Errorf("eval: 케이스 %s (%d/%d): %w", c.Name, idx+1, e.runs, err)
			}
			ev.AddRun(c.Name, out)

			fields := []zap.Field{
				zap.String("case", c.Name),
				zap.Int("run", idx+1),
				zap.Int("runs", e.runs),
				zap.Int("steps", out.Steps),
				zap.Float64("time", out.Time),
				zap.Int("tokens", out.Usage.TotalTokens),
			}
			if out.TaskSuccess {
				e.logger.Info("Case passed", fields...)
			} else {
				e.logger.Warn("Case failed", fields...)
			}

			if err := e.save(ev); err != nil {
				return err
			}
		}
	}
	return e.save(ev)
}

func (e *Evaluator) runCase(ctx context.Context, c Case) (*runner.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := make(map[string]string, len(c.InputState))
	for k, v := range c.InputState {
		state[k] = v
	}

	r, err := e.manager.CreateRunner(e.args, state, e.runnerOpts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.manager.DeleteRunner(r.ID); err != nil {
			e.logger.Warn("Failed to clean up runner", zap.String("run_id", r.ID), zap.Error(err))
		}
	}()
	return r.Run(ctx)
}

func (e *Evaluator) save(ev *Evaluation) error {
	if e.output == "" || !ev.NeedsFlush() {
		return nil
	}
	return ev.SaveTo(e.output)
}
