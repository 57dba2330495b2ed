package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnap-oss/actorflow/internal/common"
	"github.com/cnap-oss/actorflow/internal/eval"
	"github.com/cnap-oss/actorflow/internal/runner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// DefaultEvalRuns는 케이스당 기본 실행 횟수입니다.
const DefaultEvalRuns = 1

// evalOptions는 eval 명령어 플래그입니다.
type evalOptions struct {
	runOptions
	runs    int
	output  string
	restart bool
	quiet   bool
}

func buildEvalCommand(logger *zap.Logger, cfg *common.Config) *cobra.Command {
	opts := evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval <agent>",
		Short: "Agent를 평가 케이스마다 반복 실행하고 결과를 집계",
		Long: `agent 디렉토리의 cases/ 하위 항목 또는 cases.yml 목록을 케이스로 불러와 각 케이스를 --runs번 실행합니다.
cases/ 케이스에는 CASE_NAME, CASE_PATH 변수가 주어집니다. 결과는 실행이 끝날 때마다 --output 파일에 저장되며,
파일이 이미 있으면 끝나지 않은 실행만 이어서 합니다.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, logger, cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.generator, "generator", "g", cfg.Generation.Generator, "generator ID")
	cmd.Flags().StringVarP(&opts.window, "window", "w", cfg.Generation.Window, "대화 window 전략 (full, N, strip-N)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", cfg.Limits.MaxSteps, "최대 step 수")
	cmd.Flags().Float64Var(&opts.maxCost, "max-cost", cfg.Limits.MaxCost, "최대 비용 (USD)")
	cmd.Flags().IntVar(&opts.timeout, "timeout", cfg.Limits.Timeout, "제한 시간 (초, 0이면 없음)")
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "task 문구")
	cmd.Flags().IntVarP(&opts.runs, "runs", "r", DefaultEvalRuns, "케이스당 실행 횟수")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "eval.json", "평가 결과 JSON 파일")
	cmd.Flags().BoolVar(&opts.restart, "restart", false, "기존 결과 파일을 무시하고 처음부터 실행합니다")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "자식 프로세스 출력을 전달하지 않습니다")

	return cmd
}

func runEval(cmd *cobra.Command, logger *zap.Logger, cfg *common.Config, input string, opts evalOptions) error {
	path := common.ResolveAgentPath(input, common.GetAgentsDir())
	cases, err := eval.LoadCases(path)
	if err != nil {
		return err
	}

	manager := runner.NewRunnerManager(common.GetRunsDir(), runner.WithLogger(logger.Named("runner")))
	defer func() {
		if err := manager.Cleanup(); err != nil {
			logger.Warn("Failed to clean up runners", zap.Error(err))
		}
	}()

	runnerOpts := []runner.RunnerOption{runner.WithEnv(cfg.GetAPIKeyEnvVars()...)}
	if !opts.quiet {
		runnerOpts = append(runnerOpts,
			runner.WithStdout(func(line string) { fmt.Fprintln(cmd.ErrOrStderr(), line) }),
			runner.WithStderr(func(line string) { fmt.Fprintln(cmd.ErrOrStderr(), line) }),
		)
	}

	evaluator, err := eval.NewEvaluator(manager, runner.Arguments{
		InputPath: path,
		Task:      opts.task,
		Generator: opts.generator,
		Window:    opts.window,
		MaxSteps:  opts.maxSteps,
		MaxCost:   opts.maxCost,
		Timeout:   opts.timeout,
	}, opts.runs,
		eval.WithLogger(logger.Named("eval")),
		eval.WithOutput(opts.output),
		eval.WithRunnerOptions(runnerOpts...),
	)
	if err != nil {
		return err
	}

	ev, err := loadOrCreateEvaluation(logger, evaluator, cases, opts)
	if err != nil {
		return err
	}

	logger.Info("Starting evaluation",
		zap.String("agent", ev.Name),
		zap.String("generator", opts.generator),
		zap.String("source", cases.Source.String()),
		zap.Int("cases", cases.Len()),
		zap.Int("runs", opts.runs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := evaluator.Run(ctx, cases, ev); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cases=%d runs=%d passed=%d failed=%d output=%s\n",
		ev.Stats.Cases, ev.Stats.Runs, ev.Stats.Passed, ev.Stats.Failed, opts.output)
	return nil
}

// loadOrCreateEvaluation은 결과 파일이 있으면 이어서 실행할 기록을 불러옵니다.
func loadOrCreateEvaluation(logger *zap.Logger, evaluator *eval.Evaluator, cases *eval.Cases, opts evalOptions) (*eval.Evaluation, error) {
	if opts.restart {
		return evaluator.NewEvaluation(cases), nil
	}
	ev, err := eval.LoadEvaluation(opts.output)
	if errors.Is(err, os.ErrNotExist) {
		return evaluator.NewEvaluation(cases), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Resuming evaluation", zap.String("output", opts.output))
	ev.Stats.Runs = opts.runs
	ev.Stats.Cases = cases.Len()
	return ev, nil
}
