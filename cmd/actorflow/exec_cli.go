package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnap-oss/actorflow/internal/common"
	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/runner"
	"github.com/cnap-oss/actorflow/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// execOptions는 exec 명령어 플래그입니다.
type execOptions struct {
	runOptions
	vars      map[string]string
	keepTrace bool
	noStore   bool
	quiet     bool
}

func buildExecCommand(logger *zap.Logger, cfg *common.Config) *cobra.Command {
	opts := execOptions{}
	cmd := &cobra.Command{
		Use:   "exec <agent-or-workflow>",
		Short: "Agent를 자식 프로세스로 실행하고 결과를 기록",
		Long: `별도의 actorflow run 프로세스로 agent를 실행하고, trace에서 결과를 재구성해 JSON으로 출력합니다.
결과와 이벤트는 run 데이터베이스에 저장됩니다. 입력 변수 "task"는 --task로 전달됩니다.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, logger, cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.generator, "generator", "g", cfg.Generation.Generator, "generator ID")
	cmd.Flags().StringVarP(&opts.window, "window", "w", cfg.Generation.Window, "대화 window 전략 (full, N, strip-N)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", cfg.Limits.MaxSteps, "최대 step 수")
	cmd.Flags().Float64Var(&opts.maxCost, "max-cost", cfg.Limits.MaxCost, "최대 비용 (USD)")
	cmd.Flags().IntVar(&opts.timeout, "timeout", cfg.Limits.Timeout, "제한 시간 (초, 0이면 없음)")
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "task 문구")
	cmd.Flags().StringToStringVarP(&opts.vars, "set", "s", nil, "입력 변수 (key=value, 여러 번 지정 가능)")
	cmd.Flags().BoolVar(&opts.keepTrace, "keep-trace", false, "종료 후 trace 파일을 삭제하지 않습니다")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "결과를 run 데이터베이스에 저장하지 않습니다")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "자식 프로세스 출력을 전달하지 않습니다")

	return cmd
}

func runExec(cmd *cobra.Command, logger *zap.Logger, cfg *common.Config, input string, opts execOptions) error {
	manager := runner.NewRunnerManager(common.GetRunsDir(), runner.WithLogger(logger.Named("runner")))
	if removed, err := manager.CleanupStale(cfg.Runner.TraceMaxAge); err != nil {
		logger.Warn("Failed to prune stale traces", zap.Error(err))
	} else if removed > 0 {
		logger.Info("Pruned stale traces", zap.Int("count", removed))
	}

	inputState := make(map[string]string, len(opts.vars)+1)
	for k, v := range opts.vars {
		inputState[k] = v
	}

	runnerOpts := []runner.RunnerOption{runner.WithEnv(cfg.GetAPIKeyEnvVars()...)}
	if !opts.quiet {
		runnerOpts = append(runnerOpts,
			runner.WithStdout(func(line string) { fmt.Fprintln(cmd.ErrOrStderr(), line) }),
			runner.WithStderr(func(line string) { fmt.Fprintln(cmd.ErrOrStderr(), line) }),
		)
	}

	r, err := manager.CreateRunner(runner.Arguments{
		InputPath: common.ResolveAgentPath(input, common.GetAgentsDir()),
		Task:      opts.task,
		Generator: opts.generator,
		Window:    opts.window,
		MaxSteps:  opts.maxSteps,
		MaxCost:   opts.maxCost,
		Timeout:   opts.timeout,
	}, inputState, runnerOpts...)
	if err != nil {
		return err
	}
	if !opts.keepTrace {
		defer func() {
			if err := manager.Cleanup(); err != nil {
				logger.Warn("Failed to clean up runners", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, runErr := r.Run(ctx)

	if !opts.noStore {
		if err := storeRun(logger, r, inputState, out); err != nil {
			logger.Warn("Failed to store run", zap.String("run_id", r.ID), zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("결과 출력 실패: %w", err)
	}
	return nil
}

// storeRun은 run 결과를 데이터베이스에 저장합니다. out이 nil이면 중단된 run으로 기록합니다.
func storeRun(logger *zap.Logger, r *runner.Runner, inputState map[string]string, out *runner.Output) error {
	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	record, events, err := newRunRecord(r, inputState, out)
	if err != nil {
		return err
	}
	return repo.SaveRun(context.Background(), record, events)
}

func newRunRecord(r *runner.Runner, inputState map[string]string, out *runner.Output) (*storage.Run, []storage.RunEvent, error) {
	commandLine := r.CommandLine()
	cl, err := json.Marshal(commandLine)
	if err != nil {
		return nil, nil, err
	}
	start, err := json.Marshal(inputState)
	if err != nil {
		return nil, nil, err
	}

	record := &storage.Run{
		RunID:       r.ID,
		Input:       commandLine[2],
		Generator:   generatorFromCommandLine(commandLine),
		Status:      storage.RunStatusStopped,
		CommandLine: string(cl),
		StartState:  string(start),
		ExitCode:    -1,
	}

	if out == nil {
		// 중단된 run도 trace에 남은 이벤트는 보존합니다.
		events, err := eventlog.ReadFile(r.TracePath)
		if err != nil {
			events = nil
		}
		return record, storage.NewRunEvents(r.ID, events), nil
	}

	output, err := json.Marshal(out.Output)
	if err != nil {
		return nil, nil, err
	}
	record.Status = runStatus(out)
	record.ExitCode = out.ExitCode
	record.TaskSuccess = out.TaskSuccess
	record.Steps = out.Steps
	record.DurationSeconds = out.Time
	record.PromptTokens = out.Usage.PromptTokens
	record.CompletionTokens = out.Usage.CompletionTokens
	record.TotalTokens = out.Usage.TotalTokens
	record.Cost = out.Usage.Cost
	record.Output = string(output)
	return record, storage.NewRunEvents(r.ID, out.Events), nil
}

func runStatus(out *runner.Output) string {
	switch {
	case out.ExitCode != 0:
		return storage.RunStatusCrashed
	case out.TaskSuccess:
		return storage.RunStatusSucceeded
	default:
		return storage.RunStatusFailed
	}
}

func generatorFromCommandLine(commandLine []string) string {
	for i := 0; i+1 < len(commandLine); i++ {
		if commandLine[i] == "--generator" {
			return commandLine[i+1]
		}
	}
	return ""
}
