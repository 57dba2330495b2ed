package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnap-oss/actorflow/internal/common"
	"github.com/cnap-oss/actorflow/internal/flow"
	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/window"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runOptions는 run 명령어 플래그입니다. Runner가 만드는 명령줄과 같은 이름을 사용합니다.
type runOptions struct {
	generator   string
	window      string
	maxSteps    int
	maxCost     float64
	timeout     int
	task        string
	startState  string
	trace       string
	interactive bool
}

func buildRunCommand(logger *zap.Logger, cfg *common.Config) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <agent-or-workflow>",
		Short: "Agent 또는 workflow를 현재 프로세스에서 실행",
		Long: `YAML agent 정의나 workflow를 불러와 flow가 끝날 때까지 실행합니다.
경로가 없으면 agents 디렉토리에서 이름으로 찾습니다. 치명적인 generator 에러는 종료 코드 1로 끝납니다.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, logger, cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.generator, "generator", "g", cfg.Generation.Generator, "정의에 generator가 없을 때 사용할 generator ID (provider/model?params)")
	cmd.Flags().StringVarP(&opts.window, "window", "w", cfg.Generation.Window, "대화 window 전략 (full, N, strip-N)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", cfg.Limits.MaxSteps, "최대 step 수")
	cmd.Flags().Float64Var(&opts.maxCost, "max-cost", cfg.Limits.MaxCost, "최대 비용 (USD)")
	cmd.Flags().IntVar(&opts.timeout, "timeout", cfg.Limits.Timeout, "제한 시간 (초, 0이면 없음)")
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "정의의 task를 대체 (단일 agent만)")
	cmd.Flags().StringVar(&opts.startState, "start-state", "", "시작 변수 JSON 객체")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "이벤트를 기록할 JSONL 파일 (이미 있으면 실패)")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "사용자 입력이 필요한 변수를 터미널에서 묻습니다")

	return cmd
}

func runFlow(cmd *cobra.Command, logger *zap.Logger, cfg *common.Config, input string, opts runOptions) error {
	strategy, err := window.Parse(opts.window)
	if err != nil {
		return err
	}

	startState, err := parseStartState(opts.startState)
	if err != nil {
		return err
	}

	mode := models.ModeAutomatic
	if opts.interactive {
		mode = models.ModeInteractive
	}
	rt := state.New(state.WithLogger(logger.Named("state")), state.WithMode(mode))
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close runtime", zap.Error(err))
		}
	}()
	rt.AddListener(state.ConsoleListener(logger.Named("events")))

	if opts.trace != "" {
		if err := rt.SetTraceFile(opts.trace); err != nil {
			return err
		}
	}
	rt.UpdateVariables(startState)

	path := common.ResolveAgentPath(input, common.GetAgentsDir())
	f, err := flow.Load(rt, path, flow.LoadOptions{
		GeneratorID:   opts.generator,
		Window:        strategy,
		NewGenerator:  newGeneratorFactory(cfg, logger.Named("generator")),
		EngineOptions: []generation.EngineOption{generation.WithRecoveryConfig(recoveryConfig(cfg))},
		Limits:        explicitLimits(cmd, opts),
		DefaultLimits: flow.Limits{
			MaxSteps: cfg.Limits.MaxSteps,
			MaxCost:  cfg.Limits.MaxCost,
			Timeout:  time.Duration(cfg.Limits.Timeout) * time.Second,
		},
		Task:   opts.task,
		Logger: logger.Named("flow"),
	})
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := f.Run(ctx); err != nil {
		return fmt.Errorf("flow 실행 실패: %w", err)
	}

	status, reason := rt.TaskStatus()
	usage := f.Usage()
	fmt.Fprintf(cmd.OutOrStdout(), "status=%s steps=%d tokens=%d cost=%.4f\n",
		status, f.Steps(), usage.TotalTokens, usage.CostValue())
	if reason != nil && *reason != "" {
		fmt.Fprintln(cmd.OutOrStdout(), *reason)
	}
	return nil
}

// explicitLimits는 명령줄에서 직접 지정한 제한만 반환합니다. 0도 명시적인 값(제한 없음)으로 취급합니다.
func explicitLimits(cmd *cobra.Command, opts runOptions) *flow.LimitsSpec {
	limits := &flow.LimitsSpec{}
	if cmd.Flags().Changed("max-steps") {
		limits.MaxSteps = &opts.maxSteps
	}
	if cmd.Flags().Changed("max-cost") {
		limits.MaxCost = &opts.maxCost
	}
	if cmd.Flags().Changed("timeout") {
		limits.Timeout = &opts.timeout
	}
	return limits
}

func parseStartState(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]string
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("--start-state는 문자열 값을 가진 JSON 객체여야 합니다: %w", err)
	}
	return vars, nil
}

// newGeneratorFactory는 설정의 API 키로 OpenAI 호환 generator를 만드는 factory를 반환합니다.
func newGeneratorFactory(cfg *common.Config, logger *zap.Logger) flow.GeneratorFactory {
	client := &http.Client{Timeout: cfg.Generation.RequestTimeout}
	return func(id string) (generation.Generator, error) {
		spec, err := generation.ParseGeneratorID(id)
		if err != nil {
			return nil, err
		}
		return generation.NewOpenAIGenerator(id,
			generation.WithAPIKey(cfg.APIKeyFor(spec.Provider)),
			generation.WithHTTPClient(client),
			generation.WithGeneratorLogger(logger),
		)
	}
}

func recoveryConfig(cfg *common.Config) generation.RecoveryConfig {
	rc := generation.DefaultRecoveryConfig()
	if cfg.Generation.MaxRetries > 0 {
		rc.MaxRetries = cfg.Generation.MaxRetries
	}
	if cfg.Generation.RetryBackoff > 0 {
		rc.InitialBackoff = cfg.Generation.RetryBackoff
	}
	return rc
}
