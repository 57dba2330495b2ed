package eval

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cnap-oss/actorflow/internal/flow"
	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/runner"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// 테스트 바이너리를 `run` 자식 프로세스로 다시 실행할 때 사용하는 환경 변수
const helperEnv = "ACTORFLOW_EVAL_HELPER"

// failingCase 이름의 케이스는 task_failed로 끝납니다.
const failingCase = "unsolvable"

const graderTaskYAML = `
task: grade the case
using: [task]
`

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(runHelper(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// runHelper는 Runner가 만든 `run <input> ... --trace <path>` 명령을 scripted generator로 실행합니다.
func runHelper(args []string) int {
	if len(args) < 2 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: run <input> [flags]")
		return 2
	}
	input := args[1]

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	generator := fs.String("generator", "", "")
	_ = fs.String("window", "", "")
	maxSteps := fs.Int("max-steps", 0, "")
	maxCost := fs.Float64("max-cost", 0, "")
	_ = fs.Int("timeout", 0, "")
	_ = fs.String("task", "", "")
	startState := fs.String("start-state", "{}", "")
	trace := fs.String("trace", "", "")
	if err := fs.Parse(args[2:]); err != nil {
		return 2
	}

	var vars map[string]string
	if err := json.Unmarshal([]byte(*startState), &vars); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	rt := state.New()
	defer rt.Close()
	rt.UpdateVariables(vars)
	if err := rt.SetTraceFile(*trace); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	usage := models.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}
	verdict := mocks.ToolCallTurn("task_complete_success", `{"reason":"graded"}`, usage)
	if vars[VarCaseName] == failingCase {
		verdict = mocks.ToolCallTurn("task_failed", `{"reason":"impossible"}`, usage)
	}
	gen := mocks.NewScriptedGenerator(verdict)

	f, err := flow.Load(rt, input, flow.LoadOptions{
		GeneratorID:  *generator,
		NewGenerator: func(string) (generation.Generator, error) { return gen, nil },
		Limits:       &flow.LimitsSpec{MaxSteps: maxSteps, MaxCost: maxCost},
		Logger:       zap.NewNop(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer f.Close()

	if err := f.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// newGraderAgent는 cases/ 아래에 names 케이스를 가진 agent 디렉토리를 만듭니다.
func newGraderAgent(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "grader")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.yml"), []byte(graderTaskYAML), 0o644))
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, CasesDir, name), 0o755))
	}
	return dir
}

func newTestEvaluator(t *testing.T, input string, runs int, output string) (*Evaluator, *runner.RunnerManager) {
	t.Helper()
	bin, err := os.Executable()
	require.NoError(t, err)

	manager := runner.NewRunnerManager(t.TempDir(),
		runner.WithLogger(zaptest.NewLogger(t)),
		runner.WithManagerMetrics(&runner.Metrics{}))
	t.Cleanup(func() { _ = manager.Cleanup() })

	e, err := NewEvaluator(manager, runner.Arguments{
		Binary:    bin,
		InputPath: input,
		Generator: "test/scripted",
		Window:    "full",
		MaxSteps:  10,
	}, runs,
		WithLogger(zaptest.NewLogger(t)),
		WithOutput(output),
		WithRunnerOptions(runner.WithEnv(helperEnv+"=1")),
	)
	require.NoError(t, err)
	return e, manager
}

func TestEvaluator_RunsEachCase(t *testing.T) {
	input := newGraderAgent(t, "addition", failingCase)
	cases, err := LoadCases(input)
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "eval.json")
	e, manager := newTestEvaluator(t, input, 2, output)
	ev := e.NewEvaluation(cases)

	require.NoError(t, e.Run(context.Background(), cases, ev))

	assert.Equal(t, 2, ev.NumRuns("addition"))
	assert.Equal(t, 2, ev.NumRuns(failingCase))
	assert.Equal(t, 2, ev.Stats.Passed)
	assert.Equal(t, 2, ev.Stats.Failed)
	assert.Equal(t, 2, ev.Stats.Cases)
	assert.Equal(t, 2, ev.Stats.Runs)
	assert.Equal(t, "grader", ev.Name)

	passed, ok := ev.GetRun("addition", 0)
	require.True(t, ok)
	assert.True(t, passed.TaskSuccess)
	assert.Equal(t, 1, passed.Steps)
	assert.Equal(t, "graded", passed.Output["reason"])
	assert.True(t, ev.IsRunDone("addition", 1))

	failed, ok := ev.GetRun(failingCase, 1)
	require.True(t, ok)
	assert.False(t, failed.TaskSuccess)
	assert.Equal(t, "impossible", failed.Output["reason"])

	// 케이스마다 runner가 정리됩니다.
	assert.Equal(t, 0, manager.GetRunnerCount())

	saved, err := LoadEvaluation(output)
	require.NoError(t, err)
	assert.Equal(t, ev.Stats, saved.Stats)
	assert.Len(t, saved.Runs["addition"], 2)
	assert.GreaterOrEqual(t, saved.FinishedAt, saved.StartedAt)
	assert.False(t, ev.NeedsFlush())
}

func TestEvaluator_ResumesUnfinishedEvaluation(t *testing.T) {
	input := newGraderAgent(t, "first", "second")
	cases, err := LoadCases(input)
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "eval.json")
	e, _ := newTestEvaluator(t, input, 1, output)

	// first는 끝났고 second는 step 없이 중단된 상태입니다.
	ev := e.NewEvaluation(cases)
	done := &runner.Output{TaskSuccess: true, Steps: 3, Output: map[string]any{"reason": "kept"}}
	ev.AddRun("first", done)
	ev.AddRun("second", &runner.Output{Steps: 0})
	require.NoError(t, ev.SaveTo(output))

	resumed, err := LoadEvaluation(output)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), cases, resumed))

	first, ok := resumed.GetRun("first", 0)
	require.True(t, ok)
	assert.Equal(t, "kept", first.Output["reason"])
	assert.Equal(t, 1, resumed.NumRuns("first"))

	second, ok := resumed.GetRun("second", 0)
	require.True(t, ok)
	assert.Equal(t, 1, second.Steps)
	assert.True(t, second.TaskSuccess)
	assert.Equal(t, 1, resumed.NumRuns("second"))
	assert.Equal(t, Statistics{
		Generator: "test/scripted", MaxSteps: 10, Window: "full",
		Runs: 1, Cases: 2, Passed: 2, Failed: 0,
	}, resumed.Stats)
}

func TestEvaluator_CanceledContextSavesProgress(t *testing.T) {
	input := newGraderAgent(t, "only")
	cases, err := LoadCases(input)
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "eval.json")
	e, _ := newTestEvaluator(t, input, 1, output)
	ev := e.NewEvaluation(cases)
	ev.AddRun("only", &runner.Output{Steps: 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = e.Run(ctx, cases, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ev.NumRuns("only"))
	assert.FileExists(t, output)
}

func TestNewEvaluator_InvalidArguments(t *testing.T) {
	_, err := NewEvaluator(nil, runner.Arguments{}, 1)
	assert.Error(t, err)

	_, err = NewEvaluator(runner.NewRunnerManager(t.TempDir()), runner.Arguments{}, 0)
	assert.Error(t, err)
}

func TestEvaluation_RemoveRunUpdatesStats(t *testing.T) {
	ev := NewEvaluation(runner.Arguments{InputPath: "agents/grader", Generator: "g"}, 2, 1)
	ev.AddRun("c", &runner.Output{TaskSuccess: true, Steps: 1})
	ev.AddRun("c", &runner.Output{Steps: 2})
	assert.Equal(t, 1, ev.Stats.Passed)
	assert.Equal(t, 1, ev.Stats.Failed)
	assert.True(t, ev.NeedsFlush())

	require.NoError(t, ev.RemoveRun("c", 0))
	assert.Equal(t, 0, ev.Stats.Passed)
	assert.Equal(t, 1, ev.Stats.Failed)
	assert.Equal(t, 1, ev.NumRuns("c"))
	out, ok := ev.GetRun("c", 0)
	require.True(t, ok)
	assert.Equal(t, 2, out.Steps)

	assert.Error(t, ev.RemoveRun("c", 5))
	assert.Error(t, ev.RemoveRun("missing", 0))
	assert.False(t, ev.IsRunDone("missing", 0))
	assert.Equal(t, "grader", ev.Name)
}
