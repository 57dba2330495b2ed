package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cnap-oss/actorflow/internal/common"
	"github.com/cnap-oss/actorflow/internal/eval"
	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/flow"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/runner"
	"github.com/cnap-oss/actorflow/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() *common.Config {
	return &common.Config{
		Generation: common.GenerationConfig{
			Generator:      common.DefaultGenerator,
			Window:         common.DefaultWindow,
			RequestTimeout: time.Minute,
			MaxRetries:     3,
			RetryBackoff:   time.Second,
		},
		Limits:  common.LimitsConfig{MaxSteps: common.DefaultMaxSteps, MaxCost: common.DefaultMaxCost},
		APIKeys: common.APIKeysConfig{OpenAI: "sk-test"},
	}
}

func TestParseStartState(t *testing.T) {
	vars, err := parseStartState(`{"topic":"go","lang":"en"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"topic": "go", "lang": "en"}, vars)

	vars, err = parseStartState("")
	require.NoError(t, err)
	assert.Nil(t, vars)

	_, err = parseStartState(`{"n":1}`)
	assert.Error(t, err)
	_, err = parseStartState(`not json`)
	assert.Error(t, err)
}

func TestExplicitLimits(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want flow.Limits
	}{
		{"unset keeps base", nil, flow.Limits{MaxSteps: 100, MaxCost: 10, Timeout: time.Minute}},
		{"explicit values", []string{"--max-steps", "7", "--timeout", "30"}, flow.Limits{MaxSteps: 7, MaxCost: 10, Timeout: 30 * time.Second}},
		{"explicit zero is unlimited", []string{"--max-steps", "0", "--max-cost", "0"}, flow.Limits{Timeout: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := buildRunCommand(zaptest.NewLogger(t), testConfig())
			require.NoError(t, cmd.ParseFlags(tt.args))

			var opts runOptions
			opts.maxSteps, _ = cmd.Flags().GetInt("max-steps")
			opts.maxCost, _ = cmd.Flags().GetFloat64("max-cost")
			opts.timeout, _ = cmd.Flags().GetInt("timeout")

			base := flow.Limits{MaxSteps: 100, MaxCost: 10, Timeout: time.Minute}
			assert.Equal(t, tt.want, base.Apply(explicitLimits(cmd, opts)))
		})
	}
}

func TestRunCommandDefaultsFromConfig(t *testing.T) {
	cmd := buildRunCommand(zaptest.NewLogger(t), testConfig())

	generator, err := cmd.Flags().GetString("generator")
	require.NoError(t, err)
	assert.Equal(t, common.DefaultGenerator, generator)

	maxSteps, err := cmd.Flags().GetInt("max-steps")
	require.NoError(t, err)
	assert.Equal(t, common.DefaultMaxSteps, maxSteps)
}

func TestNewGeneratorFactory(t *testing.T) {
	factory := newGeneratorFactory(testConfig(), zaptest.NewLogger(t))

	gen, err := factory("openai/gpt-4o-mini")
	require.NoError(t, err)
	assert.NotNil(t, gen)

	_, err = factory("not-a-generator")
	assert.Error(t, err)

	_, err = factory("mystery/model")
	assert.Error(t, err)

	gen, err = factory("mystery/model?api_base=http://localhost:9000/v1")
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestRecoveryConfig(t *testing.T) {
	rc := recoveryConfig(testConfig())
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, time.Second, rc.InitialBackoff)

	rc = recoveryConfig(&common.Config{})
	assert.Equal(t, 10, rc.MaxRetries)
	assert.Equal(t, 5*time.Second, rc.InitialBackoff)
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name string
		out  runner.Output
		want string
	}{
		{name: "success", out: runner.Output{TaskSuccess: true}, want: storage.RunStatusSucceeded},
		{name: "failed", out: runner.Output{}, want: storage.RunStatusFailed},
		{name: "crashed", out: runner.Output{ExitCode: 1, TaskSuccess: true}, want: storage.RunStatusCrashed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runStatus(&tt.out))
		})
	}
}

func TestIsValidRunStatus(t *testing.T) {
	assert.True(t, isValidRunStatus(storage.RunStatusStopped))
	assert.False(t, isValidRunStatus("pending"))
}

func newCLITestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	r, err := runner.NewRunner(runner.Arguments{
		Binary:    "actorflow",
		InputPath: "agents/echoer",
		Generator: "openai/gpt-4o-mini",
		MaxSteps:  10,
	}, map[string]string{"topic": "go"}, zaptest.NewLogger(t), runner.WithRunsDir(t.TempDir()), runner.WithID("cli-1"))
	require.NoError(t, err)
	return r
}

func TestNewRunRecord(t *testing.T) {
	r := newCLITestRunner(t)
	cost := 0.01
	started, err := eventlog.NewEventAt(1, eventlog.FlowStarted, nil)
	require.NoError(t, err)

	record, events, err := newRunRecord(r, map[string]string{"topic": "go"}, &runner.Output{
		ExitCode:    0,
		TaskSuccess: true,
		Steps:       2,
		Time:        1.5,
		Usage:       models.Usage{PromptTokens: 6, CompletionTokens: 2, TotalTokens: 8, Cost: &cost},
		Output:      map[string]any{"reason": "done"},
		Events:      []eventlog.Event{started},
	})
	require.NoError(t, err)

	assert.Equal(t, "cli-1", record.RunID)
	assert.Equal(t, "agents/echoer", record.Input)
	assert.Equal(t, "openai/gpt-4o-mini", record.Generator)
	assert.Equal(t, storage.RunStatusSucceeded, record.Status)
	assert.Equal(t, 8, record.TotalTokens)
	assert.Equal(t, &cost, record.Cost)
	assert.JSONEq(t, `{"reason":"done"}`, record.Output)
	assert.JSONEq(t, `{"topic":"go"}`, record.StartState)

	var commandLine []string
	require.NoError(t, json.Unmarshal([]byte(record.CommandLine), &commandLine))
	assert.Equal(t, r.CommandLine(), commandLine)

	require.Len(t, events, 1)
	assert.Equal(t, "cli-1", events[0].RunID)
	assert.Equal(t, eventlog.FlowStarted, events[0].Name)
}

func TestNewRunRecord_Stopped(t *testing.T) {
	r := newCLITestRunner(t)

	record, events, err := newRunRecord(r, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusStopped, record.Status)
	assert.Equal(t, -1, record.ExitCode)
	assert.Empty(t, events)
}

func TestGeneratorFromCommandLine(t *testing.T) {
	assert.Equal(t, "x/y", generatorFromCommandLine([]string{"bin", "run", "a", "--generator", "x/y"}))
	assert.Empty(t, generatorFromCommandLine([]string{"bin", "run", "a", "--generator"}))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}

func TestRunnerCommandLineParsesAsRunFlags(t *testing.T) {
	r, err := runner.NewRunner(runner.Arguments{
		Binary:    "actorflow",
		InputPath: "agents/echoer",
		Generator: "openai/gpt-4o-mini?temperature=0.2",
		Window:    "strip-3",
		MaxSteps:  7,
		MaxCost:   0.25,
		Timeout:   30,
	}, map[string]string{"task": "-say hi", "topic": "go"}, zaptest.NewLogger(t),
		runner.WithRunsDir(t.TempDir()), runner.WithID("cli-2"))
	require.NoError(t, err)

	cl := r.CommandLine()
	require.Greater(t, len(cl), 3)
	assert.Equal(t, []string{"actorflow", "run", "agents/echoer"}, cl[:3])

	cmd := buildRunCommand(zaptest.NewLogger(t), testConfig())
	require.NoError(t, cmd.ParseFlags(cl[3:]))
	assert.Empty(t, cmd.Flags().Args())

	flags := cmd.Flags()
	str := func(name string) string {
		v, err := flags.GetString(name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "openai/gpt-4o-mini?temperature=0.2", str("generator"))
	assert.Equal(t, "strip-3", str("window"))
	assert.Equal(t, "-say hi", str("task"))
	assert.Equal(t, r.TracePath, str("trace"))

	var state map[string]string
	require.NoError(t, json.Unmarshal([]byte(str("start-state")), &state))
	assert.Equal(t, map[string]string{"topic": "go"}, state)

	maxSteps, err := flags.GetInt("max-steps")
	require.NoError(t, err)
	assert.Equal(t, 7, maxSteps)
	maxCost, err := flags.GetFloat64("max-cost")
	require.NoError(t, err)
	assert.Equal(t, 0.25, maxCost)
	timeout, err := flags.GetInt("timeout")
	require.NoError(t, err)
	assert.Equal(t, 30, timeout)
	assert.True(t, flags.Changed("max-steps"))
	assert.True(t, flags.Changed("max-cost"))
}

func TestEvalCommandFlags(t *testing.T) {
	cmd := buildEvalCommand(zaptest.NewLogger(t), testConfig())
	require.NoError(t, cmd.ParseFlags([]string{"-r", "3", "-o", "out/eval.json"}))

	runs, err := cmd.Flags().GetInt("runs")
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	output, err := cmd.Flags().GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "out/eval.json", output)

	fresh := buildEvalCommand(zaptest.NewLogger(t), testConfig())
	runs, err = fresh.Flags().GetInt("runs")
	require.NoError(t, err)
	assert.Equal(t, DefaultEvalRuns, runs)
}

func TestLoadOrCreateEvaluation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "grader", eval.CasesDir, "one"), 0o755))
	cases, err := eval.LoadCases(filepath.Join(dir, "grader"))
	require.NoError(t, err)

	evaluator, err := eval.NewEvaluator(runner.NewRunnerManager(t.TempDir()), runner.Arguments{
		InputPath: filepath.Join(dir, "grader"),
		Generator: "openai/gpt-4o-mini",
	}, 2)
	require.NoError(t, err)

	output := filepath.Join(dir, "eval.json")
	opts := evalOptions{runs: 2, output: output}

	ev, err := loadOrCreateEvaluation(zaptest.NewLogger(t), evaluator, cases, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.NumRuns("one"))

	ev.AddRun("one", &runner.Output{TaskSuccess: true, Steps: 2})
	require.NoError(t, ev.SaveTo(output))

	resumed, err := loadOrCreateEvaluation(zaptest.NewLogger(t), evaluator, cases, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.NumRuns("one"))
	assert.Equal(t, 1, resumed.Stats.Passed)

	opts.restart = true
	restarted, err := loadOrCreateEvaluation(zaptest.NewLogger(t), evaluator, cases, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, restarted.NumRuns("one"))

	require.NoError(t, os.WriteFile(output, []byte("{broken"), 0o644))
	opts.restart = false
	_, err = loadOrCreateEvaluation(zaptest.NewLogger(t), evaluator, cases, opts)
	assert.Error(t, err)
}
