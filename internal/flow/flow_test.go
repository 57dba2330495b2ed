package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/testutil/mocks"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRuntime(t *testing.T, opts ...state.Option) *state.Runtime {
	t.Helper()
	opts = append([]state.Option{
		state.WithLogger(zaptest.NewLogger(t)),
		state.WithEnvLookup(func(string) (string, bool) { return "", false }),
	}, opts...)
	rt := state.New(opts...)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func echoDefinition() *Definition {
	return &Definition{
		Agent: "You are a helpful assistant.",
		Task:  "say hi",
		Using: []string{"task"},
		Tools: []tooling.CommandSpec{{
			Name:        "echo",
			Description: "Echo the input",
			Arguments:   []tooling.Argument{{Name: "x", Description: "text"}},
			Command:     "printf '%s' {{ x }}",
		}},
	}
}

func buildActor(t *testing.T, rt *state.Runtime, name string, def *Definition, gen generation.Generator) *Actor {
	t.Helper()
	a, err := BuildActor(rt, ActorConfig{
		Name:         name,
		Definition:   def,
		GeneratorID:  "test/model",
		NewGenerator: func(string) (generation.Generator, error) { return gen, nil },
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return a
}

func newFlow(t *testing.T, rt *state.Runtime, limits Limits, actors ...*Actor) *Flow {
	t.Helper()
	f, err := New(rt, actors, limits, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func eventsNamed(rt *state.Runtime, name string) []eventlog.Event {
	var out []eventlog.Event
	for _, ev := range rt.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func flowComplete(t *testing.T, rt *state.Runtime) eventlog.FlowCompleteData {
	t.Helper()
	events := eventsNamed(rt, eventlog.FlowComplete)
	require.Len(t, events, 1)
	var d eventlog.FlowCompleteData
	require.NoError(t, events[0].Decode(&d))
	return d
}

func TestFlow_MaxStepsFailsTask(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(mocks.ToolCallTurn("echo", `{"x":"again"}`, models.Usage{TotalTokens: 1}))
	gen.RepeatLast = true
	f := newFlow(t, rt, Limits{MaxSteps: 3}, buildActor(t, rt, "agent", echoDefinition(), gen))

	require.NoError(t, f.Run(context.Background()))

	assert.True(t, f.Done())
	status, reason := rt.TaskStatus()
	assert.Equal(t, models.TaskStatusFailed, status)
	require.NotNil(t, reason)
	assert.Equal(t, state.ReasonMaxSteps, *reason)

	failed := eventsNamed(rt, eventlog.TaskFailed)
	require.Len(t, failed, 1)
	d := flowComplete(t, rt)
	assert.Equal(t, f.Steps(), d.Steps)
	assert.Equal(t, 4, d.Steps)
	assert.Equal(t, 4, d.Usage.TotalTokens)
}

func TestFlow_EchoThenComplete(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(
		mocks.ToolCallTurn("echo", `{"x":"hi"}`, models.Usage{TotalTokens: 5}),
		mocks.ToolCallTurn("task_complete_success", `{}`, models.Usage{TotalTokens: 3}),
	)
	actor := buildActor(t, rt, "agent", echoDefinition(), gen)
	f := newFlow(t, rt, Limits{MaxSteps: 10}, actor)

	require.NoError(t, f.Run(context.Background()))
	assert.Nil(t, f.CurrentActor())

	complete := eventsNamed(rt, eventlog.TaskComplete)
	require.Len(t, complete, 1)
	var done eventlog.TaskStatusData
	require.NoError(t, complete[0].Decode(&done))
	assert.Equal(t, "agent", done.Actor)
	assert.Nil(t, done.Reason)

	called := eventsNamed(rt, eventlog.ToolCalled)
	require.Len(t, called, 2)
	var echo eventlog.ToolCalledData
	require.NoError(t, called[0].Decode(&echo))
	assert.Equal(t, "hi", echo.Result)

	d := flowComplete(t, rt)
	assert.Equal(t, 2, d.Steps)
	assert.Equal(t, 8, d.Usage.TotalTokens)
	assert.Equal(t, 8, rt.Usage().TotalTokens)

	names := make([]string, 0)
	for _, ev := range rt.Events() {
		switch ev.Name {
		case eventlog.FlowStarted, eventlog.TaskStarted, eventlog.AgentStep, eventlog.StepStarted, eventlog.StepComplete, eventlog.FlowComplete:
			names = append(names, ev.Name)
		}
	}
	assert.Equal(t, []string{
		eventlog.FlowStarted,
		eventlog.StepStarted, eventlog.TaskStarted, eventlog.AgentStep, eventlog.StepComplete,
		eventlog.StepStarted, eventlog.AgentStep, eventlog.StepComplete,
		eventlog.FlowComplete,
	}, names)

	// 첫 요청은 system, user 순서로 구성됩니다.
	first := gen.Calls[0]
	require.Len(t, first, 2)
	assert.Equal(t, "You are a helpful assistant.", first[0].Content)
	assert.Equal(t, "say hi", first[1].Content)
}

func TestFlow_UnknownToolIsRecoverable(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(
		mocks.ToolCallTurn("frobnicate", `{}`, models.Usage{}),
		mocks.ToolCallTurn("task_complete_success", `{"reason":"done"}`, models.Usage{}),
	)
	actor := buildActor(t, rt, "agent", echoDefinition(), gen)
	f := newFlow(t, rt, Limits{MaxSteps: 10}, actor)

	require.NoError(t, f.Run(context.Background()))

	unknown := eventsNamed(rt, eventlog.UnknownTool)
	require.Len(t, unknown, 1)
	var d eventlog.UnknownToolData
	require.NoError(t, unknown[0].Decode(&d))
	assert.Equal(t, "frobnicate", d.ToolName)

	history := actor.Engine().History()
	require.GreaterOrEqual(t, len(history), 2)
	assert.Equal(t, "The tool frobnicate is not available.", history[1].Content)
	assert.Len(t, eventsNamed(rt, eventlog.TaskComplete), 1)
	assert.Equal(t, 2, flowComplete(t, rt).Steps)
}

func TestFlow_OnlyOneActiveFlowPerRuntime(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(mocks.ToolCallTurn("task_complete_success", `{}`, models.Usage{}))
	actor := buildActor(t, rt, "agent", echoDefinition(), gen)
	first := newFlow(t, rt, Limits{}, actor)

	_, err := New(rt, []*Actor{actor}, Limits{})
	assert.ErrorIs(t, err, state.ErrFlowActive)

	require.NoError(t, first.Run(context.Background()))
	assert.True(t, first.Done())

	first.Close()
	second, err := New(rt, []*Actor{actor}, Limits{})
	require.NoError(t, err)
	second.Close()
}

func TestFlow_MaxCost(t *testing.T) {
	rt := newRuntime(t)
	cost := 6.0
	gen := mocks.NewScriptedGenerator(mocks.ToolCallTurn("echo", `{"x":"pricey"}`, models.Usage{TotalTokens: 1, Cost: &cost}))
	gen.RepeatLast = true
	f := newFlow(t, rt, Limits{MaxSteps: 100, MaxCost: 10}, buildActor(t, rt, "agent", echoDefinition(), gen))

	require.NoError(t, f.Run(context.Background()))

	_, reason := rt.TaskStatus()
	require.NotNil(t, reason)
	assert.Equal(t, state.ReasonMaxCost, *reason)
	assert.Equal(t, 2, f.Steps())
	assert.InDelta(t, 12.0, f.Usage().CostValue(), 1e-9)
}

func TestFlow_Timeout(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(mocks.ToolCallTurn("echo", `{"x":"slow"}`, models.Usage{}))
	gen.RepeatLast = true

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := now
		now = now.Add(40 * time.Second)
		return cur
	}

	f, err := New(rt, []*Actor{buildActor(t, rt, "agent", echoDefinition(), gen)},
		Limits{MaxSteps: 100, Timeout: time.Minute}, WithClock(clock))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Run(context.Background()))

	_, reason := rt.TaskStatus()
	require.NotNil(t, reason)
	assert.Equal(t, state.ReasonTimeout, *reason)
	assert.Less(t, f.Steps(), 100)
}

func TestFlow_FatalGeneratorError(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(mocks.ErrorTurn(generation.NewGeneratorError("Generate", "test/model", 401, generation.ErrAuthentication)))
	f := newFlow(t, rt, Limits{MaxSteps: 10}, buildActor(t, rt, "agent", echoDefinition(), gen))

	err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, generation.IsFatal(err))
	assert.Len(t, eventsNamed(rt, eventlog.Error), 1)
	assert.Len(t, eventsNamed(rt, eventlog.FlowComplete), 1)
}

func TestFlow_MultipleActorsRunInOrder(t *testing.T) {
	rt := newRuntime(t)
	complete := mocks.ToolCallTurn("task_complete_success", `{}`, models.Usage{})
	first := buildActor(t, rt, "first", echoDefinition(), mocks.NewScriptedGenerator(complete))
	second := buildActor(t, rt, "second", echoDefinition(), mocks.NewScriptedGenerator(complete))
	f := newFlow(t, rt, Limits{MaxSteps: 10}, first, second)

	require.NoError(t, f.Run(context.Background()))

	var actors []string
	for _, ev := range eventsNamed(rt, eventlog.TaskComplete) {
		var d eventlog.TaskStatusData
		require.NoError(t, ev.Decode(&d))
		actors = append(actors, d.Actor)
	}
	assert.Equal(t, []string{"first", "second"}, actors)
	assert.Equal(t, 2, f.Steps())
}

func TestFlow_StepAfterDoneIsNoop(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(mocks.ToolCallTurn("task_complete_success", `{}`, models.Usage{}))
	f := newFlow(t, rt, Limits{}, buildActor(t, rt, "agent", echoDefinition(), gen))

	require.NoError(t, f.Step(context.Background()))
	assert.True(t, f.Done())
	require.NoError(t, f.Step(context.Background()))
	assert.Equal(t, 1, f.Steps())
	assert.Equal(t, 1, gen.GetCallCount())
}

func TestActor_SystemPromptIncludesKnowledge(t *testing.T) {
	rt := newRuntime(t)
	def := &Definition{
		Agent:    "You are {{ role }}.",
		Task:     "Work on {{ topic }}",
		Defaults: map[string]any{"role": "a tester", "topic": 42},
	}
	actor := buildActor(t, rt, "agent", def, mocks.NewScriptedGenerator())
	actor.activate()
	rt.AppendToKnowledge("thoughts", "step one")

	system, err := actor.SystemPrompt()
	require.NoError(t, err)
	require.NotNil(t, system)
	assert.Equal(t, "You are a tester.\n\n## Thoughts\n\nstep one", *system)

	prompt, err := actor.Prompt()
	require.NoError(t, err)
	assert.Equal(t, "Work on 42", prompt)
}

func TestActor_MissingTaskInAutomaticMode(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator()
	actor := buildActor(t, rt, "agent", &Definition{Agent: "x"}, gen)

	_, err := actor.Step(context.Background())
	assert.ErrorIs(t, err, state.ErrMissingParameter)
	assert.Len(t, eventsNamed(rt, eventlog.Error), 1)
	assert.Equal(t, 0, gen.GetCallCount())
}

func TestActor_ExtraMessageIsUsedOnce(t *testing.T) {
	rt := newRuntime(t)
	gen := mocks.NewScriptedGenerator(mocks.TextTurn("a", models.Usage{}), mocks.TextTurn("b", models.Usage{}))
	actor := buildActor(t, rt, "agent", &Definition{Task: "t"}, gen)

	actor.AddExtraMessage("also this")
	_, err := actor.Step(context.Background())
	require.NoError(t, err)
	_, err = actor.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "also this", gen.Calls[0][len(gen.Calls[0])-1].Content)
	for _, m := range gen.Calls[1] {
		assert.NotEqual(t, "also this", m.Content)
	}
}
