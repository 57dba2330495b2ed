package flow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const agentYAML = `
generator: openai/gpt-4o
agent: You are a release engineer.
task: Tag version {{ version }}
defaults:
  version: 1.2
using:
  - task
  - reasoning
tools:
  - name: git_tag
    description: Create a git tag
    arguments:
      - name: tag
        description: The tag name
        example: v1.0.0
    tool: git tag {{ tag }}
    complete_task: true
limits:
  max_steps: 20
  timeout: 90
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(agentYAML))
	require.NoError(t, err)

	assert.Equal(t, "openai/gpt-4o", def.Generator)
	assert.Equal(t, []string{"task", "reasoning"}, def.Using)
	assert.Equal(t, map[string]string{"version": "1.2"}, def.DefaultValues())
	require.Len(t, def.Tools, 1)
	assert.Equal(t, "git tag {{ tag }}", def.Tools[0].Command)
	assert.True(t, def.Tools[0].CompleteTask)
	assert.Equal(t, "v1.0.0", def.Tools[0].Arguments[0].Example)
	require.NotNil(t, def.Limits)
	assert.Equal(t, 20, *def.Limits.MaxSteps)
	assert.Nil(t, def.Limits.MaxCost)

	_, err = ParseDefinition([]byte("description: nothing to do\n"))
	assert.Error(t, err)
	_, err = ParseDefinition([]byte("agent: [unclosed"))
	assert.Error(t, err)
}

func TestLoadDefinition_NameAndDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "releaser", "task.yml"), agentYAML)
	writeFile(t, filepath.Join(dir, "reviewer.yml"), "task: review\n")

	def, err := LoadDefinition(filepath.Join(dir, "releaser"))
	require.NoError(t, err)
	assert.Equal(t, "releaser", def.Name())
	assert.Equal(t, filepath.Join(dir, "releaser"), def.WorkingDir)

	def, err = LoadDefinition(filepath.Join(dir, "reviewer.yml"))
	require.NoError(t, err)
	assert.Equal(t, "reviewer", def.Name())

	_, err = LoadDefinition(t.TempDir())
	assert.Error(t, err)
}

func TestLimits_Apply(t *testing.T) {
	def, err := ParseDefinition([]byte(agentYAML))
	require.NoError(t, err)

	cost := 3.0
	got := Limits{MaxSteps: 500, MaxCost: 10}.Apply(def.Limits).Apply(&LimitsSpec{MaxCost: &cost})
	assert.Equal(t, Limits{MaxSteps: 20, MaxCost: 3, Timeout: 90 * time.Second}, got)

	assert.Equal(t, Limits{MaxSteps: 7}, Limits{MaxSteps: 7}.Apply(nil))

	zero, zeroCost := 0, 0.0
	got = Limits{MaxSteps: 500, MaxCost: 10}.Apply(def.Limits).Apply(&LimitsSpec{MaxSteps: &zero, MaxCost: &zeroCost})
	assert.Equal(t, Limits{Timeout: 90 * time.Second}, got)
}

func TestParseWorkflow_PreservesOrder(t *testing.T) {
	w, err := ParseWorkflow([]byte(`
name: pipeline
description: two step pipeline
actors:
  writer:
    generator: openai/gpt-4o
  reviewer:
    generator: ollama/llama3
  archiver: {}
`))
	require.NoError(t, err)
	assert.Equal(t, "pipeline", w.Name)
	assert.Equal(t, []WorkflowActor{
		{Name: "writer", Generator: "openai/gpt-4o"},
		{Name: "reviewer", Generator: "ollama/llama3"},
		{Name: "archiver"},
	}, w.Actors)

	_, err = ParseWorkflow([]byte("name: x\ndescription: y\n"))
	assert.Error(t, err)
}

func TestLoad_Workflow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, WorkflowFile), `
name: pipeline
description: test
actors:
  writer:
    generator: test/writer
  reviewer:
    generator: test/reviewer
`)
	writeFile(t, filepath.Join(dir, "writer.yml"), "task: write\nusing: [task]\n")
	writeFile(t, filepath.Join(dir, "reviewer", "task.yml"), "task: review\nusing: [task]\n")

	rt := newRuntime(t)
	var requested []string
	f, err := Load(rt, dir, LoadOptions{
		GeneratorID: "test/default",
		NewGenerator: func(id string) (generation.Generator, error) {
			requested = append(requested, id)
			return mocks.NewScriptedGenerator(), nil
		},
		DefaultLimits: Limits{MaxSteps: 50},
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer f.Close()

	require.NotNil(t, f.Workflow())
	require.Len(t, f.Actors(), 2)
	assert.Equal(t, "writer", f.Actors()[0].Name())
	assert.Equal(t, "reviewer", f.Actors()[1].Name())
	assert.Equal(t, []string{"test/writer", "test/reviewer"}, requested)
	assert.Equal(t, 50, f.limits.MaxSteps)
}

func TestLoad_SingleAgent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "task.yml"), "task: do it\nlimits:\n  max_steps: 5\n")

	rt := newRuntime(t)
	f, err := Load(rt, dir, LoadOptions{
		GeneratorID:   "test/default",
		NewGenerator:  func(string) (generation.Generator, error) { return mocks.NewScriptedGenerator(), nil },
		DefaultLimits: Limits{MaxSteps: 500, MaxCost: 10},
	})
	require.NoError(t, err)
	defer f.Close()

	require.Len(t, f.Actors(), 1)
	assert.Nil(t, f.Workflow())
	assert.Equal(t, "test/default", f.Actors()[0].GeneratorID())
	assert.Equal(t, Limits{MaxSteps: 5, MaxCost: 10}, f.limits)
}

func TestLoad_ExplicitZeroLimitsMeanUnlimited(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "task.yml"), `task: do it
limits:
  max_steps: 5
  max_cost: 2
`)

	zero, zeroCost := 0, 0.0
	rt := newRuntime(t)
	f, err := Load(rt, dir, LoadOptions{
		GeneratorID:   "test/default",
		NewGenerator:  func(string) (generation.Generator, error) { return mocks.NewScriptedGenerator(), nil },
		Limits:        &LimitsSpec{MaxSteps: &zero, MaxCost: &zeroCost},
		DefaultLimits: Limits{MaxSteps: 500, MaxCost: 10, Timeout: time.Minute},
	})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, Limits{Timeout: time.Minute}, f.limits)
}
