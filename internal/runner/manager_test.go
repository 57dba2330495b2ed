package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testArguments() Arguments {
	return Arguments{
		Binary:    "actorflow",
		InputPath: "agent.yml",
		Generator: "openai/gpt-4o",
		MaxSteps:  10,
	}
}

func TestRunnerManager_CRUD(t *testing.T) {
	rm := NewRunnerManager(t.TempDir(), WithLogger(zaptest.NewLogger(t)), WithManagerMetrics(&Metrics{}))

	// Create
	r, err := rm.CreateRunner(testArguments(), nil)
	require.NoError(t, err)
	assert.Equal(t, RunnerStatusPending, r.Status)
	assert.Equal(t, rm.RunsDir(), filepath.Dir(r.TracePath))

	// Get
	got, err := rm.GetRunner(r.ID)
	require.NoError(t, err)
	assert.Same(t, r, got)

	// List
	runners := rm.ListRunner()
	assert.Len(t, runners, 1)
	assert.Equal(t, 1, rm.GetRunnerCount())

	// Delete
	require.NoError(t, rm.DeleteRunner(r.ID))
	assert.Len(t, rm.ListRunner(), 0)

	_, err = rm.GetRunner(r.ID)
	assert.ErrorIs(t, err, ErrRunnerNotFound)

	// Delete non-existent
	assert.NoError(t, rm.DeleteRunner("non-existent"))
}

func TestRunnerManager_DuplicateID(t *testing.T) {
	rm := NewRunnerManager(t.TempDir())

	_, err := rm.CreateRunner(testArguments(), nil, WithID("same"))
	require.NoError(t, err)

	_, err = rm.CreateRunner(testArguments(), nil, WithID("same"))
	assert.ErrorIs(t, err, ErrRunnerAlreadyExists)
}

func TestRunnerManager_CreateRunnerInvalidArguments(t *testing.T) {
	rm := NewRunnerManager(t.TempDir())

	_, err := rm.CreateRunner(Arguments{}, nil)
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.Equal(t, 0, rm.GetRunnerCount())
}

func TestRunnerManager_CleanupRemovesTraces(t *testing.T) {
	metrics := &Metrics{}
	rm := NewRunnerManager(t.TempDir(), WithManagerMetrics(metrics))

	var paths []string
	for i := 0; i < 3; i++ {
		r, err := rm.CreateRunner(testArguments(), nil)
		require.NoError(t, err)
		// 실행을 흉내 내어 trace 파일을 만듭니다.
		require.NoError(t, os.WriteFile(r.TracePath, []byte("{}\n"), 0o644))
		paths = append(paths, r.TracePath)
	}

	require.NoError(t, rm.Cleanup())
	assert.Equal(t, 0, rm.GetRunnerCount())
	for _, p := range paths {
		assert.NoFileExists(t, p)
	}
	assert.Equal(t, int64(3), rm.GetStats().TracesRemoved)
}

func TestRunnerManager_RunThroughManager(t *testing.T) {
	bin, err := os.Executable()
	require.NoError(t, err)

	rm := NewRunnerManager(t.TempDir(), WithLogger(zaptest.NewLogger(t)), WithManagerMetrics(&Metrics{}))
	r, err := rm.CreateRunner(Arguments{
		Binary:    bin,
		InputPath: "unused",
		Generator: "test/scripted",
	}, nil, WithEnv(helperEnv+"=1", scenarioEnv+"=crash"))
	require.NoError(t, err)

	out, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)

	stats := rm.GetStats()
	assert.Equal(t, int64(1), stats.RunsExecuted)
	assert.Equal(t, int64(1), stats.RunsFailed)
	require.NoError(t, rm.Cleanup())
}

func TestRunnerManager_CleanupStale(t *testing.T) {
	dir := t.TempDir()
	rm := NewRunnerManager(dir)

	old := filepath.Join(dir, "run-old.jsonl")
	fresh := filepath.Join(dir, "run-fresh.jsonl")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	require.NoError(t, os.WriteFile(fresh, nil, 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := rm.CleanupStale(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	removed, err = rm.CleanupStale(0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
