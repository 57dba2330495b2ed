package runner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunnerError(t *testing.T) {
	err := NewRunnerError("Run", "test-runner", errors.New("failed"))

	assert.Equal(t, "runner[test-runner] Run: failed", err.Error())
	assert.Equal(t, "failed", err.Unwrap().Error())
}

func TestRunnerError_NoRunnerID(t *testing.T) {
	err := NewRunnerError("New", "", errors.New("failed"))

	assert.Equal(t, "runner New: failed", err.Error())
}

func TestIsSpawnFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "SpawnFailed",
			err:      ErrSpawnFailed,
			expected: true,
		},
		{
			name:     "wrapped in RunnerError",
			err:      NewRunnerError("Run", "x", fmt.Errorf("%w: %w", ErrSpawnFailed, errors.New("no such file"))),
			expected: true,
		},
		{
			name:     "TraceUnreadable",
			err:      NewRunnerError("Run", "x", ErrTraceUnreadable),
			expected: false,
		},
		{
			name:     "nil",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSpawnFailure(tt.err))
		})
	}
}
