package runner

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunnerManager manages Runner instances.
// 프로세스가 끝날 때 Cleanup을 호출하면 남아 있는 자식 프로세스와 trace 파일이 정리됩니다.
type RunnerManager struct {
	runners map[string]*Runner
	runsDir string
	metrics *Metrics
	mu      sync.RWMutex
	logger  *zap.Logger
}

// RunnerManagerOption은 RunnerManager 옵션입니다.
type RunnerManagerOption func(*RunnerManager)

// WithLogger는 logger를 설정합니다.
func WithLogger(logger *zap.Logger) RunnerManagerOption {
	return func(rm *RunnerManager) {
		rm.logger = logger
	}
}

// WithManagerMetrics는 생성되는 Runner가 사용할 Metrics를 설정합니다.
func WithManagerMetrics(m *Metrics) RunnerManagerOption {
	return func(rm *RunnerManager) {
		rm.metrics = m
	}
}

// NewRunnerManager는 runsDir에 trace를 만드는 RunnerManager를 생성합니다.
func NewRunnerManager(runsDir string, opts ...RunnerManagerOption) *RunnerManager {
	if runsDir == "" {
		runsDir = DefaultRunsDir
	}
	rm := &RunnerManager{
		runners: make(map[string]*Runner),
		runsDir: runsDir,
		metrics: GlobalMetrics,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(rm)
	}
	if rm.logger == nil {
		rm.logger = zap.NewNop()
	}
	return rm
}

// RunsDir는 trace 디렉토리를 반환합니다.
func (rm *RunnerManager) RunsDir() string {
	return rm.runsDir
}

// CreateRunner creates a new Runner and adds it to the manager.
// 프로세스는 시작되지 않습니다. Runner.Run을 별도로 호출해야 합니다.
func (rm *RunnerManager) CreateRunner(args Arguments, inputState map[string]string, opts ...RunnerOption) (*Runner, error) {
	allOpts := append([]RunnerOption{WithRunsDir(rm.runsDir), WithMetrics(rm.metrics)}, opts...)
	r, err := NewRunner(args, inputState, rm.logger, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("runner 생성 실패: %w", err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, exists := rm.runners[r.ID]; exists {
		return nil, NewRunnerError("Create", r.ID, ErrRunnerAlreadyExists)
	}
	rm.runners[r.ID] = r
	return r, nil
}

// GetRunner returns a Runner by its ID.
func (rm *RunnerManager) GetRunner(id string) (*Runner, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	r, ok := rm.runners[id]
	if !ok {
		return nil, NewRunnerError("Get", id, ErrRunnerNotFound)
	}
	return r, nil
}

// ListRunner returns a list of all Runners.
func (rm *RunnerManager) ListRunner() []*Runner {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	runnersList := make([]*Runner, 0, len(rm.runners))
	for _, r := range rm.runners {
		runnersList = append(runnersList, r)
	}
	return runnersList
}

// DeleteRunner는 Runner를 정리하고 목록에서 제거합니다. 없는 ID는 무시합니다.
func (rm *RunnerManager) DeleteRunner(id string) error {
	rm.mu.Lock()
	r, exists := rm.runners[id]
	delete(rm.runners, id)
	rm.mu.Unlock()

	if !exists {
		return nil
	}
	return r.Cleanup()
}

// Cleanup은 모든 Runner를 정리합니다. (종료 시 호출)
func (rm *RunnerManager) Cleanup() error {
	rm.mu.Lock()
	runners := rm.runners
	rm.runners = make(map[string]*Runner)
	rm.mu.Unlock()

	var lastErr error
	for id, r := range runners {
		if err := r.Cleanup(); err != nil {
			rm.logger.Warn("Runner 정리 중 오류",
				zap.String("run_id", id),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	return lastErr
}

// CleanupStale은 관리 중이 아닌 오래된 trace 파일을 삭제합니다.
func (rm *RunnerManager) CleanupStale(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	return PruneTraces(rm.runsDir, maxAge, time.Now(), rm.logger)
}

// GetRunnerCount는 현재 관리 중인 Runner 수를 반환합니다.
func (rm *RunnerManager) GetRunnerCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.runners)
}

// GetStats는 Runner 메트릭 스냅샷을 반환합니다.
func (rm *RunnerManager) GetStats() MetricsSnapshot {
	return rm.metrics.GetSnapshot()
}
