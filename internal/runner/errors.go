package runner

import (
	"errors"
	"fmt"
)

// 기본 에러 타입
var (
	// Runner 관련 에러
	ErrRunnerAlreadyExists = errors.New("runner가 이미 존재함")
	ErrRunnerNotFound      = errors.New("runner를 찾을 수 없음")
	ErrInvalidArguments    = errors.New("잘못된 실행 인자")

	// 프로세스 관련 에러
	ErrSpawnFailed = errors.New("프로세스 시작 실패")

	// trace 관련 에러
	ErrTraceUnreadable = errors.New("trace 파일을 읽을 수 없음")
)

// RunnerError는 Runner 관련 에러를 래핑합니다.
type RunnerError struct {
	Op       string // 작업명 (예: "New", "Run", "Cleanup")
	RunnerID string // Runner ID
	Err      error  // 원본 에러
}

func (e *RunnerError) Error() string {
	if e.RunnerID != "" {
		return fmt.Sprintf("runner[%s] %s: %v", e.RunnerID, e.Op, e.Err)
	}
	return fmt.Sprintf("runner %s: %v", e.Op, e.Err)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}

// NewRunnerError는 새 RunnerError를 생성합니다.
func NewRunnerError(op, runnerID string, err error) *RunnerError {
	return &RunnerError{
		Op:       op,
		RunnerID: runnerID,
		Err:      err,
	}
}

// IsSpawnFailure는 자식 프로세스를 시작하지 못한 에러인지 확인합니다.
func IsSpawnFailure(err error) bool {
	return errors.Is(err, ErrSpawnFailed)
}
