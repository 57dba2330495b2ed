package generation

import (
	"errors"
	"fmt"
)

// 기본 에러 타입
var (
	// 설정 또는 요청 오류로 재시도해도 해결되지 않는 에러
	ErrAuthentication = errors.New("generator 인증 실패")
	ErrNotFound       = errors.New("model을 찾을 수 없음")
	ErrBadRequest     = errors.New("잘못된 generator 요청")

	// 재시도 가능한 에러
	ErrRateLimited = errors.New("rate limit 초과")

	// window를 줄여서 다시 시도해야 하는 에러
	ErrContextWindowExceeded = errors.New("context window 초과")

	// ErrFatal은 실행을 중단해야 하는 모든 에러를 감쌉니다.
	ErrFatal = errors.New("치명적인 generator 에러")
)

// GeneratorError는 generator 호출 에러를 래핑합니다.
type GeneratorError struct {
	Op         string // 작업명 (예: "Generate")
	Generator  string // generator ID
	StatusCode int    // HTTP 상태 코드, 없으면 0
	Err        error  // 원본 에러
}

func (e *GeneratorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generator[%s] %s (status %d): %v", e.Generator, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generator[%s] %s: %v", e.Generator, e.Op, e.Err)
}

func (e *GeneratorError) Unwrap() error {
	return e.Err
}

// NewGeneratorError는 새 GeneratorError를 생성합니다.
func NewGeneratorError(op, generator string, statusCode int, err error) *GeneratorError {
	return &GeneratorError{
		Op:         op,
		Generator:  generator,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsFatal은 실행을 중단해야 하는 에러인지 확인합니다.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrFatal):
		return true
	case errors.Is(err, ErrAuthentication):
		return true
	case errors.Is(err, ErrNotFound):
		return true
	case errors.Is(err, ErrBadRequest):
		return true
	default:
		return false
	}
}

// IsRetryable는 재시도 가능한 에러인지 확인합니다.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsContextWindowExceeded는 대화가 모델의 context window를 넘었는지 확인합니다.
func IsContextWindowExceeded(err error) bool {
	return errors.Is(err, ErrContextWindowExceeded)
}

// fatal은 err를 ErrFatal로 감쌉니다.
func fatal(err error) error {
	if errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}
