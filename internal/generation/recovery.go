package generation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RecoveryConfig는 rate limit 재시도 설정입니다.
type RecoveryConfig struct {
	MaxRetries     int           // 최대 재시도 횟수
	InitialBackoff time.Duration // 초기 백오프 시간
	MaxBackoff     time.Duration // 최대 백오프 시간
	BackoffFactor  float64       // 백오프 증가 계수
}

// DefaultRecoveryConfig는 기본 재시도 설정을 반환합니다.
// rate limit은 고정 5초 간격으로 기다립니다.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxRetries:     10,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		BackoffFactor:  1.0,
	}
}

// RecoveryManager는 재시도 가능한 generator 에러를 처리합니다.
type RecoveryManager struct {
	config RecoveryConfig
	logger *zap.Logger
}

// NewRecoveryManager는 새 RecoveryManager를 생성합니다.
func NewRecoveryManager(logger *zap.Logger, config ...RecoveryConfig) *RecoveryManager {
	cfg := DefaultRecoveryConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryManager{
		config: cfg,
		logger: logger,
	}
}

// RetryOperation은 op가 재시도 불가능한 에러를 반환하거나 성공할 때까지 재시도합니다.
func (rm *RecoveryManager) RetryOperation(ctx context.Context, opName string, op func() error) error {
	var lastErr error
	backoff := rm.config.InitialBackoff

	for attempt := 0; attempt <= rm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			rm.logger.Info("작업 재시도",
				zap.String("operation", opName),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}

			backoff = time.Duration(float64(backoff) * rm.config.BackoffFactor)
			if backoff > rm.config.MaxBackoff {
				backoff = rm.config.MaxBackoff
			}
		}

		err := op()
		if err == nil {
			if attempt > 0 {
				rm.logger.Info("작업 재시도 성공",
					zap.String("operation", opName),
					zap.Int("attempts", attempt+1),
				)
			}
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		rm.logger.Warn("rate limit, 재시도 예정",
			zap.String("operation", opName),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	rm.logger.Error("최대 재시도 횟수 초과",
		zap.String("operation", opName),
		zap.Int("max_retries", rm.config.MaxRetries),
		zap.Error(lastErr),
	)

	return lastErr
}
