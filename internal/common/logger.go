package common

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOption은 logger 생성 옵션입니다.
type LoggerOption func(*zap.Config)

// WithLevel은 설정 파일의 로그 레벨을 덮어씁니다. 빈 문자열이나 잘못된 값은 무시됩니다.
func WithLevel(level string) LoggerOption {
	return func(c *zap.Config) {
		if level == "" {
			return
		}
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			c.Level = lvl
		}
	}
}

// WithConsoleEncoding은 JSON 대신 사람이 읽기 쉬운 형식으로 출력합니다.
func WithConsoleEncoding() LoggerOption {
	return func(c *zap.Config) {
		c.Encoding = "console"
		c.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
}

// NewLogger creates a new zap logger with the given name.
// The logger is configured based on the centralized Config.
func NewLogger(name string, opts ...LoggerOption) (*zap.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	return NewLoggerWithConfig(name, cfg, opts...)
}

// NewLoggerWithConfig creates a new zap logger with the given name and config.
// 로그는 항상 stderr로 나갑니다. stdout은 Runner가 자식 프로세스 출력으로 수집합니다.
func NewLoggerWithConfig(name string, cfg *Config, opts ...LoggerOption) (*zap.Logger, error) {
	var config zap.Config
	if cfg.App.ENV == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	if cfg.App.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.App.LogLevel)
		if err == nil {
			config.Level = level
		}
	}

	for _, opt := range opts {
		opt(&config)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	if name != "" {
		return logger.Named(name), nil
	}

	return logger, nil
}

// MustNewLogger creates a new logger and panics if it fails.
func MustNewLogger(name string, opts ...LoggerOption) *zap.Logger {
	logger, err := NewLogger(name, opts...)
	if err != nil {
		panic(err)
	}
	return logger
}
