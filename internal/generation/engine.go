package generation

import (
	"context"
	"errors"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"github.com/cnap-oss/actorflow/internal/window"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultReducedWindowSize는 context window 초과 시 처음 적용하는 sliding window 크기입니다.
	DefaultReducedWindowSize = 25

	// NoToolsUsedNudge는 도구가 있는데 텍스트만 응답했을 때 추가하는 메시지입니다.
	NoToolsUsedNudge = "None of the tools were used, interact with the user by executing the existing tools."
)

// Engine은 하나의 actor가 사용하는 대화 기록과 generator를 관리합니다.
type Engine struct {
	generatorID string
	generator   Generator
	rt          *state.Runtime
	tools       *tooling.Toolset
	window      window.Strategy

	history       []models.Message
	reducedWindow int
	recoveryCfg   RecoveryConfig
	recovery      *RecoveryManager
	newCallID     func() string
	logger        *zap.Logger
}

// EngineOption은 Engine 설정 함수입니다.
type EngineOption func(*Engine)

// WithEngineLogger는 logger를 설정합니다.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRecoveryConfig는 rate limit 재시도 설정을 지정합니다.
func WithRecoveryConfig(cfg RecoveryConfig) EngineOption {
	return func(e *Engine) {
		e.recoveryCfg = cfg
	}
}

// WithReducedWindowSize는 context window 초과 시 시작할 window 크기를 지정합니다.
func WithReducedWindowSize(n int) EngineOption {
	return func(e *Engine) {
		e.reducedWindow = n
	}
}

// WithCallIDGenerator는 모델이 ID 없이 보낸 도구 호출에 붙일 ID 생성기를 지정합니다.
func WithCallIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		e.newCallID = fn
	}
}

// NewEngine은 새 Engine을 생성합니다.
func NewEngine(rt *state.Runtime, generatorID string, gen Generator, tools *tooling.Toolset, strategy window.Strategy, opts ...EngineOption) *Engine {
	if strategy == nil {
		strategy = window.Full{}
	}
	e := &Engine{
		generatorID:   generatorID,
		generator:     gen,
		rt:            rt,
		tools:         tools,
		window:        strategy,
		reducedWindow: DefaultReducedWindowSize,
		recoveryCfg:   DefaultRecoveryConfig(),
		newCallID:     func() string { return "call_" + uuid.NewString() },
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.recovery = NewRecoveryManager(e.logger, e.recoveryCfg)
	return e
}

// GeneratorID는 generator ID를 반환합니다.
func (e *Engine) GeneratorID() string {
	return e.generatorID
}

// Window는 현재 window 전략을 반환합니다.
func (e *Engine) Window() window.Strategy {
	return e.window
}

// History는 대화 기록의 복사본을 반환합니다.
func (e *Engine) History() []models.Message {
	return append([]models.Message(nil), e.history...)
}

// Reset은 대화 기록을 비웁니다.
func (e *Engine) Reset() {
	e.history = nil
}

// Step은 generator를 한 번 호출하고 요청된 도구를 실행합니다.
// 치명적인 에러만 반환하며, 그 외 실패는 로그를 남기고 사용량 0으로 끝납니다.
func (e *Engine) Step(ctx context.Context, systemPrompt *string, prompt string, extraMessage *string) (models.Usage, error) {
	extra := e.rt.ExtraTools()
	schemas, err := e.tools.Schemas(extra)
	if err != nil {
		return models.Usage{}, fatal(err)
	}

	var (
		usage    models.Usage
		response *models.Message
	)
	for {
		conversation := e.conversation(systemPrompt, prompt, extraMessage)
		err = e.recovery.RetryOperation(ctx, "Generate", func() error {
			var genErr error
			usage, response, genErr = e.generator.Generate(ctx, conversation, schemas)
			return genErr
		})
		if err == nil {
			break
		}

		switch {
		case ctx.Err() != nil:
			return models.Usage{}, ctx.Err()
		case IsFatal(err):
			e.logger.Error("generator 치명적 에러", zap.String("generator", e.generatorID), zap.Error(err))
			return models.Usage{}, fatal(err)
		case IsContextWindowExceeded(err):
			if e.reducedWindow <= 0 {
				e.logger.Error("window를 더 줄일 수 없음", zap.String("generator", e.generatorID), zap.Error(err))
				return models.Usage{}, nil
			}
			e.window = window.Sliding{N: e.reducedWindow}
			e.logger.Warn("context window 초과, window 축소",
				zap.String("generator", e.generatorID),
				zap.Int("window", e.reducedWindow),
			)
			e.reducedWindow--
		default:
			e.logger.Error("generator 호출 실패", zap.String("generator", e.generatorID), zap.Error(err))
			return models.Usage{}, nil
		}
	}

	if response == nil {
		return usage, nil
	}

	msg := *response
	msg.Role = models.RoleAssistant
	if len(msg.ToolCalls) == 0 {
		e.history = append(e.history, msg)
		if len(schemas) > 0 {
			e.rt.RecordEvent(eventlog.TextResponse, eventlog.TextResponseData{
				Generator: e.generatorID,
				Response:  msg.Content,
			})
			e.history = append(e.history, models.Message{Role: models.RoleUser, Content: NoToolsUsedNudge})
		}
		return usage, nil
	}

	msg.ToolCalls = append([]models.ToolCall(nil), msg.ToolCalls...)
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = e.newCallID()
		}
		if msg.ToolCalls[i].Type == "" {
			msg.ToolCalls[i].Type = "function"
		}
	}

	added := []models.Message{msg}
	for _, call := range msg.ToolCalls {
		if err := ctx.Err(); err != nil {
			e.history = append(e.history, added...)
			return usage, err
		}
		added = append(added, e.Dispatch(ctx, call.ID, call.Function.Name, call.Function.Arguments, extra)...)
		if e.rt.IsActiveTaskDone() {
			break
		}
	}
	e.history = append(e.history, added...)
	return usage, nil
}

func (e *Engine) conversation(systemPrompt *string, prompt string, extraMessage *string) []models.Message {
	hist := e.window.Window(e.history)
	conv := make([]models.Message, 0, len(hist)+3)
	if systemPrompt != nil {
		conv = append(conv, models.Message{Role: models.RoleSystem, Content: *systemPrompt})
	}
	conv = append(conv, models.Message{Role: models.RoleUser, Content: prompt})
	conv = append(conv, hist...)
	if extraMessage != nil {
		conv = append(conv, models.Message{Role: models.RoleUser, Content: *extraMessage})
	}
	return conv
}

// IsCanceled는 err가 context 취소로 인한 것인지 확인합니다.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
