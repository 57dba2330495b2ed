package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/tooling"
)

// Turn은 generator 호출 한 번에 대한 응답입니다.
type Turn struct {
	Message *models.Message
	Usage   models.Usage
	Err     error
}

// ToolCallTurn은 도구 하나를 호출하는 응답을 만듭니다.
func ToolCallTurn(name, args string, usage models.Usage) Turn {
	return Turn{
		Message: &models.Message{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				Type:     "function",
				Function: models.FunctionCall{Name: name, Arguments: args},
			}},
		},
		Usage: usage,
	}
}

// TextTurn은 텍스트만 있는 응답을 만듭니다.
func TextTurn(text string, usage models.Usage) Turn {
	return Turn{
		Message: &models.Message{Role: models.RoleAssistant, Content: text},
		Usage:   usage,
	}
}

// ErrorTurn은 에러 응답을 만듭니다.
func ErrorTurn(err error) Turn {
	return Turn{Err: err}
}

// ScriptedGenerator는 미리 정해진 응답을 순서대로 반환하는 테스트용 Generator입니다.
type ScriptedGenerator struct {
	mu sync.Mutex

	// Turns는 순서대로 반환할 응답입니다.
	Turns []Turn

	// RepeatLast가 true이면 Turns를 모두 쓴 뒤 마지막 응답을 반복합니다.
	RepeatLast bool

	// Calls는 Generate 호출에 전달된 대화 기록입니다.
	Calls [][]models.Message

	// Tools는 Generate 호출에 전달된 도구 schema입니다.
	Tools [][]tooling.Schema

	next   int
	callID int
}

// NewScriptedGenerator는 새로운 ScriptedGenerator를 생성합니다.
func NewScriptedGenerator(turns ...Turn) *ScriptedGenerator {
	return &ScriptedGenerator{
		Turns: turns,
		Calls: make([][]models.Message, 0),
	}
}

// ensure ScriptedGenerator implements Generator
var _ generation.Generator = (*ScriptedGenerator)(nil)

// Generate implements Generator interface.
// 도구 호출 ID가 비어 있으면 call_<n> 형식으로 채웁니다.
func (m *ScriptedGenerator) Generate(ctx context.Context, conversation []models.Message, tools []tooling.Schema) (models.Usage, *models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, append([]models.Message(nil), conversation...))
	m.Tools = append(m.Tools, tools)

	if err := ctx.Err(); err != nil {
		return models.Usage{}, nil, err
	}

	var turn Turn
	switch {
	case m.next < len(m.Turns):
		turn = m.Turns[m.next]
		m.next++
	case m.RepeatLast && len(m.Turns) > 0:
		turn = m.Turns[len(m.Turns)-1]
	default:
		return models.Usage{}, nil, nil
	}

	if turn.Err != nil {
		return models.Usage{}, nil, turn.Err
	}
	if turn.Message == nil {
		return turn.Usage, nil, nil
	}

	msg := *turn.Message
	msg.ToolCalls = append([]models.ToolCall(nil), msg.ToolCalls...)
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			m.callID++
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", m.callID)
		}
	}
	return turn.Usage, &msg, nil
}

// GetCallCount는 Generate 호출 횟수를 반환합니다.
func (m *ScriptedGenerator) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// GetLastCall은 마지막 Generate 호출의 대화 기록을 반환합니다.
func (m *ScriptedGenerator) GetLastCall() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}

// Reset은 호출 기록과 진행 위치를 초기화합니다.
func (m *ScriptedGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([][]models.Message, 0)
	m.Tools = nil
	m.next = 0
}
