// Package models는 엔진 전반에서 공유하는 데이터 타입을 정의합니다.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Usage는 generator 호출의 토큰 사용량과 비용입니다.
type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Cost             *float64 `json:"cost"`
}

// Add는 두 Usage의 합을 반환합니다. 비용은 양쪽 모두 알 수 없을 때만 nil입니다.
func (u Usage) Add(other Usage) Usage {
	sum := Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
	if u.Cost != nil || other.Cost != nil {
		var c float64
		if u.Cost != nil {
			c += *u.Cost
		}
		if other.Cost != nil {
			c += *other.Cost
		}
		sum.Cost = &c
	}
	return sum
}

// CostValue는 비용을 반환합니다. 알 수 없으면 0입니다.
func (u Usage) CostValue() float64 {
	if u.Cost == nil {
		return 0
	}
	return *u.Cost
}

// TaskStatus는 현재 Actor 작업의 상태입니다.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsDone은 종료 상태인지 확인합니다.
func (s TaskStatus) IsDone() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Mode는 런타임 실행 모드입니다.
type Mode string

const (
	ModeAutomatic   Mode = "automatic"
	ModeInteractive Mode = "interactive"
)

// Role은 대화 메시지의 역할입니다.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart 타입
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL은 image_url 파트의 payload입니다.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart는 멀티모달 메시지의 한 조각입니다.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart는 텍스트 파트를 생성합니다.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// FunctionCall은 모델이 요청한 함수 이름과 JSON 인자입니다.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall은 assistant 메시지에 포함된 도구 호출입니다.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message는 역할이 지정된 대화 항목입니다.
// Parts가 있으면 Content 대신 멀티모달 배열로 직렬화됩니다.
type Message struct {
	Role       Role
	Content    string
	Parts      []ContentPart
	ToolCallID string
	Name       string
	ToolCalls  []ToolCall
}

// IsMultimodal은 Parts로 구성된 메시지인지 확인합니다.
func (m Message) IsMultimodal() bool {
	return len(m.Parts) > 0
}

type wireMessage struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// MarshalJSON은 OpenAI chat 포맷으로 직렬화합니다.
func (m Message) MarshalJSON() ([]byte, error) {
	var content []byte
	var err error
	if m.IsMultimodal() {
		content, err = json.Marshal(m.Parts)
	} else {
		content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{
		Role:       m.Role,
		Content:    content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
		ToolCalls:  m.ToolCalls,
	})
}

// UnmarshalJSON은 content가 문자열, 배열, null인 경우를 모두 처리합니다.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		Role:       w.Role,
		ToolCallID: w.ToolCallID,
		Name:       w.Name,
		ToolCalls:  w.ToolCalls,
	}

	raw := bytes.TrimSpace(w.Content)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &m.Content); err != nil {
			return err
		}
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &m.Parts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("models: unsupported message content %s", string(raw))
	}
	return nil
}

// TaskSnapshot은 현재 작업 상태의 직렬화 형태입니다.
type TaskSnapshot struct {
	Status TaskStatus `json:"status"`
	Reason *string    `json:"reason"`
}

// Snapshot은 런타임 상태의 직렬화 형태입니다.
type Snapshot struct {
	Mode        Mode              `json:"mode"`
	CurrentTask TaskSnapshot      `json:"current_task"`
	Variables   map[string]string `json:"variables"`
	Knowledge   map[string]string `json:"knowledge"`
}
