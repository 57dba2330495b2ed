// Package eventlog는 런타임 이벤트와 JSONL trace 파일 포맷을 정의합니다.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// 이벤트 이름
const (
	FlowStarted      = "flow_started"
	AgentCreated     = "agent_created"
	TaskStarted      = "task_started"
	AgentStep        = "agent_step"
	StepStarted      = "step_started"
	StepComplete     = "step_complete"
	BeforeToolCalled = "before_tool_called"
	ToolCalled       = "tool_called"
	ToolError        = "tool_error"
	UnknownTool      = "unknown_tool"
	ToolCreated      = "tool_created"
	TextResponse     = "text_response"
	KnowledgeChange  = "knowledge_change"
	VariableChange   = "variable_change"
	ModeChange       = "mode_change"
	TaskComplete     = "task_complete"
	TaskFailed       = "task_failed"
	FlowComplete     = "flow_complete"
	Error            = "error"
)

// Event는 불변 로그 항목입니다. Timestamp는 Unix epoch 초 단위입니다.
type Event struct {
	Timestamp float64         `json:"timestamp"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
}

// Now는 현재 시각을 이벤트 timestamp 형식으로 반환합니다.
func Now() float64 {
	return Timestamp(time.Now())
}

// Timestamp는 time.Time을 epoch 초로 변환합니다.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// NewEvent는 payload를 직렬화하여 현재 시각의 이벤트를 만듭니다.
func NewEvent(name string, payload any) (Event, error) {
	return NewEventAt(Now(), name, payload)
}

// NewEventAt은 지정된 timestamp로 이벤트를 만듭니다.
func NewEventAt(ts float64, name string, payload any) (Event, error) {
	if name == "" {
		return Event{}, fmt.Errorf("eventlog: empty event name")
	}
	data := json.RawMessage("null")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("eventlog: %s payload 직렬화 실패: %w", name, err)
		}
		data = b
	}
	return Event{Timestamp: ts, Name: name, Data: data}, nil
}

// Decode는 이벤트 data를 v로 역직렬화합니다.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("eventlog: %s event has no data", e.Name)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("eventlog: %s payload 파싱 실패: %w", e.Name, err)
	}
	return nil
}

// Time은 timestamp를 time.Time으로 변환합니다.
func (e Event) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
