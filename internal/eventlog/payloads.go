package eventlog

import (
	"encoding/json"

	"github.com/cnap-oss/actorflow/internal/models"
)

// FlowStartedData는 flow_started payload입니다.
type FlowStartedData struct {
	Actors   []string `json:"actors"`
	MaxSteps int      `json:"max_steps"`
	MaxCost  float64  `json:"max_cost"`
	Timeout  *float64 `json:"timeout"`
}

// AgentCreatedData는 agent_created payload입니다.
type AgentCreatedData struct {
	Agent     string `json:"agent"`
	Generator string `json:"generator"`
}

// TaskStartedData는 task_started payload입니다.
type TaskStartedData struct {
	Actor string `json:"actor"`
}

// AgentStepData는 agent_step payload입니다.
type AgentStepData struct {
	AgentName    string  `json:"agent_name"`
	Generator    string  `json:"generator"`
	SystemPrompt *string `json:"system_prompt"`
	Prompt       string  `json:"prompt"`
}

// StepData는 step_started, step_complete payload입니다.
type StepData struct {
	Step       int          `json:"step"`
	TokenUsage models.Usage `json:"token_usage"`
}

// BeforeToolCalledData는 before_tool_called payload입니다.
type BeforeToolCalledData struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolCalledData는 tool_called payload입니다.
// Result는 텍스트 결과이거나 멀티모달 파트입니다.
type ToolCalledData struct {
	StartedAt  float64         `json:"started_at"`
	FinishedAt float64         `json:"finished_at"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	Result     any             `json:"result"`
	Error      *string         `json:"error"`
}

// ToolErrorData는 tool_error payload입니다.
type ToolErrorData struct {
	Generator string          `json:"generator"`
	ToolName  string          `json:"tool_name"`
	Args      json.RawMessage `json:"args"`
	Error     string          `json:"error"`
}

// UnknownToolData는 unknown_tool payload입니다.
type UnknownToolData struct {
	Generator string `json:"generator"`
	ToolName  string `json:"tool_name"`
}

// ToolCreatedData는 tool_created payload입니다.
type ToolCreatedData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TextResponseData는 text_response payload입니다.
type TextResponseData struct {
	Generator string `json:"generator"`
	Response  string `json:"response"`
}

// KnowledgeChangeData는 knowledge_change payload입니다.
type KnowledgeChangeData struct {
	Name string  `json:"name"`
	From *string `json:"from"`
	To   *string `json:"to"`
}

// VariableChangeData는 variable_change payload입니다.
type VariableChangeData struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ModeChangeData는 mode_change payload입니다.
type ModeChangeData struct {
	From models.Mode `json:"from"`
	To   models.Mode `json:"to"`
}

// TaskStatusData는 task_complete, task_failed payload입니다.
type TaskStatusData struct {
	Actor  string  `json:"actor"`
	Reason *string `json:"reason"`
}

// FlowCompleteData는 flow_complete payload입니다.
type FlowCompleteData struct {
	Steps int             `json:"steps"`
	Usage models.Usage    `json:"usage"`
	State models.Snapshot `json:"state"`
}

// ErrorData는 error payload입니다.
type ErrorData struct {
	AgentName string `json:"agent_name"`
	Error     string `json:"error"`
}
