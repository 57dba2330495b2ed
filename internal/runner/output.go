package runner

import (
	"strings"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
)

// NoOutputMessage는 이벤트와 출력이 모두 비어 있을 때의 결과입니다.
const NoOutputMessage = "the tool did not write any output"

// Output은 자식 프로세스 실행 결과입니다.
type Output struct {
	GeneratedAt float64          `json:"generated_at"`
	CommandLine []string         `json:"command_line"`
	ExitCode    int              `json:"exit_code"`
	Stdout      []string         `json:"stdout"`
	Stderr      []string         `json:"stderr"`
	Events      []eventlog.Event `json:"events"`
	Output      map[string]any   `json:"output"`
	TaskSuccess bool             `json:"task_success"`
	Steps       int              `json:"steps"`
	// Time은 첫 이벤트부터 flow_complete까지의 초입니다.
	Time  float64      `json:"time"`
	Usage models.Usage `json:"usage"`
}

// ParsedEvents는 이벤트 목록에서 복원한 결과입니다. Output이 nil이면 결과를 찾지 못한 것입니다.
type ParsedEvents struct {
	Output      map[string]any
	TaskSuccess bool
	Steps       int
	Time        float64
	Usage       models.Usage
}

// ParseEvents는 timestamp 순으로 정렬된 이벤트에서 결과를 복원합니다.
//
// 우선순위는 다음과 같습니다.
//  1. 마지막 task_complete (성공)
//  2. 마지막 task_failed
//  3. 마지막 flow_complete의 변수 중 inputs에 없는 것
//  4. 가장 최근의 text_response 또는 tool_called
//
// 뒤에 오는 이벤트가 앞의 단계보다 나중에 기록되었더라도 이 순서를 따릅니다.
func ParseEvents(inputs map[string]string, events []eventlog.Event) ParsedEvents {
	var parsed ParsedEvents
	if len(events) == 0 {
		return parsed
	}
	startedAt := events[0].Timestamp

	flowComplete, hasFlowComplete := lastEvent(events, eventlog.FlowComplete)
	var flowData eventlog.FlowCompleteData
	if hasFlowComplete {
		_ = flowComplete.Decode(&flowData)
		parsed.Steps = flowData.Steps
		parsed.Usage = flowData.Usage
		parsed.Time = flowComplete.Timestamp - startedAt
	}

	if ev, ok := lastEvent(events, eventlog.TaskComplete); ok {
		parsed.Output = taskOutput(ev)
		parsed.TaskSuccess = true
		return parsed
	}
	if ev, ok := lastEvent(events, eventlog.TaskFailed); ok {
		parsed.Output = taskOutput(ev)
		return parsed
	}

	if hasFlowComplete {
		out := make(map[string]any)
		for name, value := range flowData.State.Variables {
			if _, isInput := inputs[name]; !isInput {
				out[name] = value
			}
		}
		parsed.Output = out
		return parsed
	}

	for i := len(events) - 1; i >= 0; i-- {
		switch events[i].Name {
		case eventlog.TextResponse:
			var data eventlog.TextResponseData
			_ = events[i].Decode(&data)
			parsed.Output = map[string]any{"response": data.Response}
			return parsed
		case eventlog.ToolCalled:
			var data eventlog.ToolCalledData
			_ = events[i].Decode(&data)
			parsed.Output = map[string]any{"output": data.Result}
			return parsed
		}
	}
	return parsed
}

// taskOutput은 reason이 있으면 {"reason": reason}, 없으면 payload 전체를 반환합니다.
func taskOutput(ev eventlog.Event) map[string]any {
	var data map[string]any
	_ = ev.Decode(&data)
	if data == nil {
		data = map[string]any{}
	}
	if reason, ok := data["reason"]; ok && truthy(reason) {
		return map[string]any{"reason": reason}
	}
	return data
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	return true
}

func lastEvent(events []eventlog.Event, name string) (eventlog.Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Name == name {
			return events[i], true
		}
	}
	return eventlog.Event{}, false
}

// fallbackOutput은 이벤트에서 결과를 찾지 못했을 때 stderr, stdout 순으로 사용합니다.
func fallbackOutput(stdout, stderr []string) map[string]any {
	switch {
	case len(stderr) > 0:
		return map[string]any{"output": strings.Join(stderr, "\n")}
	case len(stdout) > 0:
		return map[string]any{"output": strings.Join(stdout, "\n")}
	default:
		return map[string]any{"output": NoOutputMessage}
	}
}
