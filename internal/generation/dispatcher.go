package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"go.uber.org/zap"
)

// Dispatch는 모델이 요청한 도구 호출 하나를 실행하고 대화에 추가할 메시지를 반환합니다.
// 도구는 static toolset에서 먼저 찾고, 없으면 extra에서 찾습니다.
func (e *Engine) Dispatch(ctx context.Context, callID, toolName, rawArgs string, extra map[string]tooling.Tool) []models.Message {
	tool, ok := e.tools.Get(toolName)
	if !ok {
		tool, ok = extra[toolName]
	}
	if !ok {
		e.rt.RecordEvent(eventlog.UnknownTool, eventlog.UnknownToolData{
			Generator: e.generatorID,
			ToolName:  toolName,
		})
		return []models.Message{toolMessage(callID, toolName, fmt.Sprintf("The tool %s is not available.", toolName))}
	}

	args := strings.TrimSpace(rawArgs)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return e.toolFailure(callID, toolName, json.RawMessage(`{}`), fmt.Errorf("invalid JSON arguments: %s", rawArgs))
	}
	rawJSON := json.RawMessage(args)

	e.rt.RecordEvent(eventlog.BeforeToolCalled, eventlog.BeforeToolCalledData{Name: toolName, Args: rawJSON})

	startedAt := eventlog.Now()
	result, err := safeInvoke(ctx, tool, rawJSON)
	finishedAt := eventlog.Now()

	called := eventlog.ToolCalledData{
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Name:       toolName,
		Args:       rawJSON,
	}
	if err != nil {
		msg := err.Error()
		called.Result = fmt.Sprintf("ERROR in %s: %s", toolName, msg)
		called.Error = &msg
		e.rt.RecordEvent(eventlog.ToolCalled, called)
		return e.toolFailure(callID, toolName, rawJSON, err)
	}
	called.Result = result.Value()
	e.rt.RecordEvent(eventlog.ToolCalled, called)

	if result.IsMedia() {
		return []models.Message{
			toolMessage(callID, toolName, ""),
			{
				Role: models.RoleUser,
				Parts: []models.ContentPart{
					models.TextPart(fmt.Sprintf("%s returned the following response:", toolName)),
					*result.Media,
				},
			},
		}
	}
	return []models.Message{toolMessage(callID, toolName, result.Text)}
}

func (e *Engine) toolFailure(callID, toolName string, args json.RawMessage, err error) []models.Message {
	e.logger.Warn("도구 실행 실패", zap.String("tool", toolName), zap.Error(err))
	e.rt.RecordEvent(eventlog.ToolError, eventlog.ToolErrorData{
		Generator: e.generatorID,
		ToolName:  toolName,
		Args:      args,
		Error:     err.Error(),
	})
	return []models.Message{toolMessage(callID, toolName, fmt.Sprintf("ERROR while executing tool %s: %v", toolName, err))}
}

// safeInvoke는 도구의 panic을 에러로 변환합니다.
func safeInvoke(ctx context.Context, tool tooling.Tool, args json.RawMessage) (result tooling.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Invoke(ctx, args)
}

func toolMessage(callID, name, content string) models.Message {
	return models.Message{
		Role:       models.RoleTool,
		ToolCallID: callID,
		Name:       name,
		Content:    content,
	}
}
