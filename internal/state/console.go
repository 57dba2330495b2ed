package state

import (
	"github.com/cnap-oss/actorflow/internal/eventlog"
	"go.uber.org/zap"
)

// ConsoleListener는 주요 이벤트를 zap logger로 출력하는 Listener를 반환합니다.
// 실행 중 출력과 trace replay 양쪽에서 사용합니다.
func ConsoleListener(logger *zap.Logger) Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ev eventlog.Event) {
		LogEvent(logger, ev)
	}
}

// LogEvent는 이벤트 하나를 사람이 읽기 좋은 형태로 기록합니다.
func LogEvent(logger *zap.Logger, ev eventlog.Event) {
	switch ev.Name {
	case eventlog.FlowStarted:
		var d eventlog.FlowStartedData
		if ev.Decode(&d) == nil {
			fields := []zap.Field{zap.Strings("actors", d.Actors), zap.Int("max_steps", d.MaxSteps), zap.Float64("max_cost", d.MaxCost)}
			if d.Timeout != nil {
				fields = append(fields, zap.Float64("timeout_sec", *d.Timeout))
			}
			logger.Info("flow started", fields...)
		}

	case eventlog.AgentCreated:
		var d eventlog.AgentCreatedData
		if ev.Decode(&d) == nil {
			logger.Info("agent created", zap.String("agent", d.Agent), zap.String("generator", d.Generator))
		}

	case eventlog.BeforeToolCalled:
		var d eventlog.BeforeToolCalledData
		if ev.Decode(&d) == nil {
			logger.Debug("calling tool", zap.String("tool", d.Name), zap.ByteString("args", d.Args))
		}

	case eventlog.ToolCalled:
		var d eventlog.ToolCalledData
		if ev.Decode(&d) == nil {
			fields := []zap.Field{
				zap.String("tool", d.Name),
				zap.ByteString("args", d.Args),
				zap.Float64("elapsed_sec", d.FinishedAt-d.StartedAt),
			}
			if s, ok := d.Result.(string); ok {
				fields = append(fields, zap.Int("result_bytes", len(s)))
			}
			logger.Info("tool called", fields...)
		}

	case eventlog.TaskComplete:
		var d eventlog.TaskStatusData
		if ev.Decode(&d) == nil {
			fields := []zap.Field{zap.String("actor", d.Actor)}
			if d.Reason != nil && *d.Reason != "" {
				fields = append(fields, zap.String("reason", *d.Reason))
			}
			logger.Info("task completed", fields...)
		}

	case eventlog.TaskFailed:
		var d eventlog.TaskStatusData
		if ev.Decode(&d) == nil {
			reason := ""
			if d.Reason != nil {
				reason = *d.Reason
			}
			logger.Error("task failed", zap.String("actor", d.Actor), zap.String("reason", reason))
		}

	case eventlog.ToolCreated:
		var d eventlog.ToolCreatedData
		if ev.Decode(&d) == nil {
			logger.Info("registered tool", zap.String("tool", d.Name))
		}

	case eventlog.UnknownTool:
		var d eventlog.UnknownToolData
		if ev.Decode(&d) == nil {
			logger.Warn("model called unknown tool", zap.String("tool", d.ToolName))
		}

	case eventlog.ToolError:
		var d eventlog.ToolErrorData
		if ev.Decode(&d) == nil {
			logger.Warn("tool error", zap.String("tool", d.ToolName), zap.String("error", d.Error))
		}

	case eventlog.TextResponse:
		var d eventlog.TextResponseData
		if ev.Decode(&d) == nil {
			logger.Info("text response", zap.String("generator", d.Generator), zap.String("response", d.Response))
		}

	case eventlog.StepStarted, eventlog.StepComplete:
		var d eventlog.StepData
		if ev.Decode(&d) == nil {
			logger.Debug(ev.Name, zap.Int("step", d.Step), zap.Int("total_tokens", d.TokenUsage.TotalTokens))
		}

	case eventlog.FlowComplete:
		var d eventlog.FlowCompleteData
		if ev.Decode(&d) == nil {
			logger.Info("flow complete",
				zap.Int("steps", d.Steps),
				zap.Int("total_tokens", d.Usage.TotalTokens),
				zap.Float64("cost", d.Usage.CostValue()),
				zap.String("status", string(d.State.CurrentTask.Status)),
			)
		}

	case eventlog.Error:
		var d eventlog.ErrorData
		if ev.Decode(&d) == nil {
			logger.Error("agent error", zap.String("agent", d.AgentName), zap.String("error", d.Error))
		}

	default:
		logger.Debug(ev.Name, zap.ByteString("data", ev.Data))
	}
}
