// Package namespaces는 agent 정의의 using 항목으로 불러오는 기본 도구 묶음을 제공합니다.
package namespaces

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"go.uber.org/zap"
)

// ThoughtsKnowledge는 think 도구가 기록하는 knowledge 이름입니다.
const ThoughtsKnowledge = "thoughts"

// Namespace는 하나의 도구 묶음입니다.
type Namespace struct {
	Name        string
	Description string
	build       func(rt *state.Runtime, logger *zap.Logger) []tooling.Tool
}

var registry = map[string]Namespace{
	"task": {
		Name:        "task",
		Description: "Let the agent autonomously set the task as complete or failed.",
		build:       taskTools,
	},
	"reasoning": {
		Name:        "reasoning",
		Description: "Simulates the reasoning process at runtime.",
		build:       reasoningTools,
	},
	"time": {
		Name:        "time",
		Description: "Provides tools for getting the current date and time and waiting for a given number of seconds.",
		build:       timeTools,
	},
	"anytool": {
		Name:        "anytool",
		Description: "Let the agent create its own tools as templated shell commands.",
		build:       anyTools,
	},
}

// Names는 사용 가능한 namespace 이름을 정렬해 반환합니다.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get은 이름으로 namespace를 찾습니다.
func Get(name string) (Namespace, bool) {
	ns, ok := registry[name]
	return ns, ok
}

// Load는 using 목록의 namespace 도구를 runtime에 연결해 반환합니다.
func Load(names []string, rt *state.Runtime, logger *zap.Logger) ([]tooling.Tool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var tools []tooling.Tool
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		seen[name] = true

		ns, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("namespaces: unknown namespace %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		tools = append(tools, ns.build(rt, logger.With(zap.String("namespace", name)))...)
	}
	return tools, nil
}

type taskCompleteParams struct {
	Reason *string `json:"reason,omitempty" jsonschema:"description=Optional reason why the task is complete or report of conclusive information."`
}

type taskFailedParams struct {
	Reason string `json:"reason" jsonschema:"required,description=The reason why the task is impossible"`
}

func taskTools(rt *state.Runtime, _ *zap.Logger) []tooling.Tool {
	return []tooling.Tool{
		tooling.NewTextFunc("task_complete_success",
			"When your objective has been reached use this tool to set the task as complete.",
			func(_ context.Context, p taskCompleteParams) (string, error) {
				rt.SetTaskComplete(p.Reason)
				return "", nil
			}),
		tooling.NewTextFunc("task_failed",
			"Use this tool if you determine that the given goal or task is impossible given the information you have.",
			func(_ context.Context, p taskFailedParams) (string, error) {
				rt.SetTaskFailed(p.Reason)
				return "", nil
			}),
	}
}

type thinkParams struct {
	Thought string `json:"thought" jsonschema:"required,description=A thought to think about"`
}

const thinkDescription = `Adhere strictly to this reasoning framework, ensuring thoroughness, precision, and logical rigor.

## Problem Decomposition

Break the query into discrete, sequential steps.
Explicitly state assumptions and context.

## Stepwise Analysis

Address each step individually.
Explain the rationale, principles, or rules applied (e.g., mathematical laws, linguistic conventions).
Use examples, analogies, or intermediate calculations to illustrate reasoning.

## Validation & Error Checking

Verify logical consistency at each step.
Flag potential oversights, contradictions, or edge cases.
Confirm numerical accuracy (e.g., recompute calculations).

## Synthesis & Conclusion

Integrate validated steps into a coherent solution.
Summarize key insights and ensure the conclusion directly addresses the original query.`

func reasoningTools(rt *state.Runtime, _ *zap.Logger) []tooling.Tool {
	return []tooling.Tool{
		tooling.NewTextFunc("think", thinkDescription, func(_ context.Context, p thinkParams) (string, error) {
			rt.AppendToKnowledge(ThoughtsKnowledge, p.Thought)
			return "", nil
		}),
		tooling.NewTextFunc("clear_thoughts",
			"If the reasoning process proved wrong, inconsistent or ineffective, clear your thoughts and start again.",
			func(context.Context, tooling.NoArgs) (string, error) {
				rt.ClearKnowledge(ThoughtsKnowledge)
				return "", nil
			}),
	}
}

type waitParams struct {
	Seconds int `json:"seconds" jsonschema:"required,description=The number of seconds to wait"`
}

func timeTools(_ *state.Runtime, _ *zap.Logger) []tooling.Tool {
	return []tooling.Tool{
		tooling.NewTextFunc("current_time_and_date", "Get the current date and time.",
			func(context.Context, tooling.NoArgs) (string, error) {
				return time.Now().Format("15:04PM MST on Jan 02, 2006"), nil
			}),
		tooling.NewTextFunc("wait", "Wait for a given number of seconds.",
			func(ctx context.Context, p waitParams) (string, error) {
				if p.Seconds <= 0 {
					return "", nil
				}
				timer := time.NewTimer(time.Duration(p.Seconds) * time.Second)
				defer timer.Stop()
				select {
				case <-timer.C:
					return "", nil
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}),
	}
}

type createToolParams struct {
	Name        string             `json:"name" jsonschema:"required,description=The name of the new tool"`
	Description string             `json:"description" jsonschema:"required,description=What the tool does and when to use it"`
	Arguments   []tooling.Argument `json:"arguments,omitempty" jsonschema:"description=Arguments referenced in the command as {{ name }} placeholders"`
	Command     string             `json:"tool" jsonschema:"required,description=Shell command template; placeholders are replaced by the shell-quoted argument values,example=curl -s {{ url }}"`
}

func anyTools(rt *state.Runtime, logger *zap.Logger) []tooling.Tool {
	return []tooling.Tool{
		tooling.NewTextFunc("create_tool",
			"Create a new tool or redefine an existing one by defining it as a templated shell command. Use this tool to implement the missing functionalities you need to perform your task.",
			func(_ context.Context, p createToolParams) (string, error) {
				for _, t := range rt.Tools() {
					if t.Name() == p.Name {
						return "", fmt.Errorf("tool %s already exists and can not be redefined", p.Name)
					}
				}
				tool, err := tooling.NewCommandTool(tooling.CommandSpec{
					Name:        p.Name,
					Description: p.Description,
					Arguments:   p.Arguments,
					Command:     p.Command,
				}, tooling.WithCommandLogger(logger), tooling.WithCompleter(rt))
				if err != nil {
					return "", err
				}
				logger.Debug("creating tool", zap.String("tool", p.Name))
				rt.SetExtraTool(tool)
				return fmt.Sprintf("tool %s created", p.Name), nil
			}),
	}
}
