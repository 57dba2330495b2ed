package tooling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// funcTool은 Go 함수를 Tool로 감쌉니다.
type funcTool struct {
	name        string
	description string
	schema      json.RawMessage
	invoke      func(context.Context, json.RawMessage) (Result, error)
}

func (f *funcTool) Name() string            { return f.name }
func (f *funcTool) Description() string     { return f.description }
func (f *funcTool) Schema() json.RawMessage { return f.schema }

func (f *funcTool) Invoke(ctx context.Context, args json.RawMessage) (Result, error) {
	return f.invoke(ctx, args)
}

// NewFunc는 타입이 지정된 핸들러를 Tool로 등록합니다.
// T는 json, jsonschema 태그가 달린 struct여야 합니다.
//
//	type EchoParams struct {
//	    X string `json:"x" jsonschema:"required,description=Text to echo"`
//	}
//
//	echo := tooling.NewFunc("echo", "Echo the input",
//	    func(ctx context.Context, p EchoParams) (tooling.Result, error) {
//	        return tooling.TextResult(p.X), nil
//	    })
func NewFunc[T any](name, description string, handler func(context.Context, T) (Result, error)) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      generateSchema[T](),
		invoke: func(ctx context.Context, args json.RawMessage) (Result, error) {
			var params T
			if len(args) > 0 {
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("invalid arguments for tool %s: %w", name, err)
				}
			}
			return handler(ctx, params)
		},
	}
}

// NewTextFunc는 문자열을 반환하는 핸들러용 NewFunc입니다.
func NewTextFunc[T any](name, description string, handler func(context.Context, T) (string, error)) Tool {
	return NewFunc(name, description, func(ctx context.Context, params T) (Result, error) {
		out, err := handler(ctx, params)
		if err != nil {
			return Result{}, err
		}
		return TextResult(out), nil
	})
}

// NoArgs는 인자가 없는 도구에 사용합니다.
type NoArgs struct{}

func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}

	var zero T
	schema := reflector.Reflect(zero)
	schema.Version = ""

	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return b
}
