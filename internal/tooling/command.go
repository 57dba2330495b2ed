package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"
)

// Argument는 명령 도구의 인자 정의입니다.
type Argument struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Example     string `yaml:"example,omitempty" json:"example,omitempty"`
}

// CommandSpec은 템플릿 명령으로 정의된 도구입니다.
// Command의 {{ name }} 자리는 shell-quote된 인자 값으로 치환됩니다.
type CommandSpec struct {
	Name         string     `yaml:"name" json:"name"`
	Description  string     `yaml:"description" json:"description"`
	Arguments    []Argument `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Command      string     `yaml:"tool" json:"tool"`
	CompleteTask bool       `yaml:"complete_task,omitempty" json:"complete_task,omitempty"`
	Print        bool       `yaml:"print,omitempty" json:"print,omitempty"`
	Mime         string     `yaml:"mime,omitempty" json:"mime,omitempty"`
}

// TaskCompleter는 complete_task 도구가 작업 완료를 알리는 대상입니다.
type TaskCompleter interface {
	SetTaskComplete(reason *string)
}

// CommandTool은 CommandSpec을 sh -c로 실행합니다.
type CommandTool struct {
	spec       CommandSpec
	schema     json.RawMessage
	workingDir string
	completer  TaskCompleter
	logger     *zap.Logger
}

// CommandOption은 CommandTool 옵션입니다.
type CommandOption func(*CommandTool)

// WithWorkingDir은 명령 실행 디렉토리를 지정합니다.
func WithWorkingDir(dir string) CommandOption {
	return func(c *CommandTool) {
		c.workingDir = dir
	}
}

// WithCompleter는 complete_task 대상을 지정합니다.
func WithCompleter(completer TaskCompleter) CommandOption {
	return func(c *CommandTool) {
		c.completer = completer
	}
}

// WithCommandLogger는 logger를 지정합니다.
func WithCommandLogger(logger *zap.Logger) CommandOption {
	return func(c *CommandTool) {
		c.logger = logger
	}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// NewCommandTool은 CommandSpec을 검증하고 도구를 만듭니다.
func NewCommandTool(spec CommandSpec, opts ...CommandOption) (*CommandTool, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("tooling: command tool without name")
	}
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("tooling: tool %s has no command", spec.Name)
	}
	if spec.Mime != "" && !strings.HasPrefix(spec.Mime, "image/") {
		return nil, fmt.Errorf("tooling: tool %s references an unsupported mime type: %s", spec.Name, spec.Mime)
	}

	declared := make(map[string]bool, len(spec.Arguments))
	for _, arg := range spec.Arguments {
		declared[arg.Name] = true
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(spec.Command, -1) {
		if !declared[m[1]] {
			return nil, fmt.Errorf("tooling: tool %s references undeclared argument %q", spec.Name, m[1])
		}
	}

	schema, err := commandSchema(spec.Arguments)
	if err != nil {
		return nil, err
	}

	c := &CommandTool{
		spec:   spec,
		schema: schema,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func commandSchema(args []Argument) (json.RawMessage, error) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, arg := range args {
		prop := &jsonschema.Schema{
			Type:        "string",
			Description: arg.Description,
		}
		if arg.Example != "" {
			prop.Examples = []any{arg.Example}
		}
		schema.Properties.Set(arg.Name, prop)
		schema.Required = append(schema.Required, arg.Name)
	}
	return json.Marshal(schema)
}

func (c *CommandTool) Name() string            { return c.spec.Name }
func (c *CommandTool) Description() string     { return c.spec.Description }
func (c *CommandTool) Schema() json.RawMessage { return c.schema }

// Spec은 도구 정의를 반환합니다.
func (c *CommandTool) Spec() CommandSpec {
	return c.spec
}

// Render는 인자를 치환한 shell 명령을 반환합니다.
func (c *CommandTool) Render(args map[string]any) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(c.spec.Command, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := args[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return shellQuote(fmt.Sprint(v))
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing arguments: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Invoke는 명령을 실행하고 stdout을 결과로 반환합니다.
func (c *CommandTool) Invoke(ctx context.Context, raw json.RawMessage) (Result, error) {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Result{}, fmt.Errorf("invalid arguments for tool %s: %w", c.spec.Name, err)
		}
	}

	script, err := c.Render(args)
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = c.workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("도구 명령 실행", zap.String("tool", c.spec.Name), zap.String("command", script))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return Result{}, fmt.Errorf("%w: %s", err, msg)
		}
		return Result{}, err
	}

	if c.spec.Mime != "" {
		return ImageResult(stdout.Bytes(), c.spec.Mime), nil
	}

	result := BytesResult(stdout.Bytes())
	if c.spec.Print {
		c.logger.Info(result.Text, zap.String("tool", c.spec.Name))
	}
	if c.spec.CompleteTask && c.completer != nil {
		reason := strings.TrimSpace(result.Text)
		if reason == "" {
			c.completer.SetTaskComplete(nil)
		} else {
			c.completer.SetTaskComplete(&reason)
		}
	}
	return result, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
