package flow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cnap-oss/actorflow/internal/tooling"
	"gopkg.in/yaml.v3"
)

// 정의 파일 이름
const (
	TaskFile     = "task.yml"
	AgentFile    = "agent.yml"
	WorkflowFile = "workflow.yml"
)

// LimitsSpec은 정의 파일에 선언된 실행 제한입니다. 값이 없으면 CLI 기본값을 사용합니다.
type LimitsSpec struct {
	MaxSteps *int     `yaml:"max_steps,omitempty"`
	MaxCost  *float64 `yaml:"max_cost,omitempty"`
	Timeout  *int     `yaml:"timeout,omitempty"` // seconds
}

// Definition은 agent 정의 파일(task.yml, agent.yml)입니다.
type Definition struct {
	Generator   string                `yaml:"generator,omitempty"`
	Description string                `yaml:"description,omitempty"`
	Agent       string                `yaml:"agent,omitempty"`
	Task        string                `yaml:"task,omitempty"`
	Defaults    map[string]any        `yaml:"defaults,omitempty"`
	Using       []string              `yaml:"using,omitempty"`
	Tools       []tooling.CommandSpec `yaml:"tools,omitempty"`
	Remote      []tooling.RemoteSpec  `yaml:"remote_tools,omitempty"`
	Limits      *LimitsSpec           `yaml:"limits,omitempty"`

	// Path는 정의를 읽은 파일이고 WorkingDir는 명령 도구가 실행되는 디렉토리입니다.
	Path       string `yaml:"-"`
	WorkingDir string `yaml:"-"`
}

// ParseDefinition은 YAML 문서를 Definition으로 변환합니다.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("flow: invalid agent definition: %w", err)
	}
	if def.Agent == "" && def.Task == "" && len(def.Tools) == 0 && len(def.Using) == 0 {
		return nil, errors.New("flow: agent definition has no agent, task or tools")
	}
	return &def, nil
}

// LoadDefinition은 파일 또는 task.yml/agent.yml을 담은 디렉토리에서 정의를 읽습니다.
func LoadDefinition(path string) (*Definition, error) {
	resolved, err := resolveDefinitionPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("flow: read %s: %w", resolved, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resolved, err)
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, err
	}
	def.Path = abs
	def.WorkingDir = filepath.Dir(abs)
	return def, nil
}

func resolveDefinitionPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("flow: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range []string{TaskFile, AgentFile} {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("flow: %s contains neither %s nor %s", path, TaskFile, AgentFile)
}

// Name은 actor 이름을 결정합니다. 파일 이름이 task나 agent이면 디렉토리 이름을 사용합니다.
func (d *Definition) Name() string {
	if d.Path == "" {
		return "agent"
	}
	stem := strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
	if stem == "task" || stem == "agent" {
		return filepath.Base(d.WorkingDir)
	}
	return stem
}

// DefaultValues는 defaults를 문자열 변수로 변환합니다.
func (d *Definition) DefaultValues() map[string]string {
	out := make(map[string]string, len(d.Defaults))
	for k, v := range d.Defaults {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// WorkflowActor는 workflow에 포함된 actor 하나입니다.
type WorkflowActor struct {
	Name      string
	Generator string
}

// Workflow는 순서대로 실행되는 actor 목록입니다.
type Workflow struct {
	Name        string
	Description string
	Actors      []WorkflowActor

	// Dir은 actor 정의 파일을 찾는 디렉토리입니다.
	Dir string
}

type workflowDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Actors      yaml.Node `yaml:"actors"`
}

// UnmarshalYAML은 actors 맵의 선언 순서를 보존합니다.
func (w *Workflow) UnmarshalYAML(node *yaml.Node) error {
	var doc workflowDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	if doc.Actors.Kind != yaml.MappingNode {
		return errors.New("actors must be a mapping of name to actor")
	}

	w.Name = doc.Name
	w.Description = doc.Description
	w.Actors = nil
	for i := 0; i+1 < len(doc.Actors.Content); i += 2 {
		var actor struct {
			Generator string `yaml:"generator"`
		}
		if err := doc.Actors.Content[i+1].Decode(&actor); err != nil {
			return fmt.Errorf("actor %s: %w", doc.Actors.Content[i].Value, err)
		}
		w.Actors = append(w.Actors, WorkflowActor{Name: doc.Actors.Content[i].Value, Generator: actor.Generator})
	}
	if len(w.Actors) == 0 {
		return errors.New("workflow has no actors")
	}
	return nil
}

// ParseWorkflow는 YAML 문서를 Workflow로 변환합니다.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("flow: invalid workflow: %w", err)
	}
	return &w, nil
}

// LoadWorkflow는 파일 또는 workflow.yml을 담은 디렉토리에서 workflow를 읽습니다.
func LoadWorkflow(path string) (*Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, WorkflowFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flow: read %s: %w", path, err)
	}
	w, err := ParseWorkflow(data)
	if err != nil {
		return nil, err
	}
	w.Dir = filepath.Dir(path)
	return w, nil
}

// IsWorkflow는 path가 workflow 정의인지 확인합니다.
func IsWorkflow(path string) bool {
	_, err := LoadWorkflow(path)
	return err == nil
}

// ActorPath는 actor 정의 파일 경로를 반환합니다. <name>.yml이 없으면 <name> 디렉토리를 사용합니다.
func (w *Workflow) ActorPath(name string) string {
	candidate := filepath.Join(w.Dir, name+".yml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return filepath.Join(w.Dir, name)
}
