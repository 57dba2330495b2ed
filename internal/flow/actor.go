// Package flow는 하나 이상의 actor를 순서대로 실행하는 상태 기계를 제공합니다.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"github.com/cnap-oss/actorflow/internal/tooling/namespaces"
	"github.com/cnap-oss/actorflow/internal/window"
	"go.uber.org/zap"
)

// GeneratorFactory는 generator ID로 Generator를 생성합니다.
type GeneratorFactory func(id string) (generation.Generator, error)

// ActorConfig는 BuildActor 설정입니다.
type ActorConfig struct {
	// Name이 비어 있으면 Definition.Name()을 사용합니다.
	Name       string
	Definition *Definition
	// GeneratorID는 정의에 generator가 없을 때 사용합니다.
	GeneratorID   string
	Window        window.Strategy
	NewGenerator  GeneratorFactory
	EngineOptions []generation.EngineOption
	Logger        *zap.Logger
}

// Actor는 flow에 참여하는 agent 인스턴스입니다.
type Actor struct {
	name        string
	generatorID string
	def         *Definition
	task        string
	tools       *tooling.Toolset
	engine      *generation.Engine
	rt          *state.Runtime

	extraMessage *string
	logger       *zap.Logger
}

// BuildActor는 정의에서 도구와 generator를 구성해 Actor를 생성하고 agent_created를 기록합니다.
func BuildActor(rt *state.Runtime, cfg ActorConfig) (*Actor, error) {
	if cfg.Definition == nil {
		return nil, errors.New("flow: actor without definition")
	}
	if cfg.NewGenerator == nil {
		return nil, errors.New("flow: no generator factory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	def := cfg.Definition
	name := cfg.Name
	if name == "" {
		name = def.Name()
	}
	generatorID := def.Generator
	if generatorID == "" {
		generatorID = cfg.GeneratorID
	}
	if generatorID == "" {
		return nil, fmt.Errorf("flow: actor %s has no generator", name)
	}

	tools, err := namespaces.Load(def.Using, rt, logger)
	if err != nil {
		return nil, fmt.Errorf("flow: actor %s: %w", name, err)
	}
	for _, spec := range def.Tools {
		tool, err := tooling.NewCommandTool(spec,
			tooling.WithWorkingDir(def.WorkingDir),
			tooling.WithCompleter(rt),
			tooling.WithCommandLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("flow: actor %s: %w", name, err)
		}
		tools = append(tools, tool)
	}
	for _, spec := range def.Remote {
		tool, err := tooling.NewRemoteTool(spec, tooling.WithRemoteLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("flow: actor %s: %w", name, err)
		}
		tools = append(tools, tool)
	}
	toolset, err := tooling.NewToolset(tools...)
	if err != nil {
		return nil, fmt.Errorf("flow: actor %s: %w", name, err)
	}

	gen, err := cfg.NewGenerator(generatorID)
	if err != nil {
		return nil, fmt.Errorf("flow: actor %s: %w", name, err)
	}

	opts := append([]generation.EngineOption{generation.WithEngineLogger(logger)}, cfg.EngineOptions...)
	a := &Actor{
		name:        name,
		generatorID: generatorID,
		def:         def,
		task:        def.Task,
		tools:       toolset,
		engine:      generation.NewEngine(rt, generatorID, gen, toolset, cfg.Window, opts...),
		rt:          rt,
		logger:      logger.With(zap.String("actor", name)),
	}

	rt.RecordEvent(eventlog.AgentCreated, eventlog.AgentCreatedData{Agent: name, Generator: generatorID})
	return a, nil
}

// Name은 actor 이름을 반환합니다.
func (a *Actor) Name() string { return a.name }

// GeneratorID는 generator ID를 반환합니다.
func (a *Actor) GeneratorID() string { return a.generatorID }

// Definition은 actor 정의를 반환합니다.
func (a *Actor) Definition() *Definition { return a.def }

// Tools는 static toolset을 반환합니다.
func (a *Actor) Tools() *tooling.Toolset { return a.tools }

// Engine은 generation engine을 반환합니다.
func (a *Actor) Engine() *generation.Engine { return a.engine }

// AddExtraMessage는 다음 step에 한 번만 추가할 사용자 메시지를 등록합니다.
func (a *Actor) AddExtraMessage(msg string) {
	a.extraMessage = &msg
}

// activate는 이 actor의 defaults와 도구를 runtime에 등록하고 task_started를 기록합니다.
func (a *Actor) activate() {
	a.rt.SetDefaults(a.def.DefaultValues())
	a.rt.SetTools(a.tools.Tools())
	a.rt.OnTaskStarted(a.name)
}

// SystemPrompt는 agent prompt에 knowledge 섹션을 붙여 보간합니다. agent prompt가 없으면 nil입니다.
func (a *Actor) SystemPrompt() (*string, error) {
	if a.def.Agent == "" {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(a.def.Agent)

	knowledge := a.rt.Knowledge()
	names := make([]string, 0, len(knowledge))
	for name := range knowledge {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n\n## %s\n\n%s", capitalize(name), knowledge[name])
	}

	out, err := a.rt.Interpolate(b.String(), nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Prompt는 task prompt를 보간합니다. task가 없으면 사용자에게 묻습니다.
func (a *Actor) Prompt() (string, error) {
	if a.task == "" {
		task, err := a.rt.OnUserInputNeeded("task", "Describe the task: ")
		if err != nil {
			return "", err
		}
		a.task = task
	}
	return a.rt.Interpolate(a.task, nil)
}

// Step은 prompt를 구성하고 engine을 한 번 실행합니다.
func (a *Actor) Step(ctx context.Context) (models.Usage, error) {
	if a.rt.CurrentActor() != a.name {
		a.activate()
	}

	usage, err := a.step(ctx)
	if err != nil {
		a.logger.Error("agent step 실패", zap.Error(err))
		a.rt.RecordEvent(eventlog.Error, eventlog.ErrorData{AgentName: a.name, Error: err.Error()})
	}
	return usage, err
}

func (a *Actor) step(ctx context.Context) (models.Usage, error) {
	systemPrompt, err := a.SystemPrompt()
	if err != nil {
		return models.Usage{}, err
	}
	prompt, err := a.Prompt()
	if err != nil {
		return models.Usage{}, err
	}
	extra := a.extraMessage
	a.extraMessage = nil

	a.rt.RecordEvent(eventlog.AgentStep, eventlog.AgentStepData{
		AgentName:    a.name,
		Generator:    a.generatorID,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
	})

	return a.engine.Step(ctx, systemPrompt, prompt, extra)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
