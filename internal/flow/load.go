package flow

import (
	"fmt"
	"time"

	"github.com/cnap-oss/actorflow/internal/generation"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/cnap-oss/actorflow/internal/window"
	"go.uber.org/zap"
)

// LoadOptions는 경로에서 flow를 만들 때 사용하는 설정입니다.
type LoadOptions struct {
	GeneratorID   string
	Window        window.Strategy
	NewGenerator  GeneratorFactory
	EngineOptions []generation.EngineOption
	// Limits는 명시적으로 지정된 제한입니다. nil 필드만 정의의 limits, DefaultLimits 순으로 채워지며
	// 명시적인 0은 제한 없음으로 유지됩니다.
	Limits        *LimitsSpec
	DefaultLimits Limits
	// Task가 있으면 단일 agent 정의의 task를 대체합니다.
	Task          string
	Logger        *zap.Logger
}

// Load는 agent 정의 또는 workflow 경로에서 Flow를 만듭니다.
// workflow이면 각 actor 정의를 같은 디렉토리에서 찾습니다.
func Load(rt *state.Runtime, path string, opts LoadOptions) (*Flow, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		actors   []*Actor
		workflow *Workflow
		limits   = opts.DefaultLimits
	)
	if IsWorkflow(path) {
		if opts.Task != "" {
			logger.Warn("task override ignored for workflow", zap.String("path", path))
		}
		w, err := LoadWorkflow(path)
		if err != nil {
			return nil, err
		}
		workflow = w
		for _, wa := range w.Actors {
			def, err := LoadDefinition(w.ActorPath(wa.Name))
			if err != nil {
				return nil, fmt.Errorf("flow: actor %s: %w", wa.Name, err)
			}
			generatorID := wa.Generator
			if generatorID == "" {
				generatorID = opts.GeneratorID
			}
			actor, err := BuildActor(rt, ActorConfig{
				Name:          wa.Name,
				Definition:    def,
				GeneratorID:   generatorID,
				Window:        opts.Window,
				NewGenerator:  opts.NewGenerator,
				EngineOptions: opts.EngineOptions,
				Logger:        logger.Named(wa.Name),
			})
			if err != nil {
				return nil, err
			}
			actors = append(actors, actor)
		}
	} else {
		def, err := LoadDefinition(path)
		if err != nil {
			return nil, err
		}
		if opts.Task != "" {
			def.Task = opts.Task
		}
		actor, err := BuildActor(rt, ActorConfig{
			Definition:    def,
			GeneratorID:   opts.GeneratorID,
			Window:        opts.Window,
			NewGenerator:  opts.NewGenerator,
			EngineOptions: opts.EngineOptions,
			Logger:        logger.Named(def.Name()),
		})
		if err != nil {
			return nil, err
		}
		actors = append(actors, actor)
		limits = limits.Apply(def.Limits)
	}

	return New(rt, actors, limits.Apply(opts.Limits), WithLogger(logger), WithWorkflow(workflow))
}

// Apply는 spec에 지정된 필드로 l을 덮어씁니다. nil 필드는 l의 값을 유지합니다.
func (l Limits) Apply(spec *LimitsSpec) Limits {
	if spec == nil {
		return l
	}
	if spec.MaxSteps != nil {
		l.MaxSteps = *spec.MaxSteps
	}
	if spec.MaxCost != nil {
		l.MaxCost = *spec.MaxCost
	}
	if spec.Timeout != nil {
		l.Timeout = time.Duration(*spec.Timeout) * time.Second
	}
	return l
}
