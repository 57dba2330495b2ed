package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/state"
	"go.uber.org/zap"
)

// ErrNoActors는 actor 없이 flow를 만들 때 반환됩니다.
var ErrNoActors = errors.New("flow: no actors")

// Limits는 flow 실행 제한입니다. 0이면 제한이 없습니다.
type Limits struct {
	MaxSteps int
	MaxCost  float64
	Timeout  time.Duration
}

// Flow는 actor를 순서대로 실행하는 상태 기계입니다.
// 하나의 Runtime에는 동시에 하나의 Flow만 존재할 수 있습니다.
type Flow struct {
	rt       *state.Runtime
	actors   []*Actor
	limits   Limits
	workflow *Workflow

	cursor    int
	currStep  int
	usage     models.Usage
	startedAt time.Time
	closed    bool

	now    func() time.Time
	logger *zap.Logger
}

// Option은 Flow 설정 함수입니다.
type Option func(*Flow)

// WithLogger는 logger를 설정합니다.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithClock은 timeout 계산에 사용할 시계를 설정합니다.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// WithWorkflow는 flow가 만들어진 workflow 정의를 기록합니다.
func WithWorkflow(w *Workflow) Option {
	return func(f *Flow) {
		f.workflow = w
	}
}

// New는 새 Flow를 생성합니다. runtime에 이미 활성 flow가 있으면 state.ErrFlowActive를 반환합니다.
func New(rt *state.Runtime, actors []*Actor, limits Limits, opts ...Option) (*Flow, error) {
	if len(actors) == 0 {
		return nil, ErrNoActors
	}
	if err := rt.AcquireFlow(); err != nil {
		return nil, err
	}

	f := &Flow{
		rt:     rt,
		actors: actors,
		limits: limits,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f, nil
}

// Close는 runtime의 flow 등록을 해제합니다.
func (f *Flow) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.rt.ReleaseFlow()
}

// Actors는 flow의 actor 목록을 반환합니다.
func (f *Flow) Actors() []*Actor {
	return append([]*Actor(nil), f.actors...)
}

// Workflow는 workflow 정의를 반환합니다. 단일 agent이면 nil입니다.
func (f *Flow) Workflow() *Workflow {
	return f.workflow
}

// Steps는 지금까지 실행된 step 수를 반환합니다.
func (f *Flow) Steps() int {
	return f.currStep
}

// Usage는 누적 사용량을 반환합니다.
func (f *Flow) Usage() models.Usage {
	return f.usage
}

// CurrentActor는 실행 중인 actor를 반환합니다. 모두 끝났으면 nil입니다.
func (f *Flow) CurrentActor() *Actor {
	if f.cursor >= len(f.actors) {
		return nil
	}
	return f.actors[f.cursor]
}

// Done은 flow가 끝났는지 확인합니다.
// step, cost, 시간 제한을 넘으면 실행 중인 작업을 실패로 바꿉니다.
func (f *Flow) Done() bool {
	if f.cursor >= len(f.actors) {
		return true
	}
	if f.limits.MaxSteps > 0 && f.currStep > f.limits.MaxSteps {
		f.rt.OnMaxStepsReached()
		return true
	}
	if f.limits.MaxCost > 0 && f.usage.Cost != nil && *f.usage.Cost > f.limits.MaxCost {
		f.rt.OnMaxCostReached()
		return true
	}
	if f.limits.Timeout > 0 && !f.startedAt.IsZero() && f.now().Sub(f.startedAt) > f.limits.Timeout {
		f.rt.OnTimeout()
		return true
	}
	return false
}

// Step은 현재 actor를 한 번 실행합니다. 이미 끝난 flow에서는 아무것도 하지 않습니다.
// 반환되는 에러는 실행을 계속할 수 없는 경우뿐입니다.
func (f *Flow) Step(ctx context.Context) error {
	if f.startedAt.IsZero() {
		f.startedAt = f.now()
	}
	if f.Done() {
		return nil
	}

	actor := f.actors[f.cursor]
	f.rt.RecordEvent(eventlog.StepStarted, eventlog.StepData{Step: f.currStep, TokenUsage: f.usage})

	stepUsage, err := actor.Step(ctx)
	f.usage = f.usage.Add(stepUsage)
	f.rt.AddUsage(stepUsage)

	f.rt.RecordEvent(eventlog.StepComplete, eventlog.StepData{Step: f.currStep, TokenUsage: f.usage})
	if err != nil {
		return fmt.Errorf("actor %s: %w", actor.Name(), err)
	}

	if f.rt.IsActiveTaskDone() {
		f.logger.Debug("task complete", zap.String("actor", actor.Name()))
		f.cursor++
		f.rt.Reset()
	}

	f.currStep++
	return nil
}

// Run은 Done이 될 때까지 Step을 반복하고 flow_complete를 기록합니다.
func (f *Flow) Run(ctx context.Context) error {
	names := make([]string, 0, len(f.actors))
	for _, a := range f.actors {
		names = append(names, a.Name())
	}
	started := eventlog.FlowStartedData{
		Actors:   names,
		MaxSteps: f.limits.MaxSteps,
		MaxCost:  f.limits.MaxCost,
	}
	if f.limits.Timeout > 0 {
		secs := f.limits.Timeout.Seconds()
		started.Timeout = &secs
	}
	f.rt.RecordEvent(eventlog.FlowStarted, started)
	if f.startedAt.IsZero() {
		f.startedAt = f.now()
	}

	var runErr error
	for !f.Done() {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := f.Step(ctx); err != nil {
			runErr = err
			break
		}
	}

	f.rt.RecordEvent(eventlog.FlowComplete, eventlog.FlowCompleteData{
		Steps: f.currStep,
		Usage: f.usage,
		State: f.rt.AsDict(),
	})
	f.rt.WaitForListeners()
	return runErr
}
