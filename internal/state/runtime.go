// Package state는 한 프로세스에서 실행되는 agent의 공유 런타임 상태와 이벤트 로그를 관리합니다.
package state

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"go.uber.org/zap"
)

var (
	// ErrFlowActive는 같은 Runtime에서 두 번째 Flow를 만들려 할 때 반환됩니다.
	ErrFlowActive = errors.New("a flow is already running")
	// ErrMissingParameter는 automatic 모드에서 필요한 변수를 찾지 못했을 때 반환됩니다.
	ErrMissingParameter = errors.New("missing parameter")
)

// Listener는 기록된 이벤트를 비동기로 받습니다.
type Listener func(eventlog.Event)

// Runtime은 Flow 하나가 사용하는 상태 저장소와 이벤트 로그입니다.
// 상태 변경은 현재 step 중인 Actor만 수행합니다.
type Runtime struct {
	mu sync.RWMutex

	mode         models.Mode
	status       models.TaskStatus
	reason       *string
	variables    map[string]string
	defaults     map[string]string
	knowledge    map[string]string
	tools        []tooling.Tool
	extraTools   map[string]tooling.Tool
	usage        models.Usage
	currentActor string
	flowActive   bool

	logMu     sync.Mutex
	events    []eventlog.Event
	trace     *eventlog.Writer
	listeners []Listener
	pool      *workerPool

	poolWorkers int

	stdin     *bufio.Reader
	stdout    io.Writer
	lookupEnv func(string) (string, bool)
	logger    *zap.Logger
}

// Option은 Runtime 옵션입니다.
type Option func(*Runtime)

// WithLogger는 logger를 설정합니다.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithMode는 초기 실행 모드를 설정합니다.
func WithMode(mode models.Mode) Option {
	return func(r *Runtime) {
		r.mode = mode
	}
}

// WithIO는 interactive 입력에 사용할 stdin, stdout을 설정합니다.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *Runtime) {
		r.stdin = bufio.NewReader(in)
		r.stdout = out
	}
}

// WithEnvLookup은 환경 변수 조회 함수를 교체합니다(테스트용).
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(r *Runtime) {
		r.lookupEnv = fn
	}
}

// WithListenerWorkers는 listener worker pool 크기를 지정합니다.
func WithListenerWorkers(n int) Option {
	return func(r *Runtime) {
		r.poolWorkers = n
	}
}

// New는 새 Runtime을 생성합니다.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		mode:       models.ModeAutomatic,
		status:     models.TaskStatusRunning,
		variables:  make(map[string]string),
		defaults:   make(map[string]string),
		knowledge:  make(map[string]string),
		extraTools: make(map[string]tooling.Tool),
		stdin:      bufio.NewReader(os.Stdin),
		stdout:     os.Stdout,
		lookupEnv:  os.LookupEnv,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.pool = newWorkerPool(r.poolWorkers, defaultPoolQueue, r.logger)
	return r
}

// AddListener는 이벤트 listener를 등록합니다.
func (r *Runtime) AddListener(l Listener) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// SetTraceFile은 이후 이벤트를 path에 JSONL로 기록합니다.
// 파일이 이미 존재하면 에러를 반환합니다.
func (r *Runtime) SetTraceFile(path string) error {
	w, err := eventlog.Create(path)
	if err != nil {
		return err
	}

	r.logMu.Lock()
	defer r.logMu.Unlock()
	if r.trace != nil {
		_ = r.trace.Close()
	}
	r.trace = w
	r.logger.Debug("trace 파일 설정", zap.String("path", path))
	return nil
}

// RecordEvent는 이벤트를 로그에 추가하고 trace에 기록한 뒤 listener에 전달합니다.
func (r *Runtime) RecordEvent(name string, payload any) {
	ev, err := eventlog.NewEvent(name, payload)
	if err != nil {
		r.logger.Error("이벤트 생성 실패", zap.String("event", name), zap.Error(err))
		return
	}

	r.logMu.Lock()
	r.events = append(r.events, ev)
	if r.trace != nil {
		if err := r.trace.Write(ev); err != nil {
			r.logger.Warn("trace 기록 실패", zap.String("event", name), zap.Error(err))
		}
	}
	listeners := append([]Listener(nil), r.listeners...)
	r.logMu.Unlock()

	for _, l := range listeners {
		l := l
		if !r.pool.Submit(func() { l(ev) }) {
			r.logger.Debug("runtime closed, listener skipped", zap.String("event", name))
		}
	}
}

// Events는 지금까지 기록된 이벤트의 복사본을 반환합니다.
func (r *Runtime) Events() []eventlog.Event {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return append([]eventlog.Event(nil), r.events...)
}

// WaitForListeners는 전달된 listener 호출이 모두 끝날 때까지 기다립니다.
func (r *Runtime) WaitForListeners() {
	r.pool.Wait()
}

// Close는 listener를 비우고 trace 파일을 닫습니다.
func (r *Runtime) Close() error {
	r.pool.Close()

	r.logMu.Lock()
	defer r.logMu.Unlock()
	if r.trace == nil {
		return nil
	}
	err := r.trace.Close()
	r.trace = nil
	return err
}

// AcquireFlow는 이 Runtime을 사용하는 Flow를 등록합니다.
func (r *Runtime) AcquireFlow() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flowActive {
		return ErrFlowActive
	}
	r.flowActive = true
	return nil
}

// ReleaseFlow는 Flow 등록을 해제합니다.
func (r *Runtime) ReleaseFlow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowActive = false
}

// Mode는 현재 실행 모드를 반환합니다.
func (r *Runtime) Mode() models.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetMode는 실행 모드를 바꾸고 mode_change를 기록합니다.
func (r *Runtime) SetMode(mode models.Mode) {
	r.mu.Lock()
	prev := r.mode
	r.mode = mode
	r.mu.Unlock()

	r.RecordEvent(eventlog.ModeChange, eventlog.ModeChangeData{From: prev, To: mode})
}

// AddUsage는 누적 사용량에 u를 더합니다.
func (r *Runtime) AddUsage(u models.Usage) models.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = r.usage.Add(u)
	return r.usage
}

// Usage는 누적 사용량을 반환합니다.
func (r *Runtime) Usage() models.Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usage
}

// SetTools는 현재 Actor의 static 도구를 등록합니다.
func (r *Runtime) SetTools(tools []tooling.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append([]tooling.Tool(nil), tools...)
}

// Tools는 현재 Actor의 static 도구를 반환합니다.
func (r *Runtime) Tools() []tooling.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]tooling.Tool(nil), r.tools...)
}

// SetExtraTool은 실행 중 생성된 도구를 등록하고 tool_created를 기록합니다.
func (r *Runtime) SetExtraTool(t tooling.Tool) {
	r.mu.Lock()
	r.extraTools[t.Name()] = t
	r.mu.Unlock()

	r.RecordEvent(eventlog.ToolCreated, eventlog.ToolCreatedData{
		Name:        t.Name(),
		Description: t.Description(),
	})
}

// ExtraTools는 실행 중 생성된 도구의 복사본을 반환합니다.
func (r *Runtime) ExtraTools() map[string]tooling.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]tooling.Tool, len(r.extraTools))
	for k, v := range r.extraTools {
		out[k] = v
	}
	return out
}
