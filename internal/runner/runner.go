// Package runner는 flow 하나를 별도 프로세스로 실행하고 trace에서 결과를 복원합니다.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner 상태 상수
const (
	RunnerStatusPending  = "pending"
	RunnerStatusRunning  = "running"
	RunnerStatusFinished = "finished"
	RunnerStatusFailed   = "failed"
	RunnerStatusStopped  = "stopped"
)

// DefaultRunsDir는 trace 파일이 만들어지는 기본 디렉토리입니다.
const DefaultRunsDir = "./data/runs"

// Arguments는 자식 프로세스에 그대로 전달되는 실행 설정입니다.
type Arguments struct {
	// Binary가 비어 있으면 현재 실행 파일을 사용합니다.
	Binary    string
	InputPath string
	Task      string
	Generator string
	// Window는 window.Strategy의 Spec() 문자열입니다.
	Window   string
	MaxSteps int
	MaxCost  float64
	// Timeout은 초 단위이며 0이면 제한이 없습니다.
	Timeout int
}

// LineFunc는 자식 프로세스 출력 한 줄을 받습니다.
type LineFunc func(line string)

// Runner는 flow 하나를 자식 프로세스로 실행합니다.
type Runner struct {
	ID        string
	TracePath string
	Status    string

	commandLine []string
	inputState  map[string]string
	runsDir     string

	stdoutFn LineFunc
	stderrFn LineFunc
	env      []string
	metrics  *Metrics

	mu      sync.Mutex
	process *os.Process

	logger *zap.Logger
}

// RunnerOption은 Runner 초기화 옵션을 설정하기 위한 함수 타입입니다.
type RunnerOption func(*Runner)

// WithID는 run ID를 지정합니다. 기본값은 UUID입니다.
func WithID(id string) RunnerOption {
	return func(r *Runner) {
		r.ID = id
	}
}

// WithRunsDir는 trace 파일 디렉토리를 지정합니다.
func WithRunsDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.runsDir = dir
	}
}

// WithStdout은 stdout 한 줄마다 호출될 함수를 등록합니다.
func WithStdout(fn LineFunc) RunnerOption {
	return func(r *Runner) {
		r.stdoutFn = fn
	}
}

// WithStderr는 stderr 한 줄마다 호출될 함수를 등록합니다.
func WithStderr(fn LineFunc) RunnerOption {
	return func(r *Runner) {
		r.stderrFn = fn
	}
}

// WithEnv는 자식 프로세스에 추가할 환경 변수(KEY=VALUE)를 지정합니다.
func WithEnv(env ...string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithMetrics는 실행 결과를 기록할 Metrics를 지정합니다. 기본값은 GlobalMetrics입니다.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner는 새 Runner를 생성합니다. 프로세스는 Run을 호출할 때 시작됩니다.
// inputState의 "task" 값은 --task 인자로 전달되고 시작 상태에서는 제외됩니다.
func NewRunner(args Arguments, inputState map[string]string, logger *zap.Logger, opts ...RunnerOption) (*Runner, error) {
	if args.InputPath == "" {
		return nil, NewRunnerError("New", "", fmt.Errorf("%w: input path is required", ErrInvalidArguments))
	}
	if args.Generator == "" {
		return nil, NewRunnerError("New", "", fmt.Errorf("%w: generator is required", ErrInvalidArguments))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		Status:     RunnerStatusPending,
		inputState: make(map[string]string, len(inputState)),
		runsDir:    DefaultRunsDir,
		metrics:    GlobalMetrics,
		logger:     logger,
	}
	for k, v := range inputState {
		r.inputState[k] = v
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.metrics == nil {
		r.metrics = GlobalMetrics
	}
	if r.stdoutFn == nil {
		r.stdoutFn = func(line string) { r.logger.Debug(line, zap.String("stream", "stdout")) }
	}
	if r.stderrFn == nil {
		r.stderrFn = func(line string) { r.logger.Debug(line, zap.String("stream", "stderr")) }
	}
	r.logger = r.logger.With(zap.String("run_id", r.ID))

	if err := os.MkdirAll(r.runsDir, 0o755); err != nil {
		return nil, NewRunnerError("New", r.ID, fmt.Errorf("runs 디렉토리 생성 실패: %w", err))
	}
	r.TracePath = TracePath(r.runsDir, r.ID)

	if args.Binary == "" {
		bin, err := os.Executable()
		if err != nil {
			return nil, NewRunnerError("New", r.ID, fmt.Errorf("실행 파일 경로 확인 실패: %w", err))
		}
		args.Binary = bin
	}

	cl, err := buildCommandLine(args, r.inputState, r.TracePath)
	if err != nil {
		return nil, NewRunnerError("New", r.ID, err)
	}
	r.commandLine = cl
	return r, nil
}

// TracePath는 run ID의 trace 파일 경로를 반환합니다.
func TracePath(runsDir, id string) string {
	return filepath.Join(runsDir, "run-"+id+".jsonl")
}

// buildCommandLine은 자식 프로세스 명령줄을 만듭니다. inputState의 "task"는 제거됩니다.
func buildCommandLine(args Arguments, inputState map[string]string, tracePath string) ([]string, error) {
	cl := []string{
		args.Binary,
		"run",
		args.InputPath,
		"--generator", args.Generator,
	}
	if args.Window != "" {
		cl = append(cl, "--window", args.Window)
	}
	cl = append(cl,
		"--max-steps", strconv.Itoa(args.MaxSteps),
		"--max-cost", strconv.FormatFloat(args.MaxCost, 'f', -1, 64),
	)
	if args.Timeout > 0 {
		cl = append(cl, "--timeout", strconv.Itoa(args.Timeout))
	}

	task := args.Task
	if t, ok := inputState["task"]; ok {
		task = t
		delete(inputState, "task")
	}
	if task != "" {
		cl = append(cl, "--task", task)
	}

	state, err := json.Marshal(inputState)
	if err != nil {
		return nil, fmt.Errorf("start state 직렬화 실패: %w", err)
	}
	cl = append(cl, "--start-state", string(state), "--trace", tracePath)
	return cl, nil
}

// CommandLine은 자식 프로세스 명령줄의 복사본을 반환합니다.
func (r *Runner) CommandLine() []string {
	return append([]string(nil), r.commandLine...)
}

// Run은 자식 프로세스를 실행하고 종료를 기다린 뒤 trace에서 Output을 복원합니다.
// 자식의 종료 코드가 0이 아니어도 에러가 아니며 Output.ExitCode에 기록됩니다.
// ctx가 취소되면 자식 프로세스 그룹 전체를 종료합니다.
func (r *Runner) Run(ctx context.Context) (*Output, error) {
	r.logger.Info("Spawning runner",
		zap.String("input", r.commandLine[2]),
		zap.Int("input_vars", len(r.inputState)),
	)

	generatedAt := eventlog.Now()
	startedAt := time.Now()

	cmd := exec.CommandContext(ctx, r.commandLine[0], r.commandLine[1:]...)
	cmd.Env = append(os.Environ(), r.env...)
	setProcAttr(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, r.spawnFailed(err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, r.spawnFailed(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, r.spawnFailed(err)
	}

	r.mu.Lock()
	r.process = cmd.Process
	r.Status = RunnerStatusRunning
	r.mu.Unlock()

	var stdout, stderr []string
	g := new(errgroup.Group)
	g.Go(func() error {
		return drain(stdoutPipe, r.stdoutFn, &stdout)
	})
	g.Go(func() error {
		return drain(stderrPipe, r.stderrFn, &stderr)
	})
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	r.mu.Lock()
	r.process = nil
	r.mu.Unlock()

	if drainErr != nil {
		r.logger.Warn("출력 읽기 중 오류", zap.Error(drainErr))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.setStatus(RunnerStatusStopped)
		r.metrics.RecordError()
		return nil, NewRunnerError("Run", r.ID, ctxErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			r.setStatus(RunnerStatusFailed)
			r.metrics.RecordError()
			return nil, NewRunnerError("Run", r.ID, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}
	r.logger.Debug("process exited, reading events", zap.Int("exit_code", exitCode))

	events, err := r.readTrace()
	if err != nil {
		r.setStatus(RunnerStatusFailed)
		r.metrics.RecordError()
		return nil, NewRunnerError("Run", r.ID, err)
	}
	r.logger.Debug("events read", zap.Int("count", len(events)))

	parsed := ParseEvents(r.inputState, events)
	if parsed.Output == nil {
		r.logger.Warn("could not get output value from runner")
		parsed.Output = fallbackOutput(stdout, stderr)
	}

	out := &Output{
		GeneratedAt: generatedAt,
		CommandLine: r.CommandLine(),
		ExitCode:    exitCode,
		Stdout:      nonNil(stdout),
		Stderr:      nonNil(stderr),
		Events:      events,
		Output:      parsed.Output,
		TaskSuccess: parsed.TaskSuccess,
		Steps:       parsed.Steps,
		Time:        parsed.Time,
		Usage:       parsed.Usage,
	}

	r.setStatus(RunnerStatusFinished)
	r.metrics.RecordRun(out.TaskSuccess, time.Since(startedAt))
	r.logger.Info("Runner finished",
		zap.Int("exit_code", exitCode),
		zap.Bool("task_success", out.TaskSuccess),
		zap.Int("steps", out.Steps),
	)
	return out, nil
}

// Cleanup은 실행 중인 자식 프로세스를 종료하고 trace 파일을 삭제합니다.
func (r *Runner) Cleanup() error {
	r.mu.Lock()
	proc := r.process
	r.process = nil
	r.mu.Unlock()

	if proc != nil {
		r.logger.Debug("killing runner process", zap.Int("pid", proc.Pid))
		if err := killProcessGroup(proc); err != nil {
			r.logger.Warn("프로세스 종료 실패", zap.Error(err))
		}
		r.setStatus(RunnerStatusStopped)
	}

	err := os.Remove(r.TracePath)
	switch {
	case err == nil:
		r.logger.Debug("trace 파일 삭제", zap.String("path", r.TracePath))
		r.metrics.RecordTraceRemoved()
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return NewRunnerError("Cleanup", r.ID, err)
	}
}

func (r *Runner) setStatus(status string) {
	r.mu.Lock()
	r.Status = status
	r.mu.Unlock()
}

// GetStatus는 현재 상태를 반환합니다.
func (r *Runner) GetStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

func (r *Runner) spawnFailed(err error) error {
	r.setStatus(RunnerStatusFailed)
	r.metrics.RecordSpawnFailure()
	return NewRunnerError("Run", r.ID, fmt.Errorf("%w: %w", ErrSpawnFailed, err))
}

// readTrace는 trace 파일을 읽습니다. 자식이 trace를 만들기 전에 죽었으면 빈 목록을 반환합니다.
func (r *Runner) readTrace() ([]eventlog.Event, error) {
	events, err := eventlog.ReadFile(r.TracePath)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("trace 파일 없음", zap.String("path", r.TracePath))
		return []eventlog.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraceUnreadable, err)
	}
	if events == nil {
		events = []eventlog.Event{}
	}
	return events, nil
}

func drain(rd io.Reader, fn LineFunc, lines *[]string) error {
	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			fn(line)
			*lines = append(*lines, line)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// 자식이 pipe에서 막히지 않도록 나머지는 버립니다.
			_, _ = io.Copy(io.Discard, br)
			return err
		}
	}
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
