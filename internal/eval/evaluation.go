package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/runner"
)

// Statistics는 평가 설정과 통과/실패 집계입니다.
type Statistics struct {
	Generator string  `json:"generator"`
	MaxSteps  int     `json:"max_steps"`
	MaxCost   float64 `json:"max_cost"`
	Timeout   int     `json:"timeout"`
	Window    string  `json:"window"`
	Runs      int     `json:"runs"`
	Cases     int     `json:"cases"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
}

// Evaluation은 케이스별 실행 결과 기록입니다. JSON 파일로 저장되며 중단된 평가를 이어서 실행할 수 있습니다.
type Evaluation struct {
	Name       string                      `json:"name"`
	StartedAt  float64                     `json:"started_at"`
	FinishedAt float64                     `json:"finished_at"`
	Args       map[string]any              `json:"args"`
	Runs       map[string][]*runner.Output `json:"runs"`
	Stats      Statistics                  `json:"stats"`

	mu    sync.Mutex
	flush bool
}

// NewEvaluation은 args 설정으로 cases개의 케이스를 runs번씩 실행하는 평가 기록을 만듭니다.
func NewEvaluation(args runner.Arguments, runs, cases int) *Evaluation {
	return &Evaluation{
		Name:      filepath.Base(args.InputPath),
		StartedAt: eventlog.Now(),
		Args: map[string]any{
			"input_path": args.InputPath,
			"generator":  args.Generator,
			"window":     args.Window,
			"max_steps":  args.MaxSteps,
			"max_cost":   args.MaxCost,
			"timeout":    args.Timeout,
			"task":       args.Task,
		},
		Runs: make(map[string][]*runner.Output),
		Stats: Statistics{
			Generator: args.Generator,
			MaxSteps:  args.MaxSteps,
			MaxCost:   args.MaxCost,
			Timeout:   args.Timeout,
			Window:    args.Window,
			Runs:      runs,
			Cases:     cases,
		},
	}
}

// AddRun은 케이스의 실행 결과를 추가하고 통과/실패를 집계합니다.
func (e *Evaluation) AddRun(caseName string, out *runner.Output) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Runs == nil {
		e.Runs = make(map[string][]*runner.Output)
	}
	e.Runs[caseName] = append(e.Runs[caseName], out)
	if out.TaskSuccess {
		e.Stats.Passed++
	} else {
		e.Stats.Failed++
	}
	e.flush = true
}

// RemoveRun은 케이스의 idx번째 결과를 지우고 집계에서도 뺍니다.
func (e *Evaluation) RemoveRun(caseName string, idx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	runs := e.Runs[caseName]
	if idx < 0 || idx >= len(runs) {
		return fmt.Errorf("eval: 케이스 %s에 %d번째 실행이 없습니다", caseName, idx)
	}
	if runs[idx].TaskSuccess {
		e.Stats.Passed--
	} else {
		e.Stats.Failed--
	}
	e.Runs[caseName] = append(runs[:idx:idx], runs[idx+1:]...)
	e.flush = true
	return nil
}

// NumRuns는 케이스에 기록된 실행 수입니다.
func (e *Evaluation) NumRuns(caseName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Runs[caseName])
}

// GetRun은 케이스의 idx번째 결과를 반환합니다.
func (e *Evaluation) GetRun(caseName string, idx int) (*runner.Output, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	runs := e.Runs[caseName]
	if idx < 0 || idx >= len(runs) {
		return nil, false
	}
	return runs[idx], true
}

// IsRunDone은 idx번째 실행이 한 step 이상 진행됐는지 확인합니다.
// step이 0인 결과는 시작 직후 중단된 것으로 보고 다시 실행합니다.
func (e *Evaluation) IsRunDone(caseName string, idx int) bool {
	out, ok := e.GetRun(caseName, idx)
	return ok && out.Steps > 0
}

// NeedsFlush는 마지막 저장 이후 변경이 있었는지 확인합니다.
func (e *Evaluation) NeedsFlush() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush
}

// SaveTo는 종료 시각을 갱신하고 path에 JSON으로 저장합니다.
// 임시 파일에 쓴 뒤 rename하므로 중간에 중단돼도 이전 기록은 남습니다.
func (e *Evaluation) SaveTo(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.FinishedAt = eventlog.Now()
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eval: 결과 직렬화 실패: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("eval: 디렉토리 생성 실패: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("eval: 결과 저장 실패: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("eval: 결과 저장 실패: %w", err)
	}
	e.flush = false
	return nil
}

// LoadEvaluation은 SaveTo로 저장된 평가 기록을 읽습니다.
func LoadEvaluation(path string) (*Evaluation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e Evaluation
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("eval: %s 파싱 실패: %w", path, err)
	}
	if e.Runs == nil {
		e.Runs = make(map[string][]*runner.Output)
	}
	return &e, nil
}
