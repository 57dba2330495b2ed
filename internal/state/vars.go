package state

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// UpdateVariables는 변수를 갱신하고 키마다 variable_change를 기록합니다.
func (r *Runtime) UpdateVariables(vars map[string]string) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.mu.Lock()
	for _, k := range keys {
		r.variables[k] = vars[k]
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.RecordEvent(eventlog.VariableChange, eventlog.VariableChangeData{Name: k, Value: vars[k]})
	}
}

// Variable은 변수 값을 조회합니다.
func (r *Runtime) Variable(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variables[name]
	return v, ok
}

// Variables는 변수 맵의 복사본을 반환합니다.
func (r *Runtime) Variables() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMap(r.variables)
}

// SetDefaults는 변수 기본값을 등록합니다.
func (r *Runtime) SetDefaults(defaults map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range defaults {
		r.defaults[k] = v
	}
}

// Knowledge는 knowledge 맵의 복사본을 반환합니다.
func (r *Runtime) Knowledge() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMap(r.knowledge)
}

// WriteKnowledge는 knowledge 값을 덮어씁니다.
func (r *Runtime) WriteKnowledge(name, value string) {
	r.changeKnowledge(name, func(_ string, _ bool) (string, bool) {
		return value, true
	})
}

// AppendToKnowledge는 기존 값 뒤에 개행으로 구분하여 value를 추가합니다.
func (r *Runtime) AppendToKnowledge(name, value string) {
	r.changeKnowledge(name, func(prev string, ok bool) (string, bool) {
		if !ok || prev == "" {
			return value, true
		}
		return prev + "\n" + value, true
	})
}

// ClearKnowledge는 knowledge 항목을 삭제합니다.
func (r *Runtime) ClearKnowledge(name string) {
	r.changeKnowledge(name, func(string, bool) (string, bool) {
		return "", false
	})
}

func (r *Runtime) changeKnowledge(name string, fn func(prev string, ok bool) (string, bool)) {
	r.mu.Lock()
	prev, had := r.knowledge[name]
	next, keep := fn(prev, had)
	if keep {
		r.knowledge[name] = next
	} else {
		delete(r.knowledge, name)
	}
	r.mu.Unlock()

	data := eventlog.KnowledgeChangeData{Name: name}
	if had {
		data.From = &prev
	}
	if keep {
		data.To = &next
	}
	r.RecordEvent(eventlog.KnowledgeChange, data)
}

// OnUserInputNeeded는 변수 값을 환경 변수, 변수, 기본값 순으로 찾습니다.
// 모두 없으면 interactive 모드에서는 stdin으로 묻고, automatic 모드에서는 ErrMissingParameter를 반환합니다.
func (r *Runtime) OnUserInputNeeded(name, prompt string) (string, error) {
	if v, ok := r.lookupEnv(name); ok {
		r.logger.Debug("환경 변수에서 값 사용", zap.String("name", name))
		return v, nil
	}
	if v, ok := r.Variable(name); ok {
		return v, nil
	}

	r.mu.RLock()
	def, hasDefault := r.defaults[name]
	mode := r.mode
	r.mu.RUnlock()
	if hasDefault {
		r.logger.Debug("기본값 사용", zap.String("name", name), zap.String("value", def))
		return def, nil
	}

	if mode != models.ModeInteractive {
		return "", fmt.Errorf("%w: %s (pass it with --start-state or as environment variable)", ErrMissingParameter, name)
	}

	// 프롬프트 출력 전에 listener 출력이 끝나야 합니다.
	r.WaitForListeners()

	if prompt == "" {
		prompt = name + ": "
	}
	if _, err := fmt.Fprint(r.stdout, prompt); err != nil {
		return "", err
	}
	line, err := r.stdin.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", fmt.Errorf("%s 입력 읽기 실패: %w", name, err)
	}
	return norm.NFC.String(strings.TrimRight(line, "\r\n")), nil
}

var varRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Interpolate는 raw의 {{ name }} 자리를 변수 값으로 치환합니다.
// extra가 먼저 조회되고, builtin 변수, 사용자 입력 순으로 해석합니다.
// 사용자 입력으로 얻은 값은 변수로 저장됩니다.
func (r *Runtime) Interpolate(raw string, extra map[string]string) (string, error) {
	var firstErr error
	resolved := map[string]string{}

	out := varRe.ReplaceAllStringFunc(raw, func(m string) string {
		if firstErr != nil {
			return m
		}
		name := varRe.FindStringSubmatch(m)[1]
		if v, ok := resolved[name]; ok {
			return v
		}

		v, err := r.resolveVariable(name, extra)
		if err != nil {
			firstErr = err
			return m
		}
		resolved[name] = v
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *Runtime) resolveVariable(name string, extra map[string]string) (string, error) {
	if v, ok := extra[name]; ok {
		return v, nil
	}
	if v, ok := r.Variable(name); ok {
		return v, nil
	}
	if IsBuiltinVariable(name) {
		return BuiltinVariable(name), nil
	}

	v, err := r.OnUserInputNeeded(name, fmt.Sprintf("%s: ", name))
	if err != nil {
		return "", err
	}
	r.UpdateVariables(map[string]string{name: v})
	return v, nil
}
