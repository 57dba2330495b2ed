// Package window는 generator에 보여줄 대화 기록을 고르는 전략을 제공합니다.
package window

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cnap-oss/actorflow/internal/models"
)

const (
	// StrippedContent는 오래된 메시지 내용을 대체하는 문자열입니다.
	StrippedContent = "<stripped content>"
	// StrippedToolResponse는 오래된 tool 응답을 대체하는 문자열입니다.
	StrippedToolResponse = "<stripped tool response>"

	stripPrefix = "strip-"
)

// Strategy는 history에서 generator에 전달할 window를 계산합니다.
// 구현은 입력 slice를 수정하지 않습니다.
type Strategy interface {
	Window(history []models.Message) []models.Message
	// Spec은 Parse로 되돌릴 수 있는 문자열 표현입니다.
	Spec() string
	String() string
}

// Full은 전체 기록을 그대로 반환합니다.
type Full struct{}

func (Full) Window(history []models.Message) []models.Message { return history }
func (Full) Spec() string                                       { return "full" }
func (Full) String() string                                     { return "full history" }

// Sliding은 최근 N개의 메시지만 유지합니다.
// window 안의 모든 tool 메시지가 짝이 되는 assistant 호출을 포함하도록 왼쪽으로 확장합니다.
type Sliding struct {
	N int
}

func (s Sliding) Window(history []models.Message) []models.Message {
	if s.N <= 0 || len(history) <= s.N {
		return history
	}
	start := len(history) - s.N
	for start > 0 && history[start].Role == models.RoleTool {
		start--
	}
	// media 메시지가 tool 응답 사이에 끼면 경계가 user여도 호출이 잘릴 수 있습니다.
	missing := orphanCalls(history[start:])
	for start > 0 && len(missing) > 0 {
		start--
		for _, c := range history[start].ToolCalls {
			delete(missing, c.ID)
		}
	}
	return history[start:]
}

// orphanCalls는 window 안에 호출이 없는 tool 응답의 call ID를 반환합니다.
func orphanCalls(w []models.Message) map[string]struct{} {
	called := map[string]struct{}{}
	missing := map[string]struct{}{}
	for _, m := range w {
		for _, c := range m.ToolCalls {
			called[c.ID] = struct{}{}
		}
		if m.Role != models.RoleTool {
			continue
		}
		if _, ok := called[m.ToolCallID]; !ok {
			missing[m.ToolCallID] = struct{}{}
		}
	}
	return missing
}

func (s Sliding) Spec() string   { return strconv.Itoa(s.N) }
func (s Sliding) String() string { return fmt.Sprintf("sliding window of %d", s.N) }

// Stripped는 길이를 유지하면서 최근 N개 이전 메시지의 내용을 placeholder로 바꿉니다.
type Stripped struct {
	N int
}

func (s Stripped) Window(history []models.Message) []models.Message {
	n := s.N
	if n < 0 {
		n = 0
	}
	if len(history) <= n {
		return history
	}

	cut := len(history) - n
	out := make([]models.Message, len(history))
	copy(out, history)
	for i := 0; i < cut; i++ {
		msg := out[i]
		msg.Parts = nil
		if msg.Role == models.RoleTool {
			msg.Content = StrippedToolResponse
		} else {
			msg.Content = StrippedContent
		}
		out[i] = msg
	}
	return out
}

func (s Stripped) Spec() string   { return stripPrefix + strconv.Itoa(s.N) }
func (s Stripped) String() string { return fmt.Sprintf("stripped window of %d", s.N) }

// Parse는 "full", "<n>", "strip-<n>" 형식의 문자열을 Strategy로 변환합니다.
func Parse(spec string) (Strategy, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	switch {
	case spec == "" || spec == "full":
		return Full{}, nil
	case strings.HasPrefix(spec, stripPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(spec, stripPrefix))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("window: invalid stripped window %q", spec)
		}
		return Stripped{N: n}, nil
	default:
		n, err := strconv.Atoi(spec)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("window: unknown strategy %q (use full, <n> or strip-<n>)", spec)
		}
		return Sliding{N: n}, nil
	}
}
