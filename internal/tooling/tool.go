// Package tooling은 모델이 호출할 수 있는 도구의 공통 인터페이스와 어댑터를 제공합니다.
package tooling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cnap-oss/actorflow/internal/models"
)

// Tool은 dispatcher가 호출하는 도구입니다.
// Schema는 인자 객체의 JSON schema입니다.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Invoke(ctx context.Context, args json.RawMessage) (Result, error)
}

// Result는 도구 실행 결과입니다. Media가 있으면 멀티모달 결과입니다.
type Result struct {
	Text  string
	Media *models.ContentPart
}

// IsMedia는 구조화된 결과인지 확인합니다.
func (r Result) IsMedia() bool {
	return r.Media != nil
}

// Value는 이벤트 기록용 값을 반환합니다.
func (r Result) Value() any {
	if r.Media != nil {
		return *r.Media
	}
	return r.Text
}

// TextResult는 텍스트 결과를 만듭니다.
func TextResult(text string) Result {
	return Result{Text: text}
}

// BytesResult는 바이트 출력을 UTF-8 텍스트 결과로 변환합니다.
func BytesResult(b []byte) Result {
	return Result{Text: strings.ToValidUTF8(string(b), "�")}
}

// ImageResult는 이미지 바이트를 data URL 파트로 감쌉니다.
func ImageResult(data []byte, mime string) Result {
	url := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	return Result{Media: &models.ContentPart{
		Type:     models.PartTypeImageURL,
		ImageURL: &models.ImageURL{URL: url},
	}}
}

// FunctionSchema는 OpenAI function 정의입니다.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Schema는 generator에 전달하는 도구 schema입니다.
type Schema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// SchemaOf는 도구의 OpenAI 형식 schema를 만듭니다.
func SchemaOf(t Tool) Schema {
	params := t.Schema()
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return Schema{
		Type: "function",
		Function: FunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}

// Toolset은 이름으로 조회 가능한 정렬된 도구 모음입니다.
type Toolset struct {
	order []string
	tools map[string]Tool
}

// NewToolset은 도구 목록으로 Toolset을 만듭니다. 이름이 중복되면 에러입니다.
func NewToolset(tools ...Tool) (*Toolset, error) {
	ts := &Toolset{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := ts.Add(t); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// Add는 도구를 추가합니다.
func (ts *Toolset) Add(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tooling: tool without name")
	}
	if _, ok := ts.tools[t.Name()]; ok {
		return fmt.Errorf("tooling: duplicate tool %q", t.Name())
	}
	ts.order = append(ts.order, t.Name())
	ts.tools[t.Name()] = t
	return nil
}

// Get은 이름으로 도구를 찾습니다.
func (ts *Toolset) Get(name string) (Tool, bool) {
	if ts == nil {
		return nil, false
	}
	t, ok := ts.tools[name]
	return t, ok
}

// Len은 도구 수를 반환합니다.
func (ts *Toolset) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.order)
}

// Tools는 등록 순서대로 도구를 반환합니다.
func (ts *Toolset) Tools() []Tool {
	if ts == nil {
		return nil
	}
	out := make([]Tool, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.tools[name])
	}
	return out
}

// Names는 등록 순서대로 이름을 반환합니다.
func (ts *Toolset) Names() []string {
	if ts == nil {
		return nil
	}
	return append([]string(nil), ts.order...)
}

// Schemas는 static 도구와 extra 도구의 schema를 합칩니다.
// extra 도구가 static 이름과 겹치면 에러를 반환합니다. 도구가 없으면 nil입니다.
func (ts *Toolset) Schemas(extra map[string]Tool) ([]Schema, error) {
	var out []Schema
	for _, t := range ts.Tools() {
		out = append(out, SchemaOf(t))
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, dup := ts.Get(name); dup {
			return nil, fmt.Errorf("tooling: extra tool %q shadows a static tool", name)
		}
		out = append(out, SchemaOf(extra[name]))
	}
	return out, nil
}
