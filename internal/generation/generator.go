// Package generation은 generator 호출과 도구 실행으로 구성된 한 단계의 추론을 담당합니다.
package generation

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/tooling"
)

// Generator는 대화와 도구 schema를 받아 assistant 메시지를 생성합니다.
// 응답이 없으면 nil 메시지를 반환할 수 있습니다.
type Generator interface {
	Generate(ctx context.Context, conversation []models.Message, tools []tooling.Schema) (models.Usage, *models.Message, error)
}

// GeneratorFunc는 함수를 Generator로 사용합니다.
type GeneratorFunc func(ctx context.Context, conversation []models.Message, tools []tooling.Schema) (models.Usage, *models.Message, error)

func (f GeneratorFunc) Generate(ctx context.Context, conversation []models.Message, tools []tooling.Schema) (models.Usage, *models.Message, error) {
	return f(ctx, conversation, tools)
}

// GeneratorSpec은 "provider/model?key=value" 형식의 generator ID를 해석한 결과입니다.
type GeneratorSpec struct {
	ID       string
	Provider string
	Model    string
	APIBase  string
	Params   map[string]any
}

// ParseGeneratorID는 generator ID를 해석합니다.
// query의 숫자 값은 숫자로, true/false는 bool로 변환되고 api_base는 별도로 분리됩니다.
func ParseGeneratorID(id string) (GeneratorSpec, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return GeneratorSpec{}, fmt.Errorf("generation: empty generator id")
	}

	base, rawQuery, _ := strings.Cut(id, "?")
	provider, model, ok := strings.Cut(base, "/")
	if !ok || provider == "" || model == "" {
		return GeneratorSpec{}, fmt.Errorf("generation: generator id %q must look like provider/model", id)
	}

	spec := GeneratorSpec{ID: id, Provider: provider, Model: model}
	if rawQuery == "" {
		return spec, nil
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return GeneratorSpec{}, fmt.Errorf("generation: invalid params in %q: %w", id, err)
	}
	spec.Params = make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[len(vals)-1]
		if key == "api_base" {
			spec.APIBase = v
			continue
		}
		spec.Params[key] = parseParam(v)
	}
	if len(spec.Params) == 0 {
		spec.Params = nil
	}
	return spec, nil
}

// ParamKeys는 정렬된 param 이름을 반환합니다.
func (s GeneratorSpec) ParamKeys() []string {
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseParam(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
