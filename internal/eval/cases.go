// Package eval은 하나의 agent를 여러 케이스에 대해 반복 실행하고 결과를 집계합니다.
package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"unicode"

	"gopkg.in/yaml.v3"
)

// 케이스 소스 경로 (agent 디렉토리 기준)
const (
	CasesDir  = "cases"
	CasesFile = "cases.yml"
)

// 케이스 폴더 소스에서 각 케이스에 주입되는 입력 변수
const (
	VarCaseName = "CASE_NAME"
	VarCasePath = "CASE_PATH"
)

// ErrNoCases는 평가할 케이스를 찾지 못했을 때 반환됩니다.
var ErrNoCases = errors.New("평가 케이스가 없습니다")

// Source는 케이스를 읽어 온 위치의 종류입니다.
type Source int

const (
	// SourceFolder는 cases/ 아래 항목 하나가 케이스 하나입니다.
	SourceFolder Source = iota
	// SourceYAML은 cases.yml 목록의 항목 하나가 케이스 하나입니다.
	SourceYAML
)

func (s Source) String() string {
	switch s {
	case SourceFolder:
		return "folder"
	case SourceYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Case는 이름과 runner에 전달할 입력 변수입니다.
type Case struct {
	Name       string
	InputState map[string]string
}

// Cases는 불러온 케이스 목록입니다.
type Cases struct {
	Source Source
	Path   string
	Items  []Case
}

// Len은 케이스 수를 반환합니다.
func (c *Cases) Len() int { return len(c.Items) }

// LoadCases는 evalPath/cases 디렉토리를 먼저 찾고, 없으면 evalPath/cases.yml을 읽습니다.
func LoadCases(evalPath string) (*Cases, error) {
	dir := filepath.Join(evalPath, CasesDir)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return loadFolder(dir)
	}

	file := filepath.Join(evalPath, CasesFile)
	if _, err := os.Stat(file); err == nil {
		return loadYAML(file)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoCases, evalPath)
}

func loadFolder(dir string) (*Cases, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("케이스 디렉토리 읽기 실패: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	cases := &Cases{Source: SourceFolder, Path: dir}
	for _, name := range names {
		cases.Items = append(cases.Items, Case{
			Name: name,
			InputState: map[string]string{
				VarCaseName: name,
				VarCasePath: filepath.ToSlash(filepath.Join(abs, name)),
			},
		})
	}
	if len(cases.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCases, dir)
	}
	return cases, nil
}

// loadYAML은 `- name: {var: value}` 형태의 목록을 읽습니다. 한 항목에 여러 케이스가 있으면 선언 순서를 따릅니다.
func loadYAML(file string) (*Cases, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("케이스 파일 읽기 실패: %w", err)
	}
	var doc []yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("케이스 파일 파싱 실패 %s: %w", file, err)
	}

	cases := &Cases{Source: SourceYAML, Path: file}
	for i := range doc {
		item := &doc[i]
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: %d번째 항목은 mapping이어야 합니다", file, i+1)
		}
		for k := 0; k+1 < len(item.Content); k += 2 {
			name := item.Content[k].Value
			var raw map[string]any
			if err := item.Content[k+1].Decode(&raw); err != nil {
				return nil, fmt.Errorf("%s: 케이스 %s: %w", file, name, err)
			}
			state, err := stringify(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: 케이스 %s: %w", file, name, err)
			}
			cases.Items = append(cases.Items, Case{Name: name, InputState: state})
		}
	}
	if len(cases.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCases, file)
	}
	return cases, nil
}

// stringify는 변수 값을 문자열로 바꿉니다. 목록과 mapping은 JSON으로 인코딩됩니다.
func stringify(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case map[string]any, []any:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// naturalLess는 숫자 구간을 수치로 비교합니다. (case2 < case10)
func naturalLess(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na, errA := strconv.ParseUint(string(ar[si:i]), 10, 64)
			nb, errB := strconv.ParseUint(string(br[sj:j]), 10, 64)
			if errA == nil && errB == nil && na != nb {
				return na < nb
			}
			if da, db := string(ar[si:i]), string(br[sj:j]); da != db {
				return da < db
			}
			continue
		}
		if ar[i] != br[j] {
			return ar[i] < br[j]
		}
		i++
		j++
	}
	return len(ar)-i < len(br)-j
}
