package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// ErrTraceExists는 trace 파일이 이미 존재할 때 반환됩니다.
var ErrTraceExists = errors.New("eventlog: trace file already exists")

// maxLineSize는 trace 한 줄의 최대 크기입니다. tool 결과에 이미지가 포함될 수 있습니다.
const maxLineSize = 64 * 1024 * 1024

// Writer는 이벤트를 JSONL 파일에 append합니다.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Create는 새 trace 파일을 만듭니다. 파일이 이미 있으면 ErrTraceExists를 반환합니다.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrTraceExists, path)
		}
		return nil, fmt.Errorf("eventlog: trace 파일 생성 실패: %w", err)
	}
	return &Writer{path: path, f: f}, nil
}

// Path는 trace 파일 경로를 반환합니다.
func (w *Writer) Path() string {
	return w.path
}

// Write는 이벤트 한 줄을 기록합니다.
func (w *Writer) Write(ev Event) error {
	line, err := MarshalLine(ev)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("eventlog: writer closed")
	}
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("eventlog: trace 기록 실패: %w", err)
	}
	return nil
}

// Close는 파일을 닫습니다.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// MarshalLine은 이벤트를 개행으로 끝나는 JSON 한 줄로 직렬화합니다.
func MarshalLine(ev Event) ([]byte, error) {
	if len(ev.Data) == 0 {
		ev.Data = json.RawMessage("null")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("eventlog: %s 직렬화 실패: %w", ev.Name, err)
	}
	return append(b, '\n'), nil
}

// ParseLine은 trace 한 줄을 이벤트로 파싱합니다.
func ParseLine(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("eventlog: trace 줄 파싱 실패: %w", err)
	}
	if ev.Name == "" {
		return Event{}, fmt.Errorf("eventlog: trace line without name")
	}
	return ev, nil
}

// Parse는 JSONL 스트림을 읽어 timestamp 순으로 정렬된 이벤트를 반환합니다.
func Parse(r io.Reader) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var events []Event
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: trace 읽기 실패: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}

// ReadFile은 trace 파일 전체를 읽습니다.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
