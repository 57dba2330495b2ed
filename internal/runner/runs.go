package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TraceInfo는 runs 디렉토리에 남아 있는 trace 파일 정보입니다.
type TraceInfo struct {
	RunID   string    `json:"run_id"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListTraces는 dir의 run-<id>.jsonl 파일을 수정 시각 순으로 나열합니다.
func ListTraces(dir string) ([]TraceInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TraceInfo{}, nil
		}
		return nil, fmt.Errorf("디렉토리 읽기 실패: %w", err)
	}

	traces := []TraceInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "run-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		traces = append(traces, TraceInfo{
			RunID:   strings.TrimSuffix(strings.TrimPrefix(name, "run-"), ".jsonl"),
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].ModTime.Before(traces[j].ModTime)
	})
	return traces, nil
}

// PruneTraces는 now 기준 maxAge보다 오래된 trace 파일을 삭제하고 삭제한 개수를 반환합니다.
// 비정상 종료로 Cleanup이 호출되지 않은 run이 남긴 파일을 정리합니다.
func PruneTraces(dir string, maxAge time.Duration, now time.Time, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	traces, err := ListTraces(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, tr := range traces {
		if now.Sub(tr.ModTime) <= maxAge {
			continue
		}
		if err := os.Remove(tr.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("오래된 trace 삭제 실패", zap.String("path", tr.Path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("오래된 trace 정리", zap.Int("removed", removed), zap.String("dir", dir))
	}
	return removed, nil
}
