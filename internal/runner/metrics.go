package runner

import (
	"sync/atomic"
	"time"
)

// Metrics는 Runner 메트릭을 수집합니다.
type Metrics struct {
	// Run 메트릭
	RunsExecuted  int64
	RunsSucceeded int64
	RunsFailed    int64
	SpawnFailures int64

	// 타이밍 메트릭
	TotalExecutionTime int64 // 나노초

	// 에러 메트릭
	ErrorsTotal   int64
	TracesRemoved int64
}

// GlobalMetrics는 전역 메트릭 인스턴스입니다.
var GlobalMetrics = &Metrics{}

// RecordRun은 끝까지 실행된 run을 기록합니다. success는 task 성공 여부입니다.
func (m *Metrics) RecordRun(success bool, duration time.Duration) {
	atomic.AddInt64(&m.RunsExecuted, 1)
	atomic.AddInt64(&m.TotalExecutionTime, int64(duration))

	if success {
		atomic.AddInt64(&m.RunsSucceeded, 1)
	} else {
		atomic.AddInt64(&m.RunsFailed, 1)
	}
}

// RecordSpawnFailure는 프로세스 시작 실패를 기록합니다.
func (m *Metrics) RecordSpawnFailure() {
	atomic.AddInt64(&m.SpawnFailures, 1)
	atomic.AddInt64(&m.ErrorsTotal, 1)
}

// RecordError는 에러를 기록합니다.
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.ErrorsTotal, 1)
}

// RecordTraceRemoved는 삭제된 trace 파일을 기록합니다.
func (m *Metrics) RecordTraceRemoved() {
	atomic.AddInt64(&m.TracesRemoved, 1)
}

// GetSnapshot은 현재 메트릭 스냅샷을 반환합니다.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RunsExecuted:       atomic.LoadInt64(&m.RunsExecuted),
		RunsSucceeded:      atomic.LoadInt64(&m.RunsSucceeded),
		RunsFailed:         atomic.LoadInt64(&m.RunsFailed),
		SpawnFailures:      atomic.LoadInt64(&m.SpawnFailures),
		AvgExecutionTimeMs: m.calculateAvgExecutionTime(),
		ErrorsTotal:        atomic.LoadInt64(&m.ErrorsTotal),
		TracesRemoved:      atomic.LoadInt64(&m.TracesRemoved),
	}
}

// Reset은 모든 메트릭을 초기화합니다.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RunsExecuted, 0)
	atomic.StoreInt64(&m.RunsSucceeded, 0)
	atomic.StoreInt64(&m.RunsFailed, 0)
	atomic.StoreInt64(&m.SpawnFailures, 0)
	atomic.StoreInt64(&m.TotalExecutionTime, 0)
	atomic.StoreInt64(&m.ErrorsTotal, 0)
	atomic.StoreInt64(&m.TracesRemoved, 0)
}

func (m *Metrics) calculateAvgExecutionTime() float64 {
	executed := atomic.LoadInt64(&m.RunsExecuted)
	if executed == 0 {
		return 0
	}
	totalNs := atomic.LoadInt64(&m.TotalExecutionTime)
	return float64(totalNs) / float64(executed) / 1e6 // 나노초 -> 밀리초
}

// MetricsSnapshot은 메트릭 스냅샷입니다.
type MetricsSnapshot struct {
	RunsExecuted       int64   `json:"runs_executed"`
	RunsSucceeded      int64   `json:"runs_succeeded"`
	RunsFailed         int64   `json:"runs_failed"`
	SpawnFailures      int64   `json:"spawn_failures"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	ErrorsTotal        int64   `json:"errors_total"`
	TracesRemoved      int64   `json:"traces_removed"`
}
