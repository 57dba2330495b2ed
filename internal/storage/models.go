package storage

import (
	"encoding/json"
	"time"

	"github.com/cnap-oss/actorflow/internal/eventlog"
)

// Run은 runs 테이블 레코드를 나타냅니다. Runner 실행 하나의 결과입니다.
type Run struct {
	ID               int64     `gorm:"column:id;type:bigserial;primaryKey"`
	RunID            string    `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_runs_run_id"`
	Input            string    `gorm:"column:input;type:text;not null"`
	Generator        string    `gorm:"column:generator;type:varchar(128);not null"`
	Status           string    `gorm:"column:status;type:varchar(32);not null;index:idx_runs_status"`
	CommandLine      string    `gorm:"column:command_line;type:text"`
	StartState       string    `gorm:"column:start_state;type:text"`
	ExitCode         int       `gorm:"column:exit_code;type:int;not null"`
	TaskSuccess      bool      `gorm:"column:task_success;not null;default:false"`
	Steps            int       `gorm:"column:steps;type:int;not null;default:0"`
	DurationSeconds  float64   `gorm:"column:duration_seconds;not null;default:0"`
	PromptTokens     int       `gorm:"column:prompt_tokens;type:int;not null;default:0"`
	CompletionTokens int       `gorm:"column:completion_tokens;type:int;not null;default:0"`
	TotalTokens      int       `gorm:"column:total_tokens;type:int;not null;default:0"`
	Cost             *float64  `gorm:"column:cost"`
	Output           string    `gorm:"column:output;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName은 gorm Tabler 인터페이스를 구현합니다.
func (Run) TableName() string {
	return "runs"
}

// RunEvent는 run의 trace 이벤트 한 줄입니다.
type RunEvent struct {
	ID        int64   `gorm:"column:id;type:bigserial;primaryKey"`
	RunID     string  `gorm:"column:run_id;type:varchar(64);not null;index:idx_run_events_run;uniqueIndex:idx_run_events_run_seq,priority:1"`
	Seq       int     `gorm:"column:seq;type:int;not null;uniqueIndex:idx_run_events_run_seq,priority:2"`
	Timestamp float64 `gorm:"column:timestamp;not null"`
	Name      string  `gorm:"column:name;type:varchar(64);not null"`
	Data      string  `gorm:"column:data;type:text"`
}

// TableName은 gorm Tabler 인터페이스를 구현합니다.
func (RunEvent) TableName() string {
	return "run_events"
}

// NewRunEvents는 trace 이벤트를 순서대로 RunEvent 레코드로 변환합니다.
func NewRunEvents(runID string, events []eventlog.Event) []RunEvent {
	rows := make([]RunEvent, 0, len(events))
	for i, ev := range events {
		rows = append(rows, RunEvent{
			RunID:     runID,
			Seq:       i,
			Timestamp: ev.Timestamp,
			Name:      ev.Name,
			Data:      string(ev.Data),
		})
	}
	return rows
}

// Event는 레코드를 trace 이벤트로 되돌립니다.
func (e RunEvent) Event() eventlog.Event {
	ev := eventlog.Event{Timestamp: e.Timestamp, Name: e.Name}
	if e.Data != "" {
		ev.Data = json.RawMessage(e.Data)
	}
	return ev
}
