package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository는 실행 기록을 위한 영속성 헬퍼를 제공합니다.
type Repository struct {
	db *gorm.DB
}

// NewRepository는 전달된 gorm DB를 이용해 Repository를 생성합니다.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: repository requires a non-nil db handle")
	}
	return &Repository{db: db}, nil
}

// DB는 내부 gorm DB 참조를 반환합니다.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// SaveRun은 run과 이벤트를 하나의 트랜잭션으로 저장합니다.
// 같은 run_id가 이미 있으면 결과 컬럼을 갱신하고 이벤트를 교체합니다.
func (r *Repository) SaveRun(ctx context.Context, run *Run, events []RunEvent) error {
	if run == nil {
		return fmt.Errorf("storage: nil run payload")
	}
	if run.RunID == "" {
		return fmt.Errorf("storage: empty runID")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "exit_code", "task_success", "steps", "duration_seconds",
				"prompt_tokens", "completion_tokens", "total_tokens", "cost", "output", "updated_at",
			}),
		}).Create(run).Error; err != nil {
			return err
		}

		if err := tx.Where("run_id = ?", run.RunID).Delete(&RunEvent{}).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for i := range events {
			events[i].RunID = run.RunID
		}
		return tx.CreateInBatches(events, 200).Error
	})
}

// GetRun은 식별자로 run을 조회합니다.
func (r *Repository) GetRun(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("storage: empty runID")
	}
	var run Run
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns는 최근 run부터 반환합니다. limit이 0 이하이면 전체를 반환합니다.
func (r *Repository) ListRuns(ctx context.Context, limit int, statuses ...string) ([]Run, error) {
	q := r.db.WithContext(ctx).Model(&Run{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []Run
	if err := q.Order("created_at DESC").Order("id DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRunEvents는 run의 이벤트를 기록 순서대로 반환합니다.
func (r *Repository) ListRunEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	if runID == "" {
		return nil, fmt.Errorf("storage: empty runID")
	}
	var events []RunEvent
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteRun은 run과 이벤트를 삭제합니다.
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("storage: empty runID")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&RunEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", runID).Delete(&Run{}).Error
	})
}
