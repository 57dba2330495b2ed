package state

import (
	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/models"
)

// 제한 초과 시 기록되는 실패 사유
const (
	ReasonMaxSteps = "max steps reached"
	ReasonMaxCost  = "max cost reached"
	ReasonTimeout  = "timeout reached"
)

// OnTaskStarted는 현재 Actor를 바꾸고 task_started를 기록합니다.
func (r *Runtime) OnTaskStarted(actor string) {
	r.mu.Lock()
	r.currentActor = actor
	r.mu.Unlock()

	r.RecordEvent(eventlog.TaskStarted, eventlog.TaskStartedData{Actor: actor})
}

// CurrentActor는 현재 Actor 이름을 반환합니다.
func (r *Runtime) CurrentActor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentActor
}

// TaskStatus는 현재 작업 상태와 사유를 반환합니다.
func (r *Runtime) TaskStatus() (models.TaskStatus, *string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.reason
}

// IsActiveTaskDone은 현재 작업이 종료 상태인지 확인합니다.
func (r *Runtime) IsActiveTaskDone() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.IsDone()
}

// SetTaskComplete는 작업을 완료 처리하고 task_complete를 기록합니다.
func (r *Runtime) SetTaskComplete(reason *string) {
	r.setTaskStatus(models.TaskStatusCompleted, reason, eventlog.TaskComplete)
}

// SetTaskFailed는 작업을 실패 처리하고 task_failed를 기록합니다.
func (r *Runtime) SetTaskFailed(reason string) {
	r.setTaskStatus(models.TaskStatusFailed, &reason, eventlog.TaskFailed)
}

func (r *Runtime) setTaskStatus(status models.TaskStatus, reason *string, event string) {
	r.mu.Lock()
	r.status = status
	r.reason = copyString(reason)
	actor := r.currentActor
	r.mu.Unlock()

	r.RecordEvent(event, eventlog.TaskStatusData{Actor: actor, Reason: copyString(reason)})
}

// OnMaxStepsReached는 실행 중인 작업을 "max steps reached"로 실패 처리합니다.
func (r *Runtime) OnMaxStepsReached() {
	r.failIfRunning(ReasonMaxSteps)
}

// OnMaxCostReached는 실행 중인 작업을 "max cost reached"로 실패 처리합니다.
func (r *Runtime) OnMaxCostReached() {
	r.failIfRunning(ReasonMaxCost)
}

// OnTimeout은 실행 중인 작업을 "timeout reached"로 실패 처리합니다.
func (r *Runtime) OnTimeout() {
	r.failIfRunning(ReasonTimeout)
}

func (r *Runtime) failIfRunning(reason string) {
	if r.IsActiveTaskDone() {
		return
	}
	r.SetTaskFailed(reason)
}

// Reset은 다음 Actor를 위해 작업 상태와 knowledge를 초기화합니다.
// 변수와 누적 사용량은 유지됩니다.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = models.TaskStatusRunning
	r.reason = nil
	r.knowledge = make(map[string]string)
}

// AsDict는 현재 상태의 스냅샷을 반환합니다.
func (r *Runtime) AsDict() models.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.Snapshot{
		Mode: r.mode,
		CurrentTask: models.TaskSnapshot{
			Status: r.status,
			Reason: copyString(r.reason),
		},
		Variables: copyMap(r.variables),
		Knowledge: copyMap(r.knowledge),
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
