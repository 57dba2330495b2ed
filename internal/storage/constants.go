package storage

const (
	// Run 상태
	RunStatusSucceeded = "succeeded" // task_complete로 끝남
	RunStatusFailed    = "failed"    // task_failed 또는 task 신호 없이 끝남
	RunStatusCrashed   = "crashed"   // 0이 아닌 종료 코드
	RunStatusStopped   = "stopped"   // 취소되거나 시그널로 중단됨

	// DSN prefix
	dsnPostgresURL    = "postgres://"
	dsnPostgresqlURL  = "postgresql://"
	dsnPostgresKeyVal = "host="
)
