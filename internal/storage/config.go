package storage

import (
	"time"

	"github.com/cnap-oss/actorflow/internal/common"
	gormlogger "gorm.io/gorm/logger"
)

// Config는 GORM 데이터베이스 설정 값을 보관합니다.
type Config struct {
	DSN                  string
	LogLevel             gormlogger.LogLevel
	MaxIdleConns         int
	MaxOpenConns         int
	ConnMaxLifetime      time.Duration
	SkipDefaultTxn       bool
	PrepareStmt          bool
	DisableAutomaticPing bool
}

// ConfigFromEnv는 중앙화된 설정에서 Config를 구성합니다.
func ConfigFromEnv() (Config, error) {
	appConfig, err := common.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	return ConfigFrom(appConfig.Database), nil
}

// ConfigFrom은 common.DatabaseConfig를 storage Config로 변환합니다.
func ConfigFrom(db common.DatabaseConfig) Config {
	return Config{
		DSN:                  db.DSN,
		LogLevel:             db.LogLevel,
		MaxIdleConns:         db.MaxIdleConns,
		MaxOpenConns:         db.MaxOpenConns,
		ConnMaxLifetime:      db.ConnMaxLifetime,
		SkipDefaultTxn:       db.SkipDefaultTxn,
		PrepareStmt:          db.PrepareStmt,
		DisableAutomaticPing: db.DisableAutomaticPing,
	}
}
