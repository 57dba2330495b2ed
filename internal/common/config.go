package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	gormlogger "gorm.io/gorm/logger"
)

// 기본값
const (
	DefaultGenerator     = "openai/gpt-4o-mini"
	DefaultWindow        = "full"
	DefaultMaxSteps      = 100
	DefaultMaxCost       = 10.0
	DefaultRetryBackoff  = 5 * time.Second
	DefaultMaxRetries    = 10
	DefaultTraceMaxAge   = 7 * 24 * time.Hour
	DefaultRequestTimeout = 5 * time.Minute
)

// Config는 애플리케이션의 모든 설정을 관리합니다.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	APIKeys    APIKeysConfig    `yaml:"api_keys"`
	Generation GenerationConfig `yaml:"generation"`
	Limits     LimitsConfig     `yaml:"limits"`
	Runner     RunnerConfig     `yaml:"runner"`
	Directory  DirectoryConfig  `yaml:"directory"`
}

// AppConfig는 애플리케이션 기본 설정입니다.
type AppConfig struct {
	// ENV는 실행 환경입니다 (development, production)
	ENV string `yaml:"env"`
	// LogLevel은 애플리케이션 로그 레벨입니다 (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig는 실행 기록 데이터베이스 설정입니다.
type DatabaseConfig struct {
	// DSN은 데이터베이스 연결 문자열입니다. postgres:// 또는 host= 로 시작하지 않으면 SQLite 파일 경로입니다
	DSN string `yaml:"dsn"`
	// LogLevel은 GORM 로그 레벨입니다
	LogLevel gormlogger.LogLevel `yaml:"log_level"`
	// MaxIdleConns는 연결 풀의 idle 연결 개수입니다
	MaxIdleConns int `yaml:"max_idle_conns"`
	// MaxOpenConns는 연결 풀의 최대 연결 개수입니다
	MaxOpenConns int `yaml:"max_open_conns"`
	// ConnMaxLifetime은 연결의 최대 수명입니다
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// SkipDefaultTxn은 기본 트랜잭션을 스킵할지 여부입니다
	SkipDefaultTxn bool `yaml:"skip_default_txn"`
	// PrepareStmt는 prepared statement 캐시를 사용할지 여부입니다
	PrepareStmt bool `yaml:"prepare_stmt"`
	// DisableAutomaticPing은 자동 ping을 비활성화할지 여부입니다
	DisableAutomaticPing bool `yaml:"disable_automatic_ping"`
}

// APIKeysConfig는 generator provider API 키 설정입니다.
type APIKeysConfig struct {
	// OpenAI는 OpenAI API 키입니다
	OpenAI string `yaml:"openai"`
	// OpenCode는 OpenCode Zen API 키입니다
	OpenCode string `yaml:"opencode"`
}

// GenerationConfig는 모델 호출 설정입니다.
type GenerationConfig struct {
	// Generator는 정의 파일과 CLI에 generator가 없을 때 사용하는 ID입니다
	Generator string `yaml:"generator"`
	// Window는 기본 대화 window 전략입니다 (full, N, strip-N)
	Window string `yaml:"window"`
	// RequestTimeout은 모델 HTTP 요청 하나의 제한 시간입니다
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxRetries는 rate limit 재시도 횟수입니다
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff는 rate limit 재시도 간격입니다
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// LimitsConfig는 flow 실행 제한의 기본값입니다.
type LimitsConfig struct {
	MaxSteps int     `yaml:"max_steps"`
	MaxCost  float64 `yaml:"max_cost"`
	// Timeout은 초 단위이며 0이면 제한이 없습니다
	Timeout int `yaml:"timeout"`
}

// RunnerConfig는 자식 프로세스 실행 설정입니다.
type RunnerConfig struct {
	// RunsDir은 trace 파일 디렉토리입니다
	RunsDir string `yaml:"runs_dir"`
	// TraceMaxAge보다 오래된 trace는 exec 시작 시 삭제됩니다. 0이면 삭제하지 않습니다
	TraceMaxAge time.Duration `yaml:"trace_max_age"`
}

// DirectoryConfig는 디렉토리 경로 설정입니다.
type DirectoryConfig struct {
	// ActorflowDir은 기본 데이터 디렉토리입니다 (환경 변수 ACTORFLOW_DIR로만 설정 가능, 기본값: $HOME/.actorflow)
	ActorflowDir string `yaml:"-"`
	// AgentsDir은 이름으로 agent를 찾는 디렉토리입니다
	AgentsDir string `yaml:"agents_dir"`
	// SQLiteDatabase는 SQLite 데이터베이스 파일 경로입니다
	SQLiteDatabase string `yaml:"sqlite_database"`
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// InitConfig는 설정을 초기화합니다.
// configPath가 비어있으면 ${ACTORFLOW_DIR}/config.yaml에서 로드를 시도하고, 파일이 없으면 환경 변수에서 로드합니다.
// 파일에서 로드한 후 환경 변수로 오버라이드됩니다.
func InitConfig(configPath string) error {
	var err error
	once.Do(func() {
		if configPath == "" {
			configPath = filepath.Join(getActorflowDir(), "config.yaml")
		}

		var cfg *Config
		if _, statErr := os.Stat(configPath); statErr == nil {
			cfg, err = LoadConfigFromFile(configPath)
		} else {
			cfg, err = LoadConfigFromEnv()
		}
		mu.Lock()
		instance = cfg
		mu.Unlock()
	})
	return err
}

// GetConfig는 싱글톤 Config 인스턴스를 반환합니다.
// InitConfig가 호출되지 않았으면 환경 변수에서 로드합니다.
func GetConfig() *Config {
	mu.RLock()
	cfg := instance
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	_ = InitConfig("")
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		// 설정 파일 파싱에 실패한 경우 환경 변수 설정을 사용합니다.
		cfg, _ := LoadConfigFromEnv()
		return cfg
	}
	return instance
}

// LoadConfig는 싱글톤 설정을 반환합니다.
func LoadConfig() (*Config, error) {
	return GetConfig(), nil
}

// LoadConfigFromFile은 YAML 파일에서 설정을 로드합니다.
// 파일에 없는 값은 환경 변수 기본값으로 채워집니다.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("설정 파일 읽기 실패: %w", err)
	}

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("설정 파일 파싱 실패: %w", err)
	}

	// YAML에서 로드한 후 환경 변수로 오버라이드
	return mergeWithEnv(cfg), nil
}

// LoadConfigFromEnv는 환경 변수에서 설정을 로드합니다.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		App:        loadAppConfig(),
		Database:   loadDatabaseConfig(),
		APIKeys:    loadAPIKeysConfig(),
		Generation: loadGenerationConfig(),
		Limits:     loadLimitsConfig(),
		Runner:     loadRunnerConfig(),
		Directory:  loadDirectoryConfig(),
	}

	return cfg, nil
}

// mergeWithEnv는 YAML 설정을 환경 변수로 오버라이드합니다.
func mergeWithEnv(cfg *Config) *Config {
	// App
	if env := os.Getenv("ACTORFLOW_ENV"); env != "" {
		cfg.App.ENV = env
	}
	if logLevel := os.Getenv("ACTORFLOW_LOG_LEVEL"); logLevel != "" {
		cfg.App.LogLevel = logLevel
	}

	// Database
	if dsn := os.Getenv("ACTORFLOW_DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if logLevel := os.Getenv("ACTORFLOW_DB_LOG_LEVEL"); logLevel != "" {
		cfg.Database.LogLevel = parseLogLevel(logLevel)
	}
	if maxIdle := os.Getenv("ACTORFLOW_DB_MAX_IDLE"); maxIdle != "" {
		cfg.Database.MaxIdleConns = parseIntWithDefault(maxIdle, cfg.Database.MaxIdleConns)
	}
	if maxOpen := os.Getenv("ACTORFLOW_DB_MAX_OPEN"); maxOpen != "" {
		cfg.Database.MaxOpenConns = parseIntWithDefault(maxOpen, cfg.Database.MaxOpenConns)
	}
	if lifetime := os.Getenv("ACTORFLOW_DB_CONN_LIFETIME"); lifetime != "" {
		cfg.Database.ConnMaxLifetime = parseDurationWithDefault(lifetime, cfg.Database.ConnMaxLifetime)
	}

	// API Keys
	if apiKey := os.Getenv("ACTORFLOW_OPENAI_API_KEY"); apiKey != "" {
		cfg.APIKeys.OpenAI = apiKey
	}
	if apiKey := os.Getenv("ACTORFLOW_OPENCODE_API_KEY"); apiKey != "" {
		cfg.APIKeys.OpenCode = apiKey
	}

	// Generation
	if generator := os.Getenv("ACTORFLOW_GENERATOR"); generator != "" {
		cfg.Generation.Generator = generator
	}
	if window := os.Getenv("ACTORFLOW_WINDOW"); window != "" {
		cfg.Generation.Window = window
	}

	// Limits
	if maxSteps := os.Getenv("ACTORFLOW_MAX_STEPS"); maxSteps != "" {
		cfg.Limits.MaxSteps = parseIntWithDefault(maxSteps, cfg.Limits.MaxSteps)
	}
	if maxCost := os.Getenv("ACTORFLOW_MAX_COST"); maxCost != "" {
		cfg.Limits.MaxCost = parseFloatWithDefault(maxCost, cfg.Limits.MaxCost)
	}
	if timeout := os.Getenv("ACTORFLOW_TIMEOUT"); timeout != "" {
		cfg.Limits.Timeout = parseIntWithDefault(timeout, cfg.Limits.Timeout)
	}

	// Runner
	if runsDir := os.Getenv("ACTORFLOW_RUNS_DIR"); runsDir != "" {
		cfg.Runner.RunsDir = runsDir
	}

	// Directory
	if dir := os.Getenv("ACTORFLOW_DIR"); dir != "" {
		cfg.Directory.ActorflowDir = dir
	}
	if agentsDir := os.Getenv("ACTORFLOW_AGENTS_DIR"); agentsDir != "" {
		cfg.Directory.AgentsDir = agentsDir
	}
	if sqliteDB := os.Getenv("ACTORFLOW_SQLITE_DATABASE"); sqliteDB != "" {
		cfg.Directory.SQLiteDatabase = sqliteDB
	}

	return cfg
}

func loadAppConfig() AppConfig {
	return AppConfig{
		ENV:      getEnvOrDefault("ACTORFLOW_ENV", "production"),
		LogLevel: getEnvOrDefault("ACTORFLOW_LOG_LEVEL", "info"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	dsn := os.Getenv("ACTORFLOW_DATABASE_URL")
	if dsn == "" {
		// ACTORFLOW_DATABASE_URL이 없으면 SQLite 기본값 사용
		sqliteDB := os.Getenv("ACTORFLOW_SQLITE_DATABASE")
		if sqliteDB == "" {
			sqliteDB = filepath.Join(getActorflowDir(), "actorflow.db")
		}
		dsn = sqliteDB
	}

	cfg := DatabaseConfig{
		DSN:             dsn,
		LogLevel:        parseLogLevel(os.Getenv("ACTORFLOW_DB_LOG_LEVEL")),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("ACTORFLOW_DB_MAX_IDLE"), 2),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("ACTORFLOW_DB_MAX_OPEN"), 5),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("ACTORFLOW_DB_CONN_LIFETIME"), 30*time.Minute),
		SkipDefaultTxn:  parseBoolWithDefault(os.Getenv("ACTORFLOW_DB_SKIP_DEFAULT_TXN"), true),
		PrepareStmt:     parseBoolWithDefault(os.Getenv("ACTORFLOW_DB_PREPARE_STMT"), false),
	}

	if v, ok := lookupEnvBool("ACTORFLOW_DB_DISABLE_AUTO_PING"); ok {
		cfg.DisableAutomaticPing = v
	}

	return cfg
}

func loadAPIKeysConfig() APIKeysConfig {
	return APIKeysConfig{
		OpenAI:   firstEnv("ACTORFLOW_OPENAI_API_KEY", "OPENAI_API_KEY"),
		OpenCode: firstEnv("ACTORFLOW_OPENCODE_API_KEY", "OPENCODE_API_KEY"),
	}
}

func loadGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Generator:      getEnvOrDefault("ACTORFLOW_GENERATOR", DefaultGenerator),
		Window:         getEnvOrDefault("ACTORFLOW_WINDOW", DefaultWindow),
		RequestTimeout: parseDurationWithDefault(os.Getenv("ACTORFLOW_REQUEST_TIMEOUT"), DefaultRequestTimeout),
		MaxRetries:     parseIntWithDefault(os.Getenv("ACTORFLOW_MAX_RETRIES"), DefaultMaxRetries),
		RetryBackoff:   parseDurationWithDefault(os.Getenv("ACTORFLOW_RETRY_BACKOFF"), DefaultRetryBackoff),
	}
}

func loadLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxSteps: parseIntWithDefault(os.Getenv("ACTORFLOW_MAX_STEPS"), DefaultMaxSteps),
		MaxCost:  parseFloatWithDefault(os.Getenv("ACTORFLOW_MAX_COST"), DefaultMaxCost),
		Timeout:  parseIntWithDefault(os.Getenv("ACTORFLOW_TIMEOUT"), 0),
	}
}

func loadRunnerConfig() RunnerConfig {
	return RunnerConfig{
		RunsDir:     os.Getenv("ACTORFLOW_RUNS_DIR"),
		TraceMaxAge: parseDurationWithDefault(os.Getenv("ACTORFLOW_TRACE_MAX_AGE"), DefaultTraceMaxAge),
	}
}

func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		ActorflowDir:   getActorflowDir(),
		AgentsDir:      os.Getenv("ACTORFLOW_AGENTS_DIR"),
		SQLiteDatabase: os.Getenv("ACTORFLOW_SQLITE_DATABASE"),
	}
}

// getActorflowDir은 ACTORFLOW_DIR 환경 변수를 반환하거나 기본값을 계산합니다.
func getActorflowDir() string {
	if dir := os.Getenv("ACTORFLOW_DIR"); dir != "" {
		return dir
	}

	// ACTORFLOW_DIR이 없으면 $HOME/.actorflow 사용
	if homeDir := os.Getenv("HOME"); homeDir != "" {
		return filepath.Join(homeDir, ".actorflow")
	}

	// Fallback: ./data
	return "./data"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func parseLogLevel(value string) gormlogger.LogLevel {
	switch value {
	case "silent", "SILENT":
		return gormlogger.Silent
	case "error", "ERROR":
		return gormlogger.Error
	case "warn", "WARN":
		return gormlogger.Warn
	case "info", "INFO":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func parseIntWithDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseFloatWithDefault(value string, def float64) float64 {
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func parseBoolWithDefault(value string, def bool) bool {
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func lookupEnvBool(key string) (bool, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return parsed, true
}

// Validate는 설정 값들을 검증합니다.
func (c *Config) Validate() error {
	if c.Generation.Generator == "" {
		return fmt.Errorf("generation.generator is required")
	}
	if c.Limits.MaxSteps < 0 {
		return fmt.Errorf("limits.max_steps must not be negative")
	}
	if c.Limits.MaxCost < 0 {
		return fmt.Errorf("limits.max_cost must not be negative")
	}
	if c.Limits.Timeout < 0 {
		return fmt.Errorf("limits.timeout must not be negative")
	}
	return nil
}

// APIKeyFor는 provider의 API 키를 반환합니다. 키가 필요 없는 provider는 빈 문자열입니다.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.APIKeys.OpenAI
	case "opencode":
		return c.APIKeys.OpenCode
	default:
		return ""
	}
}

// GetAPIKeyEnvVars는 Runner 자식 프로세스에 전달할 API 키 환경 변수 목록을 반환합니다.
func (c *Config) GetAPIKeyEnvVars() []string {
	var env []string
	if c.APIKeys.OpenAI != "" {
		env = append(env, fmt.Sprintf("ACTORFLOW_OPENAI_API_KEY=%s", c.APIKeys.OpenAI))
	}
	if c.APIKeys.OpenCode != "" {
		env = append(env, fmt.Sprintf("ACTORFLOW_OPENCODE_API_KEY=%s", c.APIKeys.OpenCode))
	}
	return env
}
