package common

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the base data directory path.
// Priority:
// 1. ACTORFLOW_DIR from config
// 2. $HOME/.actorflow (default)
// 3. ./data (fallback if HOME is not set)
func GetDataDir() string {
	cfg, err := LoadConfig()
	if err == nil && cfg.Directory.ActorflowDir != "" {
		return cfg.Directory.ActorflowDir
	}
	return getActorflowDir()
}

// GetRunsDir returns the directory holding run trace files.
// Default: {DataDir}/runs
func GetRunsDir() string {
	cfg, err := LoadConfig()
	if err == nil && cfg.Runner.RunsDir != "" {
		return cfg.Runner.RunsDir
	}
	return filepath.Join(GetDataDir(), "runs")
}

// GetAgentsDir returns the directory searched for agents by name.
// Default: {DataDir}/agents
func GetAgentsDir() string {
	cfg, err := LoadConfig()
	if err == nil && cfg.Directory.AgentsDir != "" {
		return cfg.Directory.AgentsDir
	}
	return filepath.Join(GetDataDir(), "agents")
}

// GetDatabasePath returns the SQLite database file path.
// Default: {DataDir}/actorflow.db
func GetDatabasePath() string {
	cfg, err := LoadConfig()
	if err == nil && cfg.Directory.SQLiteDatabase != "" {
		return cfg.Directory.SQLiteDatabase
	}
	return filepath.Join(GetDataDir(), "actorflow.db")
}

// ResolveAgentPath는 입력 경로가 존재하면 그대로, 없으면 agentsDir 아래에서 찾습니다.
// 둘 다 없으면 입력을 그대로 반환하고 로딩 단계에서 에러가 납니다.
func ResolveAgentPath(input, agentsDir string) string {
	if _, err := os.Stat(input); err == nil {
		return input
	}
	if agentsDir == "" || filepath.IsAbs(input) {
		return input
	}
	for _, candidate := range []string{
		filepath.Join(agentsDir, input),
		filepath.Join(agentsDir, input+".yml"),
		filepath.Join(agentsDir, input+".yaml"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return input
}
