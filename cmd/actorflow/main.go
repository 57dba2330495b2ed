package main

import (
	"fmt"
	"os"

	"github.com/cnap-oss/actorflow/internal/common"
	"github.com/cnap-oss/actorflow/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env 파일은 있으면 로드합니다
	_ = godotenv.Load()

	if err := common.InitConfig(os.Getenv("ACTORFLOW_CONFIG")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := common.GetConfig()

	logger, err := common.NewLoggerWithConfig("", cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:           "actorflow",
		Short:         "actorflow - LLM agent execution engine",
		Long:          `actorflow runs YAML-defined agents and workflows against OpenAI-compatible models and records every run as a JSONL trace.`,
		Version:       fmt.Sprintf("%s (built at %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// health 명령어
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check application health status",
		Long:  `Check that the configuration loads and the run database is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cleanup, err := initStorage(logger)
			if err != nil {
				return err
			}
			defer cleanup()
			fmt.Println("OK")
			return nil
		},
	}

	// 명령어 구성
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(buildRunCommand(logger, cfg))
	rootCmd.AddCommand(buildExecCommand(logger, cfg))
	rootCmd.AddCommand(buildEvalCommand(logger, cfg))
	rootCmd.AddCommand(buildReplayCommand(logger))
	rootCmd.AddCommand(buildRunsCommands(logger))

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", zap.Error(err))
		os.Exit(1)
	}
}

func initStorage(logger *zap.Logger) (*storage.Repository, func(), error) {
	cfg, err := storage.ConfigFromEnv()
	if err != nil {
		return nil, func() {}, err
	}

	db, err := storage.Open(cfg)
	if err != nil {
		return nil, func() {}, err
	}

	if err := storage.AutoMigrate(db); err != nil {
		_ = storage.Close(db)
		return nil, func() {}, err
	}

	repo, err := storage.NewRepository(db)
	if err != nil {
		_ = storage.Close(db)
		return nil, func() {}, err
	}

	cleanup := func() {
		if err := storage.Close(db); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}

	return repo, cleanup, nil
}
