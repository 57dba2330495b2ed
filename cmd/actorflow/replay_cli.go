package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnap-oss/actorflow/internal/eventlog"
	"github.com/cnap-oss/actorflow/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func buildReplayCommand(logger *zap.Logger) *cobra.Command {
	var fast, follow bool
	cmd := &cobra.Command{
		Use:   "replay <trace-file|run-id>",
		Short: "기록된 run 이벤트 재생",
		Long: `trace 파일 또는 저장된 run의 이벤트를 원래 간격대로 다시 출력합니다.
--follow는 실행 중인 trace를 flow_complete까지 따라갑니다.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(logger, args[0], fast, follow)
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "이벤트 사이 대기 없이 재생")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "trace 파일에 추가되는 이벤트를 계속 출력")
	return cmd
}

func runReplay(logger *zap.Logger, target string, fast, follow bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	replayLogger := logger.Named("replay")
	handler := func(ev eventlog.Event) error {
		state.LogEvent(replayLogger, ev)
		return nil
	}

	if follow {
		return eventlog.Follow(ctx, target, func(ev eventlog.Event) error {
			_ = handler(ev)
			if ev.Name == eventlog.FlowComplete {
				return eventlog.ErrStopFollowing
			}
			return nil
		})
	}

	if _, err := os.Stat(target); err == nil {
		return eventlog.Replay(ctx, target, fast, handler)
	}

	// 파일이 없으면 저장된 run ID로 취급합니다.
	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	rows, err := repo.ListRunEvents(ctx, target)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("run %s: 기록된 이벤트가 없습니다", target)
	}
	events := make([]eventlog.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.Event())
	}
	return eventlog.ReplayEvents(ctx, events, fast, handler)
}
