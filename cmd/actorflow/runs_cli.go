package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cnap-oss/actorflow/internal/common"
	"github.com/cnap-oss/actorflow/internal/runner"
	"github.com/cnap-oss/actorflow/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func buildRunsCommands(logger *zap.Logger) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Run 기록 관리 명령어",
		Long:  "exec로 저장된 run 기록과 runs 디렉토리의 trace 파일을 조회하고 정리합니다.",
	}

	// runs list
	var limit int
	var statuses []string
	runsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Run 목록 조회",
		Long:  "최근 run부터 목록을 조회합니다. --status로 상태를 거를 수 있습니다. (succeeded, failed, crashed, stopped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(logger, limit, statuses)
		},
	}
	runsListCmd.Flags().IntVarP(&limit, "limit", "n", 20, "최대 개수 (0이면 전체)")
	runsListCmd.Flags().StringSliceVar(&statuses, "status", nil, "상태 필터")

	// runs view
	runsViewCmd := &cobra.Command{
		Use:   "view <run-id>",
		Short: "Run 상세 정보 조회",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsView(logger, args[0])
		},
	}

	// runs delete
	runsDeleteCmd := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Run 기록 삭제",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsDelete(logger, args[0])
		},
	}

	// runs traces
	runsTracesCmd := &cobra.Command{
		Use:   "traces",
		Short: "runs 디렉토리의 trace 파일 목록",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsTraces()
		},
	}

	// runs prune
	var maxAge time.Duration
	runsPruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "오래된 trace 파일 삭제",
		Long:  "비정상 종료로 남은 trace 파일 중 --max-age보다 오래된 것을 삭제합니다.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := runner.PruneTraces(common.GetRunsDir(), maxAge, time.Now(), logger)
			if err != nil {
				return fmt.Errorf("trace 정리 실패: %w", err)
			}
			fmt.Printf("%d개의 trace 파일을 삭제했습니다.\n", removed)
			return nil
		},
	}
	runsPruneCmd.Flags().DurationVar(&maxAge, "max-age", common.DefaultTraceMaxAge, "삭제 기준 나이")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsViewCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsTracesCmd)
	runsCmd.AddCommand(runsPruneCmd)

	return runsCmd
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func isValidRunStatus(status string) bool {
	switch status {
	case storage.RunStatusSucceeded, storage.RunStatusFailed, storage.RunStatusCrashed, storage.RunStatusStopped:
		return true
	}
	return false
}

func runRunsList(logger *zap.Logger, limit int, statuses []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	// 상태 검증
	for _, status := range statuses {
		if !isValidRunStatus(status) {
			return fmt.Errorf("잘못된 상태: %s (사용 가능: succeeded, failed, crashed, stopped)", status)
		}
	}

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	runs, err := repo.ListRuns(ctx, limit, statuses...)
	if err != nil {
		return fmt.Errorf("run 목록 조회 실패: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("저장된 run이 없습니다.")
		return nil
	}

	// 테이블 형식 출력
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN ID\tINPUT\tSTATUS\tSTEPS\tTOKENS\tCREATED")
	_, _ = fmt.Fprintln(w, "------\t-----\t------\t-----\t------\t-------")

	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			run.RunID,
			truncateString(run.Input, 40),
			run.Status,
			run.Steps,
			run.TotalTokens,
			run.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()

	return nil
}

func runRunsView(logger *zap.Logger, runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	run, err := repo.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("run 조회 실패: %w", err)
	}
	events, err := repo.ListRunEvents(ctx, runID)
	if err != nil {
		return fmt.Errorf("이벤트 조회 실패: %w", err)
	}

	// 상세 정보 출력
	fmt.Printf("=== Run 정보: %s ===\n\n", run.RunID)
	fmt.Printf("Input:       %s\n", run.Input)
	fmt.Printf("Generator:   %s\n", run.Generator)
	fmt.Printf("상태:        %s (exit %d)\n", run.Status, run.ExitCode)
	fmt.Printf("Steps:       %d\n", run.Steps)
	fmt.Printf("시간:        %.2fs\n", run.DurationSeconds)
	fmt.Printf("Tokens:      %d (prompt %d, completion %d)\n", run.TotalTokens, run.PromptTokens, run.CompletionTokens)
	if run.Cost != nil {
		fmt.Printf("비용:        $%.4f\n", *run.Cost)
	}
	if run.StartState != "" && run.StartState != "{}" {
		fmt.Printf("입력 변수:   %s\n", run.StartState)
	}
	if run.Output != "" {
		fmt.Printf("결과:        %s\n", run.Output)
	}
	fmt.Printf("생성일:      %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(events) == 0 {
		return nil
	}

	fmt.Printf("\n=== 이벤트 (%d) ===\n\n", len(events))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tTIME\tEVENT\tDATA")
	_, _ = fmt.Fprintln(w, "---\t----\t-----\t----")
	first := events[0].Timestamp
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%d\t+%.2fs\t%s\t%s\n",
			ev.Seq,
			ev.Timestamp-first,
			ev.Name,
			truncateString(ev.Data, 60),
		)
	}
	_ = w.Flush()

	return nil
}

func runRunsDelete(logger *zap.Logger, runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	if _, err := repo.GetRun(ctx, runID); err != nil {
		return fmt.Errorf("run 조회 실패: %w", err)
	}
	if err := repo.DeleteRun(ctx, runID); err != nil {
		return fmt.Errorf("run 삭제 실패: %w", err)
	}

	fmt.Printf("✓ Run '%s'이(가) 삭제되었습니다.\n", runID)
	return nil
}

func runRunsTraces() error {
	dir := common.GetRunsDir()
	traces, err := runner.ListTraces(dir)
	if err != nil {
		return fmt.Errorf("trace 목록 조회 실패: %w", err)
	}
	if len(traces) == 0 {
		fmt.Printf("%s에 trace 파일이 없습니다.\n", dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN ID\tSIZE\tMODIFIED\tPATH")
	_, _ = fmt.Fprintln(w, "------\t----\t--------\t----")
	for _, tr := range traces {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			tr.RunID,
			tr.Size,
			tr.ModTime.Format("2006-01-02 15:04"),
			tr.Path,
		)
	}
	_ = w.Flush()
	return nil
}

