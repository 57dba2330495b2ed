package eventlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrStopFollowing을 콜백에서 반환하면 Follow가 정상 종료합니다.
var ErrStopFollowing = errors.New("eventlog: stop following")

// Handler는 재생되는 이벤트를 처리합니다.
type Handler func(Event) error

// Replay는 trace 파일의 이벤트를 원래 간격대로 재생합니다.
// fast가 true이면 대기 없이 재생합니다.
func Replay(ctx context.Context, path string, fast bool, fn Handler) error {
	events, err := ReadFile(path)
	if err != nil {
		return err
	}
	return ReplayEvents(ctx, events, fast, fn)
}

// ReplayEvents는 이벤트 목록을 timestamp 간격에 맞춰 fn에 전달합니다.
func ReplayEvents(ctx context.Context, events []Event, fast bool, fn Handler) error {
	var prev float64
	for i, ev := range events {
		if !fast && i > 0 {
			if delta := ev.Timestamp - prev; delta > 0 {
				timer := time.NewTimer(time.Duration(delta * float64(time.Second)))
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
		prev = ev.Timestamp

		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// Follow는 실행 중인 trace 파일을 tail하면서 새 이벤트를 fn에 전달합니다.
// 파일이 아직 없으면 생성될 때까지 기다립니다.
func Follow(ctx context.Context, path string, fn Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("eventlog: watcher 생성 실패: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("eventlog: %s 감시 실패: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path}
	if err := t.drain(fn); err != nil {
		return stopErr(err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return nil
			}
			if err := t.drain(fn); err != nil {
				return stopErr(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("eventlog: watcher error: %w", err)
		}
	}
}

func stopErr(err error) error {
	if errors.Is(err, ErrStopFollowing) {
		return nil
	}
	return err
}

// tailer는 마지막으로 읽은 offset 이후의 완성된 줄만 읽습니다.
type tailer struct {
	path   string
	offset int64
}

func (t *tailer) drain(fn Handler) error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			// 개행 없는 마지막 줄은 아직 기록 중이므로 다음 알림에서 다시 읽습니다.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		t.offset += int64(len(line))

		if len(line) <= 1 {
			continue
		}
		ev, err := ParseLine(line)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
