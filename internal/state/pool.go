package state

import (
	"sync"

	"go.uber.org/zap"
)

const (
	defaultPoolWorkers = 4
	defaultPoolQueue   = 256
)

// workerPool은 listener 호출을 고정된 수의 goroutine에서 실행합니다.
// Submit은 큐가 찰 때까지 즉시 반환하고, Wait로 대기 중인 작업을 모두 비울 수 있습니다.
type workerPool struct {
	jobs    chan func()
	pending sync.WaitGroup
	workers sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  *zap.Logger
}

func newWorkerPool(workers, queue int, logger *zap.Logger) *workerPool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	if queue <= 0 {
		queue = defaultPoolQueue
	}
	p := &workerPool{
		jobs:   make(chan func(), queue),
		logger: logger,
	}
	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *workerPool) loop() {
	defer p.workers.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *workerPool) run(job func()) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("listener panic", zap.Any("panic", r))
		}
	}()
	job()
}

// Submit은 작업을 큐에 넣습니다. 닫힌 pool에서는 false를 반환합니다.
func (p *workerPool) Submit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.pending.Add(1)
	p.jobs <- job
	return true
}

// Wait는 지금까지 제출된 작업이 모두 끝날 때까지 기다립니다.
func (p *workerPool) Wait() {
	p.pending.Wait()
}

// Close는 남은 작업을 처리한 뒤 worker를 종료합니다.
func (p *workerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.workers.Wait()
}
