package chunkmanager

import (
	"log"
	"sync"
)

// Executor выполняет чистые задачи построения вне контекста стримера
type Executor interface {
	Submit(job func())
	Close()
}

// WorkerPool - фиксированный набор горутин, читающих задачи из канала
type WorkerPool struct {
	name string
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

// NewWorkerPool запускает workers горутин. Очередь буферизована,
// Submit блокируется только при переполнении.
func NewWorkerPool(name string, workers, queue int) *WorkerPool {
	workers = max(workers, 1)
	queue = max(queue, workers)
	p := &WorkerPool{name: name, jobs: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[WorkerPool] panic in %s job: %v", p.name, r)
				}
			}()
			job()
		}()
	}
}

// Submit ставит задачу в очередь
func (p *WorkerPool) Submit(job func()) {
	p.jobs <- job
}

// Close закрывает очередь и ждет завершения текущих задач
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}

// InlineExecutor выполняет задачу сразу в вызывающей горутине.
// Дает детерминированный порядок в тестах и утилитах.
type InlineExecutor struct{}

func (InlineExecutor) Submit(job func()) { job() }

func (InlineExecutor) Close() {}
