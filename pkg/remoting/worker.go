package remoting

import (
	"sync"

	"github.com/sourcegraph/conc"
)

// workerPool 固定数量的处理协程。读循环只负责投递，处理器耗时不影响读帧；
// 队列满时投递阻塞，对端读取随之放缓
type workerPool struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan func()
	wg     conc.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &workerPool{tasks: make(chan func(), workers*64)}
	for i := 0; i < workers; i++ {
		p.wg.Go(func() {
			for task := range p.tasks {
				task()
			}
		})
	}
	return p
}

// submit 投递任务，池已关闭时返回 false
func (p *workerPool) submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// stop 停止接收新任务，等待已投递任务执行完
func (p *workerPool) stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
