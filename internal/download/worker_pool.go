// Package download 提供下载相关功能
package download

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/geoyee/regiontiles/internal/model"
)

// WorkerPool 工作池
type WorkerPool struct {
	workers   int
	TaskQueue chan *model.DownloadTask
	Wg        sync.WaitGroup
	stopped   atomic.Bool
	mu        sync.RWMutex
}

// NewWorkerPool 创建工作池
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		workers:   workers,
		TaskQueue: make(chan *model.DownloadTask, workers*2),
	}
}

// Start 启动工作池，每个任务交给 handle 处理
func (wp *WorkerPool) Start(handle func(*model.DownloadTask)) {
	wp.Wg.Add(wp.workers)
	for i := 0; i < wp.workers; i++ {
		go func() {
			defer wp.Wg.Done()
			for task := range wp.TaskQueue {
				handle(task)
			}
		}()
	}
}

// Stop 关闭任务队列并等待所有工作者退出，可重复调用
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.stopped.Load() {
		wp.stopped.Store(true)
		close(wp.TaskQueue)
	}
	wp.mu.Unlock()
	wp.Wg.Wait()
}

// SubmitTask 提交任务，工作池已停止或 ctx 已取消时返回 false
func (wp *WorkerPool) SubmitTask(ctx context.Context, task *model.DownloadTask) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped.Load() {
		return false
	}
	select {
	case wp.TaskQueue <- task:
		return true
	case <-ctx.Done():
		return false
	}
}
