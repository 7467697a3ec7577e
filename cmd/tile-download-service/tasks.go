package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/geoyee/regiontiles/internal/download"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/region"
)

type TaskStatus string

const (
	StatusPending  TaskStatus = "pending"
	StatusRunning  TaskStatus = "running"
	StatusStopped  TaskStatus = "stopped"
	StatusComplete TaskStatus = "complete"
	StatusFailed   TaskStatus = "failed"
)

var ErrTaskExists = errors.New("task already exists")

// TaskInfo is the externally visible state of a task.
type TaskInfo struct {
	ID          string     `json:"id"`
	Status      TaskStatus `json:"status"`
	Style       string     `json:"style"`
	OutputDir   string     `json:"output_dir"`
	Regions     int        `json:"regions"`
	Requested   int        `json:"requested"`
	Planned     int64      `json:"planned"`
	HighestZoom *int       `json:"highest_zoom"`
	Progress    float64    `json:"progress"`
	Fetched     int64      `json:"fetched"`
	Cached      int64      `json:"cached"`
	Failed      int64      `json:"failed"`
	BytesTotal  int64      `json:"bytes_total"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Task struct {
	info       TaskInfo
	config     *model.Config
	regions    *region.Set
	cancelFunc context.CancelFunc
	downloader *download.Downloader
	mu         sync.RWMutex
}

// Info returns a copy of the task state, with live counters while running.
func (t *Task) Info() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := t.info
	if info.Status == StatusRunning && t.downloader != nil {
		applyStats(&info, t.downloader.StatsMonitor.Snapshot())
	}
	return info
}

func (t *Task) start(d *download.Downloader, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloader = d
	t.cancelFunc = cancel
	t.info.Status = StatusRunning
	t.info.StartTime = time.Now()
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Status = StatusFailed
	t.info.Error = err.Error()
	t.info.EndTime = time.Now()
}

func (t *Task) complete(plan *model.TilePlan, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.info.EndTime = time.Now()
	if t.downloader != nil {
		applyStats(&t.info, t.downloader.StatsMonitor.Snapshot())
	}
	if plan != nil {
		t.info.Requested = plan.Requested()
		t.info.Planned = int64(plan.ToFetch.Len())
		if plan.HasHighestZoom() {
			z := plan.HighestZoom
			t.info.HighestZoom = &z
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		t.info.Status = StatusStopped
	case err != nil:
		t.info.Status = StatusFailed
		t.info.Error = err.Error()
	case t.info.Failed > 0 && t.info.Fetched+t.info.Cached == 0:
		t.info.Status = StatusFailed
		t.info.Error = fmt.Sprintf("all %d tiles failed", t.info.Failed)
	default:
		t.info.Status = StatusComplete
	}
}

// cancel stops a running task and reports whether it was running.
func (t *Task) cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info.Status != StatusRunning {
		return false
	}
	t.downloader.Stop()
	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	applyStats(&t.info, t.downloader.StatsMonitor.Snapshot())
	t.info.Status = StatusStopped
	return true
}

func applyStats(info *TaskInfo, s model.DownloadStats) {
	info.Planned = s.Total
	info.Fetched = s.Fetched
	info.Cached = s.Cached
	info.Failed = s.Failed
	info.BytesTotal = s.BytesTotal
	if s.Total > 0 {
		info.Progress = float64(s.Fetched+s.Cached+s.Failed) / float64(s.Total) * 100
	} else {
		info.Progress = 100
	}
}

type TaskManager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
}

func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks: make(map[string]*Task),
	}
}

func (tm *TaskManager) CreateTask(id string, config *model.Config, regions *region.Set) (*Task, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.tasks[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, id)
	}
	task := &Task{
		info: TaskInfo{
			ID:        id,
			Status:    StatusPending,
			Style:     config.Style,
			OutputDir: config.OutputDir,
			Regions:   regions.Len(),
		},
		config:  config,
		regions: regions,
	}
	tm.tasks[id] = task
	return task, nil
}

func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, ok := tm.tasks[id]
	return task, ok
}

// ListTasks returns task states ordered by id.
func (tm *TaskManager) ListTasks() []TaskInfo {
	tm.mu.RLock()
	tasks := make([]*Task, 0, len(tm.tasks))
	for _, task := range tm.tasks {
		tasks = append(tasks, task)
	}
	tm.mu.RUnlock()

	infos := make([]TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, task.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (tm *TaskManager) DeleteTask(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if task, ok := tm.tasks[id]; ok {
		task.cancel()
		delete(tm.tasks, id)
		return true
	}
	return false
}

func (tm *TaskManager) StopAll() {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, task := range tm.tasks {
		task.cancel()
	}
}
