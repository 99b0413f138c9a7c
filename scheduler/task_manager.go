package scheduler

import (
	"context"
	"sync"
	"time"

	"pennytrack/logger"
	"pennytrack/models"
)

// TaskFunc is the body of a background task; its result is stored on the task
type TaskFunc func(ctx context.Context) (interface{}, error)

const (
	taskQueueSize = 100
	taskRetention = time.Hour
)

type queuedTask struct {
	task *models.Task
	fn   TaskFunc
}

// TaskManager runs API-triggered jobs on a bounded worker pool
type TaskManager struct {
	tasks      map[string]*models.Task
	taskQueue  chan queuedTask
	sem        chan struct{}
	workers    int
	maxWorkers int
	mutex      sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	log        *logger.Logger
}

// NewTaskManager creates a task manager and starts its dispatcher
func NewTaskManager(maxWorkers int) *TaskManager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	tm := &TaskManager{
		tasks:      make(map[string]*models.Task),
		taskQueue:  make(chan queuedTask, taskQueueSize),
		sem:        make(chan struct{}, maxWorkers),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.ForScheduler(),
	}

	go tm.processTasks()
	tm.log.Info().Int("max_workers", maxWorkers).Msg("Task manager started")
	return tm
}

// SubmitTask queues fn and returns a snapshot of the new task
func (tm *TaskManager) SubmitTask(kind models.TaskKind, subject string, fn TaskFunc) models.Task {
	task := models.NewTask(kind, subject)

	tm.mutex.Lock()
	tm.tasks[task.ID] = task
	tm.mutex.Unlock()

	select {
	case tm.taskQueue <- queuedTask{task: task, fn: fn}:
		tm.log.Debug().Str("task", task.ID).Str("kind", string(kind)).Msg("Task submitted")
	default:
		tm.mutex.Lock()
		task.Fail("Task queue is full")
		tm.mutex.Unlock()
		tm.log.Warn().Str("task", task.ID).Msg("Failed to submit task, queue full")
	}

	return tm.snapshot(task)
}

// GetTask returns a copy of the task
func (tm *TaskManager) GetTask(taskID string) (models.Task, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	task, exists := tm.tasks[taskID]
	if !exists {
		return models.Task{}, false
	}
	return *task, true
}

// GetActiveTasks returns copies of queued and running tasks
func (tm *TaskManager) GetActiveTasks() []models.Task {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	var active []models.Task
	for _, task := range tm.tasks {
		if task.IsActive() {
			active = append(active, *task)
		}
	}
	return active
}

// CleanupOldTasks removes completed tasks older than maxAge
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for taskID, task := range tm.tasks {
		if task.IsCompleted() && task.CreatedAt.Before(cutoff) {
			delete(tm.tasks, taskID)
		}
	}
}

func (tm *TaskManager) processTasks() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case qt := <-tm.taskQueue:
			select {
			case tm.sem <- struct{}{}:
			case <-tm.ctx.Done():
				return
			}
			tm.mutex.Lock()
			tm.workers++
			tm.mutex.Unlock()
			tm.wg.Add(1)
			go tm.worker(qt)

		case <-ticker.C:
			tm.CleanupOldTasks(taskRetention)

		case <-tm.ctx.Done():
			return
		}
	}
}

func (tm *TaskManager) worker(qt queuedTask) {
	defer func() {
		tm.mutex.Lock()
		tm.workers--
		tm.mutex.Unlock()
		<-tm.sem
		tm.wg.Done()
	}()

	tm.mutex.Lock()
	qt.task.Start()
	tm.mutex.Unlock()

	result, err := qt.fn(tm.ctx)

	tm.mutex.Lock()
	if err != nil {
		qt.task.Fail(err.Error())
	} else {
		qt.task.Complete(result)
	}
	duration := qt.task.Duration()
	tm.mutex.Unlock()

	event := tm.log.Info()
	if err != nil {
		event = tm.log.Warn().Err(err)
	}
	event.Str("task", qt.task.ID).Str("kind", string(qt.task.Kind)).Dur("duration", duration).Msg("Task finished")
}

// Stop cancels running tasks and waits for workers to exit
func (tm *TaskManager) Stop() {
	tm.cancel()
	tm.wg.Wait()
	tm.log.Info().Msg("Task manager stopped")
}

// GetStats returns task manager statistics
func (tm *TaskManager) GetStats() map[string]interface{} {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	statusCounts := make(map[string]int)
	for _, task := range tm.tasks {
		statusCounts[string(task.Status)]++
	}

	return map[string]interface{}{
		"total_tasks":     len(tm.tasks),
		"active_workers":  tm.workers,
		"max_workers":     tm.maxWorkers,
		"queue_size":      len(tm.taskQueue),
		"tasks_by_status": statusCounts,
	}
}

func (tm *TaskManager) snapshot(task *models.Task) models.Task {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return *task
}
