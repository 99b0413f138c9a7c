package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TaskStatus represents the status of an async task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskKind names the job a task runs
type TaskKind string

const (
	TaskKindSync     TaskKind = "sync"
	TaskKindDiscover TaskKind = "discover"
	TaskKindCheck    TaskKind = "check"
)

// Task is an API-triggered background job
type Task struct {
	ID          string      `json:"id"`
	Kind        TaskKind    `json:"kind"`
	Subject     string      `json:"subject,omitempty"`
	Status      TaskStatus  `json:"status"`
	Message     string      `json:"message"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// NewTask creates a queued task
func NewTask(kind TaskKind, subject string) *Task {
	return &Task{
		ID:        generateTaskID(),
		Kind:      kind,
		Subject:   subject,
		Status:    TaskStatusQueued,
		Message:   "Task queued for processing",
		CreatedAt: time.Now(),
	}
}

// Start marks the task as processing
func (t *Task) Start() {
	t.Status = TaskStatusProcessing
	t.Message = "Running " + string(t.Kind)
	now := time.Now()
	t.StartedAt = &now
}

// Complete marks the task as completed with result
func (t *Task) Complete(result interface{}) {
	t.Status = TaskStatusCompleted
	t.Message = string(t.Kind) + " completed"
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
}

// Fail marks the task as failed
func (t *Task) Fail(reason string) {
	t.Status = TaskStatusFailed
	t.Message = string(t.Kind) + " failed"
	t.Error = reason
	now := time.Now()
	t.CompletedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsActive returns true if the task is still queued or running
func (t *Task) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Duration returns how long the task has been running
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

func generateTaskID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "task_" + time.Now().Format("20060102150405") + "_" + hex.EncodeToString(b)
}
