package core

import "sync"

// TaskQueue is the FIFO queue of client input waiting for the next human turn.
type TaskQueue struct {
	mu    sync.Mutex
	items []string
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue { return &TaskQueue{} }

// Enqueue appends a task.
func (q *TaskQueue) Enqueue(task string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, task)
}

// TryDequeue removes and returns the oldest task, if any.
func (q *TaskQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	task := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return task, true
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
