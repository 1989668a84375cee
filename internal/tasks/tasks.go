// Package tasks provides small concurrency helpers. RunConcurrently runs
// Doctor's independent checks in parallel. TaskManager is a cancellable,
// single-flight task runner the same shape the prior implementation's
// TaskManager gives its background log-streaming tasks (pkg/tasks/tasks.go);
// no component in this repository uses it. Only one task runs at a time per
// TaskManager; starting a new one stops whatever was running.
package tasks

import "sync"

// TaskManager runs at most one cancellable background task at a time.
type TaskManager struct {
	mu          sync.Mutex
	currentTask *Task
}

// Task is a running background job with a stop signal.
type Task struct {
	stop          chan struct{}
	notifyStopped chan struct{}
}

// NewTaskManager returns an empty manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{}
}

// NewTask stops any currently running task, then starts f in a goroutine,
// passing it a stop channel it should select on to cancel promptly.
func (t *TaskManager) NewTask(f func(stop chan struct{})) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentTask != nil {
		t.currentTask.Stop()
	}

	stop := make(chan struct{}, 1)
	notifyStopped := make(chan struct{})

	t.currentTask = &Task{stop: stop, notifyStopped: notifyStopped}

	go func() {
		f(stop)
		notifyStopped <- struct{}{}
	}()
}

// Stop signals the task and blocks until it acknowledges.
func (t *Task) Stop() {
	t.stop <- struct{}{}
	<-t.notifyStopped
}

// RunConcurrently runs each function in its own goroutine and waits for all
// of them, collecting results in the same order the functions were given —
// the pattern Doctor uses to run its independent checks in parallel
// so doctor can run all its health checks concurrently.
func RunConcurrently[T any](fns []func() T) []T {
	results := make([]T, len(fns))
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i, fn := range fns {
		i, fn := i, fn
		go func() {
			defer wg.Done()
			results[i] = fn()
		}()
	}
	wg.Wait()
	return results
}
