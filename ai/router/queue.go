package router

import "github.com/pkg/errors"

// DefaultMaxDepth is the default queue capacity.
const DefaultMaxDepth = 50

// ErrQueueFull is returned when the queue is at capacity and no
// background victim exists.
var ErrQueueFull = errors.New("task queue full")

// taskQueue is the three-tier priority queue. It is owned exclusively by
// the scheduling loop; no method locks.
type taskQueue struct {
	urgent     []*Task
	normal     []*Task
	background []*Task
	capacity   int
}

func newTaskQueue(capacity int) *taskQueue {
	if capacity <= 0 {
		capacity = DefaultMaxDepth
	}
	return &taskQueue{capacity: capacity}
}

func (q *taskQueue) len() int {
	return len(q.urgent) + len(q.normal) + len(q.background)
}

func (q *taskQueue) counts() (urgent, normal, background int) {
	return len(q.urgent), len(q.normal), len(q.background)
}

// push enqueues a task at the back of its priority class. At capacity
// the oldest background task is evicted and returned as the victim; with
// no victim available the push fails with ErrQueueFull.
func (q *taskQueue) push(t *Task) (victim *Task, err error) {
	if q.len() >= q.capacity {
		if len(q.background) == 0 {
			return nil, ErrQueueFull
		}
		victim = q.background[0]
		q.background = q.background[1:]
	}

	switch t.Priority {
	case PriorityUrgent:
		q.urgent = append(q.urgent, t)
	case PriorityNormal:
		q.normal = append(q.normal, t)
	default:
		q.background = append(q.background, t)
	}
	return victim, nil
}

// pushFront re-inserts a preempted task at the front of its original
// priority class. Capacity is not enforced here: the preempted task
// keeps its claim on the scheduler, so a full queue briefly holds one
// extra entry until the next pop.
func (q *taskQueue) pushFront(t *Task) {
	switch t.Priority {
	case PriorityUrgent:
		q.urgent = append([]*Task{t}, q.urgent...)
	case PriorityNormal:
		q.normal = append([]*Task{t}, q.normal...)
	default:
		q.background = append([]*Task{t}, q.background...)
	}
}

// pop removes and returns the next task: highest priority first, FIFO
// within a class.
func (q *taskQueue) pop() *Task {
	switch {
	case len(q.urgent) > 0:
		t := q.urgent[0]
		q.urgent = q.urgent[1:]
		return t
	case len(q.normal) > 0:
		t := q.normal[0]
		q.normal = q.normal[1:]
		return t
	case len(q.background) > 0:
		t := q.background[0]
		q.background = q.background[1:]
		return t
	}
	return nil
}

// remove deletes a queued task by ID and returns it.
func (q *taskQueue) remove(id string) *Task {
	for _, class := range []*[]*Task{&q.urgent, &q.normal, &q.background} {
		for i, t := range *class {
			if t.ID == id {
				*class = append((*class)[:i], (*class)[i+1:]...)
				return t
			}
		}
	}
	return nil
}

// drain empties the queue and returns the removed tasks.
func (q *taskQueue) drain() []*Task {
	out := make([]*Task, 0, q.len())
	out = append(out, q.urgent...)
	out = append(out, q.normal...)
	out = append(out, q.background...)
	q.urgent = nil
	q.normal = nil
	q.background = nil
	return out
}
