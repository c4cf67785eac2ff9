// Package router schedules tasks between the local inference engine and
// the cloud providers: it scores request complexity, derives a priority,
// decides the route, queues under backpressure and preempts running
// low-priority work for urgent arrivals.
package router

import (
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Route is the executor choice for a task.
type Route string

const (
	RouteLocal Route = "local"
	RouteCloud Route = "cloud"
)

// Priority orders tasks in the queue: URGENT > NORMAL > BACKGROUND.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	default:
		return "background"
	}
}

// Task is one unit of work: a single user message to be answered. It is
// immutable after admission except for the fields derived by scoring and
// dispatch.
type Task struct {
	ID        string
	ChannelID string
	UserID    string
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time

	// Derived by scoring on submission.
	Complexity int
	Priority   Priority
	Realtime   bool
	Privacy    bool

	// Derived at dispatch time.
	Route   Route
	Context string
}

// NewTask creates a task for one incoming message.
func NewTask(channelID, userID, message string, metadata map[string]string) *Task {
	return &Task{
		ID:        shortuuid.New(),
		ChannelID: channelID,
		UserID:    userID,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}
