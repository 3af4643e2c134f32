package domain

import "time"

// Checkpoint sources.
const (
	SourceLoop  = "loop"  // Written after a node step
	SourceInput = "input" // Written to keep merged input when a run fails before its first step
)

// RunStatus is the lifecycle state of an executor run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSuspended RunStatus = "suspended" // Resumable: the latest checkpoint points at a pending node
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Checkpoint is an immutable snapshot of a thread's state after a step.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	Step      int       `json:"step"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Graph     string    `json:"graph,omitempty"`
	Node      string    `json:"node,omitempty"` // Node that produced this snapshot
	Next      string    `json:"next,omitempty"` // Node to resume at, or End
	Source    string    `json:"source,omitempty"`
}

// Pending reports whether the checkpoint leaves work to resume.
func (c *Checkpoint) Pending() bool {
	return c.Next != "" && c.Next != End
}

// Status derives the thread status this checkpoint represents.
func (c *Checkpoint) Status() RunStatus {
	if c.Pending() {
		return StatusSuspended
	}
	return StatusCompleted
}

// Clone returns a copy whose State may be modified independently.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.State = c.State.Clone()
	return &cp
}
