// Package jobs tracks the pipelines a shell session has started.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/josephlewis42/flexsh/core/proc"
	"github.com/josephlewis42/flexsh/core/shell"
)

// ErrNoSuchJob is returned for unknown job ids.
var ErrNoSuchJob = errors.New("no such job")

// State is the lifecycle state of a job.
type State int

const (
	Running State = iota
	Stopped
	Exited
	Signaled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the state of a job plus how it ended.
type Status struct {
	State State
	// Code is the exit code for exited jobs and the reported code
	// (128+signal, or 130 for interrupts) for signaled jobs.
	Code int
	// Signal is the signal name for signaled jobs.
	Signal string
}

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	return s.State == Exited || s.State == Signaled
}

func (s Status) String() string {
	switch s.State {
	case Exited:
		return fmt.Sprintf("exited(%d)", s.Code)
	case Signaled:
		return fmt.Sprintf("signaled(%s)", s.Signal)
	default:
		return s.State.String()
	}
}

// Job is a snapshot of a pipeline started by the session.
type Job struct {
	ID         int
	Source     string
	Background bool
	Started    time.Time
	Status     Status
	Pids       []int
}

type entry struct {
	id         int
	pipeline   *shell.Pipeline
	background bool
	started    time.Time
	status     Status
	group      proc.Group
}

func (e *entry) snapshot() Job {
	var pids []int
	if e.group != nil {
		pids = e.group.Pids()
	}
	return Job{
		ID:         e.id,
		Source:     e.pipeline.Source,
		Background: e.background,
		Started:    e.started,
		Status:     e.status,
		Pids:       pids,
	}
}

// Table holds every job that hasn't been removed. It's safe for concurrent
// use, no method blocks on a process.
type Table struct {
	mu     sync.Mutex
	lastID int
	jobs   map[int]*entry
	now    func() time.Time
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		jobs: make(map[int]*entry),
		now:  time.Now,
	}
}

// Add registers a running job and takes ownership of its group. Ids start at
// 1 and are never reused.
func (t *Table) Add(p *shell.Pipeline, group proc.Group, background bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastID++
	t.jobs[t.lastID] = &entry{
		id:         t.lastID,
		pipeline:   p,
		background: background,
		started:    t.now(),
		status:     Status{State: Running},
		group:      group,
	}
	return t.lastID
}

// SetStatus records a job's new status.
func (t *Table) SetStatus(id int, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchJob, id)
	}
	e.status = status
	return nil
}

// Get returns a snapshot of a job.
func (t *Table) Get(id int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.snapshot(), true
}

// List returns snapshots of every job ordered by id.
func (t *Table) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Job, 0, len(t.jobs))
	for _, e := range t.jobs {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of jobs in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// take removes an entry from the table; the caller becomes responsible for
// releasing its group.
func (t *Table) take(id int) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.jobs[id]
	if ok {
		delete(t.jobs, id)
	}
	return e, ok
}

// Remove deletes a job and releases its group.
func (t *Table) Remove(id int) (Job, error) {
	e, ok := t.take(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %d", ErrNoSuchJob, id)
	}
	job := e.snapshot()
	return job, release(e)
}

// Collect removes every finished background job and returns them ordered by
// id.
func (t *Table) Collect() []Job {
	t.mu.Lock()
	var done []*entry
	for id, e := range t.jobs {
		if e.background && e.status.Terminal() {
			done = append(done, e)
			delete(t.jobs, id)
		}
	}
	t.mu.Unlock()

	out := make([]Job, 0, len(done))
	for _, e := range done {
		out = append(out, e.snapshot())
		release(e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Kill forcibly terminates a job. The job stays in the table until its
// status is recorded and collected.
func (t *Table) Kill(id int) error {
	t.mu.Lock()
	e, ok := t.jobs[id]
	var group proc.Group
	if ok {
		group = e.group
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchJob, id)
	}
	if group == nil {
		return nil
	}
	return group.Terminate()
}

// TerminateAll kills and removes every job, used when the session ends.
func (t *Table) TerminateAll() error {
	t.mu.Lock()
	all := make([]*entry, 0, len(t.jobs))
	for id, e := range t.jobs {
		all = append(all, e)
		delete(t.jobs, id)
	}
	t.mu.Unlock()

	var errs []error
	for _, e := range all {
		if e.group == nil {
			continue
		}
		if err := e.group.Terminate(); err != nil {
			errs = append(errs, err)
		}
		if err := release(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func release(e *entry) error {
	if e.group == nil {
		return nil
	}
	g := e.group
	e.group = nil
	return g.Release()
}
