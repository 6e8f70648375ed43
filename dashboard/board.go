// Package dashboard keeps a local, ordered copy of the signed-in user's
// tasks in sync with the remote task service.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"taskflow/domain"
)

// ErrUnknownTask is returned when an operation names a task that is not in
// the local list.
var ErrUnknownTask = errors.New("task not found")

// ErrAdvanceUnsupported is returned by AdvanceOnServer for remotes without
// a server-side status cycle.
var ErrAdvanceUnsupported = errors.New("remote cannot advance tasks")

const (
	titleFetchFailed  = "Error fetching tasks"
	titleCreated      = "Task created"
	titleCreateFailed = "Error creating task"
	titleUpdated      = "Task updated"
	titleUpdateFailed = "Error updating task"
	titleDeleted      = "Task deleted"
	titleDeleteFailed = "Error deleting task"
)

// Remote is the task service as seen by the signed-in user.
type Remote interface {
	List(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// Session reports the signed-in user. An empty id means signed out.
type Session interface {
	UserID() string
}

// Board reconciles local task state with the remote store. Local state only
// changes after the remote call succeeds, and every operation emits exactly
// one notification.
type Board struct {
	remote   Remote
	session  Session
	notifier Notifier

	mu      sync.Mutex
	tasks   []domain.Task
	loading bool
	user    string
	// gen changes on every sign-out or user switch; results of calls
	// started under an older gen are not applied.
	gen uint64
}

func New(remote Remote, session Session, notifier Notifier) *Board {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	return &Board{
		remote:   remote,
		session:  session,
		notifier: notifier,
		loading:  true,
	}
}

// Fetch replaces the local list with the user's tasks, newest first. It does
// nothing while signed out. On failure the previous list is kept. A response
// that arrives after the session changed is dropped without a notification.
func (b *Board) Fetch(ctx context.Context) error {
	user := b.session.UserID()
	if user == "" {
		return nil
	}
	gen := b.generation()
	tasks, err := b.remote.List(ctx)

	b.mu.Lock()
	if !b.current(gen, user) {
		b.mu.Unlock()
		return nil
	}
	b.loading = false
	if err == nil {
		b.user = user
		b.tasks = cloneTasks(tasks)
		domain.SortNewestFirst(b.tasks)
	}
	b.mu.Unlock()

	if err != nil {
		b.notifier.Notify(failure(titleFetchFailed, err))
		return err
	}
	return nil
}

// SessionChanged refetches when the signed-in user differs from the one the
// list was loaded for. Signing out or switching users clears the list first.
func (b *Board) SessionChanged(ctx context.Context) error {
	user := b.session.UserID()
	b.mu.Lock()
	if user != "" && user == b.user {
		b.mu.Unlock()
		return nil
	}
	b.gen++
	b.user = ""
	b.tasks = nil
	b.mu.Unlock()
	if user == "" {
		return nil
	}
	return b.Fetch(ctx)
}

func (b *Board) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// current reports whether a call started under gen for user may still touch
// local state. Callers hold b.mu.
func (b *Board) current(gen uint64, user string) bool {
	return gen == b.gen && b.session.UserID() == user
}

// Create submits draft and prepends the stored task.
func (b *Board) Create(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	user, gen := b.session.UserID(), b.generation()
	task, err := b.remote.Create(ctx, draft)
	if err != nil {
		b.notifier.Notify(failure(titleCreateFailed, err))
		return domain.Task{}, err
	}

	b.mu.Lock()
	if b.current(gen, user) {
		b.tasks = append([]domain.Task{task.Clone()}, b.tasks...)
	}
	b.mu.Unlock()

	b.notifier.Notify(success(titleCreated, "Your task has been created successfully."))
	return task, nil
}

// Update submits patch and replaces the matching local task with the stored one.
func (b *Board) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	user, gen := b.session.UserID(), b.generation()
	task, err := b.remote.Update(ctx, id, patch)
	return b.replaced(gen, user, id, task, err)
}

// replaced reconciles the outcome of a call that returns the stored task.
func (b *Board) replaced(gen uint64, user, id string, task domain.Task, err error) (domain.Task, error) {
	if err != nil {
		b.notifier.Notify(failure(titleUpdateFailed, err))
		return domain.Task{}, err
	}

	b.mu.Lock()
	if b.current(gen, user) {
		for i := range b.tasks {
			if b.tasks[i].ID == id {
				b.tasks[i] = task.Clone()
			}
		}
	}
	b.mu.Unlock()

	b.notifier.Notify(success(titleUpdated, "Your task has been updated successfully."))
	return task, nil
}

// Delete removes the task remotely, then locally.
func (b *Board) Delete(ctx context.Context, id string) error {
	user, gen := b.session.UserID(), b.generation()
	if err := b.remote.Delete(ctx, id); err != nil {
		b.notifier.Notify(failure(titleDeleteFailed, err))
		return err
	}

	b.mu.Lock()
	if b.current(gen, user) {
		kept := b.tasks[:0]
		for _, t := range b.tasks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		b.tasks = kept
	}
	b.mu.Unlock()

	b.notifier.Notify(success(titleDeleted, "Your task has been deleted successfully."))
	return nil
}

// Advance moves a local task one step along the status cycle by sending an
// update that carries only the new status.
func (b *Board) Advance(ctx context.Context, id string) (domain.Task, error) {
	b.mu.Lock()
	var (
		current domain.Status
		found   bool
	)
	for _, t := range b.tasks {
		if t.ID == id {
			current, found = t.Status, true
			break
		}
	}
	b.mu.Unlock()

	if !found {
		b.notifier.Notify(failure(titleUpdateFailed, ErrUnknownTask))
		return domain.Task{}, ErrUnknownTask
	}
	next := domain.NextStatus(current)
	return b.Update(ctx, id, domain.TaskPatch{Status: &next})
}

// Advancer is implemented by remotes that apply the status cycle themselves.
type Advancer interface {
	Advance(ctx context.Context, id string) (domain.Task, error)
}

// AdvanceOnServer lets the remote apply the status cycle to its stored
// status, so it does not depend on the local list being fresh. It fails
// with ErrAdvanceUnsupported when the remote cannot do that.
func (b *Board) AdvanceOnServer(ctx context.Context, id string) (domain.Task, error) {
	adv, ok := b.remote.(Advancer)
	if !ok {
		b.notifier.Notify(failure(titleUpdateFailed, ErrAdvanceUnsupported))
		return domain.Task{}, ErrAdvanceUnsupported
	}
	user, gen := b.session.UserID(), b.generation()
	task, err := adv.Advance(ctx, id)
	return b.replaced(gen, user, id, task, err)
}

// Tasks returns a copy of the local list.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneTasks(b.tasks)
}

// Loading reports whether the first fetch is still outstanding.
func (b *Board) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// View returns the tasks matching f in list order.
func (b *Board) View(f domain.Filter) []domain.Task {
	return f.Apply(b.Tasks())
}

func (b *Board) Stats() domain.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.ComputeStats(b.tasks)
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
