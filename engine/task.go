package engine

import (
	"fmt"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

type (
	// Task is a unit of work queued for the tick thread. Launch runs at the
	// start of the next tick, before any instance runs. Tasks enqueued by a
	// running task run on the tick after.
	Task interface {
		Launch(tx *Txn) error
	}

	// Locker is implemented by tasks that touch graph objects; the engine
	// locks the objects in the global order for the duration of Launch.
	Locker interface {
		Objects() []graph.ObjectID
	}

	// TaskFunc adapts a function to a Task.
	TaskFunc func(tx *Txn) error

	InitAudioTask struct {
		Audio  graph.ObjectID
		Scopes recall.ScopeMask
	}

	StartNoteTask struct {
		Audio graph.ObjectID
		Pad   int
		Scope recall.Scope
		Ticks int
		// Started, if not nil, receives the RecallID of the note, or nil if
		// it failed to start. The send does not block.
		Started chan<- *RecallID
	}

	CancelContextTask struct {
		RecallID *RecallID
	}

	CancelRecallTask struct {
		Instance graph.ObjectID
	}

	RemoveRecallTask struct {
		Container graph.ObjectID
		Template  graph.ObjectID
		Scope     recall.Scope
		RemoveAll bool
	}

	StopScopeTask struct {
		Audio graph.ObjectID
		Scope recall.Scope
	}

	ResizeTask struct {
		Audio graph.ObjectID
		Side  recall.Side
		Pads  int
	}
)

func (f TaskFunc) Launch(tx *Txn) error { return f(tx) }

func (t InitAudioTask) Launch(tx *Txn) error {
	_, err := tx.InitAudio(t.Audio, t.Scopes)
	return err
}

func (t InitAudioTask) Objects() []graph.ObjectID { return []graph.ObjectID{t.Audio} }

func (t StartNoteTask) Launch(tx *Txn) error {
	rid, err := tx.StartNote(t.Audio, t.Pad, t.Scope, t.Ticks)
	if t.Started != nil {
		TrySend(t.Started, rid)
	}
	return err
}

func (t StartNoteTask) Objects() []graph.ObjectID { return []graph.ObjectID{t.Audio} }

func (t CancelContextTask) Launch(tx *Txn) error {
	tx.CancelContext(t.RecallID)
	return nil
}

func (t CancelRecallTask) Launch(tx *Txn) error { return tx.CancelRecall(t.Instance) }

func (t RemoveRecallTask) Launch(tx *Txn) error {
	return tx.RemoveRecall(t.Container, t.Template, t.Scope, t.RemoveAll)
}

func (t StopScopeTask) Launch(tx *Txn) error { return tx.StopScope(t.Audio, t.Scope) }

func (t StopScopeTask) Objects() []graph.ObjectID { return []graph.ObjectID{t.Audio} }

func (t ResizeTask) Launch(tx *Txn) error {
	_, err := tx.SetPads(t.Audio, t.Side, t.Pads)
	return err
}

func (t ResizeTask) Objects() []graph.ObjectID { return []graph.ObjectID{t.Audio} }

// Enqueue queues a task for the next tick. It never blocks; if the queue is
// full, the task is dropped and ErrTaskQueueFull returned.
func (e *Engine) Enqueue(t Task) error {
	if !TrySend(e.tasks, t) {
		return fmt.Errorf("%T: %w", t, ErrTaskQueueFull)
	}
	return nil
}

// runTasks runs the tasks queued before the tick started.
func (e *Engine) runTasks() {
	for n := len(e.tasks); n > 0; n-- {
		t := <-e.tasks
		if err := e.launch(t); err != nil {
			e.stats.taskErrors.Add(1)
			e.log.Warn("task failed", "task", fmt.Sprintf("%T", t), "err", err)
		}
	}
}

func (e *Engine) launch(t Task) error {
	if l, ok := t.(Locker); ok {
		var ids []graph.ObjectID
		for _, id := range l.Objects() {
			if _, err := e.graph.Audio(id); err == nil {
				ids = append(ids, id)
			}
		}
		defer e.graph.Lock(e.holder, ids...)()
	}
	return t.Launch(e.tx)
}
