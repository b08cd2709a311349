package ern

import (
	"sync"

	"github.com/thejerf/suture"
)

// Reactor is the user function an actor mailbox's scheduler task calls
// for every entry drained from the mailbox: a term on success, or an
// error when the head of the queue was a raised signal. Install one
// with Node.CreateActorMbox.
type Reactor func(Term, error)

// task is one mailbox's scheduled reaction: a dedicated goroutine that
// wakes on notify, drains whatever arrived, and goes back to sleep.
// Exactly one invocation of reactor is ever in flight for a given
// task, which is what "per-task serialization" means here.
type task struct {
	mb      *Mailbox
	reactor Reactor
	wake    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	token    suture.ServiceToken
}

// scheduler is the actor dispatcher: a goroutine per reacting mailbox,
// woken by notify rather than polled, following the same
// goroutine-as-continuation idiom the mailbox's own blocking Receive
// uses with sync.Cond.
type scheduler struct {
	node *Node

	mu    sync.Mutex
	tasks map[*Mailbox]*task
}

func newScheduler(node *Node) *scheduler {
	return &scheduler{node: node, tasks: make(map[*Mailbox]*task)}
}

// react registers fn as mb's reactor and adds its dispatch loop to the
// node's supervisor, as a suture.Service: a panic in a reactor is
// recovered and the task restarted rather than taking the node down.
func (s *scheduler) react(mb *Mailbox, fn Reactor) *task {
	t := &task{mb: mb, reactor: fn, wake: make(chan struct{}, 1), done: make(chan struct{})}
	s.mu.Lock()
	s.tasks[mb] = t
	s.mu.Unlock()
	t.token = s.node.supervisor.Add(t)
	return t
}

// Serve drains mb on every wake, until Stop closes done. It implements
// suture.Service.
func (t *task) Serve() {
	for {
		select {
		case <-t.wake:
			for {
				term, err, ok := t.mb.Poll()
				if !ok {
					break
				}
				t.reactor(term, err)
			}
		case <-t.done:
			return
		}
	}
}

// Stop ends the task's dispatch loop. It is idempotent so both a
// direct scheduler.cancel and a supervisor-driven Stop can call it.
func (t *task) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// notify wakes mb's reactor task, if one is registered, so it drains
// whatever was just delivered. A no-op for a mailbox with no task,
// which is the common case while a mailbox is still being set up.
func (s *scheduler) notify(mb *Mailbox) {
	s.mu.Lock()
	t := s.tasks[mb]
	s.mu.Unlock()
	if t == nil {
		return
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// cancel stops mb's reactor task and forgets it.
func (s *scheduler) cancel(mb *Mailbox) {
	s.mu.Lock()
	t, ok := s.tasks[mb]
	if ok {
		delete(s.tasks, mb)
	}
	s.mu.Unlock()
	if ok {
		go s.node.supervisor.Remove(t.token)
	}
}
