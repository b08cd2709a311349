package ern

import (
	"sync"
	"time"
)

// OtpMsg is one entry a mailbox can hold: a message delivered from a
// pid (local or remote), optionally addressed via a registered name
// rather than directly by pid.
type OtpMsg struct {
	From    Pid
	ToName  Atom // empty unless this arrived via REG_SEND
	Payload Term
}

// qEntry is either a normal message or a raised signal (an exit or an
// auth failure) occupying the same FIFO position a message would.
// Receive treats a signal entry at the head of the queue by returning
// its error instead of a term, per the mailbox contract.
type qEntry struct {
	msg OtpMsg
	err error
}

// Mailbox is a unidirectional, FIFO, pid-addressed message queue.
// A synchronous Mailbox is driven by a consumer calling Receive or
// ReceiveTimeout; an actor Mailbox (see Node.CreateMbox) instead wakes
// the Node's scheduler on delivery and disallows blocking receive.
type Mailbox struct {
	self Pid
	node *Node

	mu    sync.Mutex
	cond  *sync.Cond
	queue []qEntry

	name   Atom
	links  []Pid
	closed bool
	actor  bool
}

func newMailbox(self Pid, node *Node, actor bool) *Mailbox {
	mb := &Mailbox{self: self, node: node, actor: actor}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// Self returns the pid this mailbox owns.
func (mb *Mailbox) Self() Pid { return mb.self }

// deliver enqueues entry and, for a synchronous mailbox, wakes any
// blocked receiver; for an actor mailbox it instead notifies the
// node's scheduler so the actor task is scheduled to run.
func (mb *Mailbox) deliver(entry qEntry) error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrMailboxClosed
	}
	mb.queue = append(mb.queue, entry)
	mb.mu.Unlock()

	if mb.actor {
		mb.node.scheduler.notify(mb)
	} else {
		mb.cond.Broadcast()
	}
	return nil
}

// Receive blocks until a message is available. If the queue's head is
// a raised signal rather than a message, that signal's error is
// returned instead of a term.
func (mb *Mailbox) Receive() (Term, error) {
	if mb.actor {
		return nil, newDecodeError("Receive is not allowed on an actor mailbox; use the scheduler")
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.queue) == 0 && !mb.closed {
		mb.cond.Wait()
	}
	return mb.popLocked()
}

// ReceiveTimeout is Receive with a deadline; it returns
// ErrReceiveTimeout if nothing arrives in time.
func (mb *Mailbox) ReceiveTimeout(timeout time.Duration) (Term, error) {
	if mb.actor {
		return nil, newDecodeError("ReceiveTimeout is not allowed on an actor mailbox; use the scheduler")
	}
	deadline := time.Now().Add(timeout)

	mb.mu.Lock()
	defer mb.mu.Unlock()

	for len(mb.queue) == 0 && !mb.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrReceiveTimeout
		}
		timer := time.AfterFunc(remaining, func() {
			mb.mu.Lock()
			mb.cond.Broadcast()
			mb.mu.Unlock()
		})
		mb.cond.Wait()
		timer.Stop()
		if time.Now().After(deadline) && len(mb.queue) == 0 && !mb.closed {
			return nil, ErrReceiveTimeout
		}
	}
	return mb.popLocked()
}

// Poll returns immediately: (term, nil, true) if a message was
// waiting, or (nil, nil, false) if the queue was empty. A raised
// signal at the head is still returned as an error with ok==true.
func (mb *Mailbox) Poll() (Term, error, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil, nil, false
	}
	t, err := mb.popLocked()
	return t, err, true
}

// popLocked assumes mb.mu is held and the queue is either non-empty or
// the mailbox is closed.
func (mb *Mailbox) popLocked() (Term, error) {
	if len(mb.queue) == 0 {
		return nil, ErrMailboxClosed
	}
	head := mb.queue[0]
	if len(mb.queue) == 1 {
		mb.queue = mb.queue[:0]
	} else {
		mb.queue = mb.queue[1:]
	}
	if head.err != nil {
		return nil, head.err
	}
	return head.msg.Payload, nil
}

// recordLink records or removes peer from this mailbox's own link list
// without re-sending a LINK/UNLINK control tuple back out; it is used
// when the peer is the one who initiated the link.
func (mb *Mailbox) recordLink(peer Pid, linked bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if linked {
		for _, p := range mb.links {
			if p.Equal(peer) {
				return
			}
		}
		mb.links = append(mb.links, peer)
		return
	}
	for i, p := range mb.links {
		if p.Equal(peer) {
			mb.links = append(mb.links[:i], mb.links[i+1:]...)
			return
		}
	}
}

// Send delivers term to the mailbox owning pid to, locally or across a
// distribution connection depending on whether to is local to this
// node.
func (mb *Mailbox) Send(to Pid, term Term) error {
	return mb.node.routeSend(mb.self, to, term)
}

// SendName delivers term to whatever is registered under name on node,
// locally or remotely.
func (mb *Mailbox) SendName(name Atom, node Atom, term Term) error {
	return mb.node.routeSendName(mb.self, name, node, term)
}

// Link establishes a bidirectional link with pid: an EXIT on either
// side propagates to the other.
func (mb *Mailbox) Link(pid Pid) error {
	mb.mu.Lock()
	mb.links = append(mb.links, pid)
	mb.mu.Unlock()
	return mb.node.routeLink(mb.self, pid, true)
}

// Unlink removes a previously established link.
func (mb *Mailbox) Unlink(pid Pid) error {
	mb.mu.Lock()
	for i, p := range mb.links {
		if p.Equal(pid) {
			mb.links = append(mb.links[:i], mb.links[i+1:]...)
			break
		}
	}
	mb.mu.Unlock()
	return mb.node.routeLink(mb.self, pid, false)
}

// Exit sends an EXIT2 signal to pid with the given reason.
func (mb *Mailbox) Exit(pid Pid, reason Term) error {
	return mb.node.routeExit(mb.self, pid, reason)
}

// Close terminates the mailbox: every outstanding link is broken with
// reason, its registered name (if any) is released, and it is removed
// from the node's registry. Close is idempotent.
func (mb *Mailbox) Close(reason Term) {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.closed = true
	links := mb.links
	mb.links = nil
	name := mb.name
	mb.mu.Unlock()

	mb.cond.Broadcast()

	if reason == nil {
		reason = Atom("normal")
	}
	for _, peer := range links {
		_ = mb.node.routeExit(mb.self, peer, reason)
	}
	if mb.actor {
		mb.node.scheduler.cancel(mb)
	}
	mb.node.unregisterMailbox(mb, name)
}
