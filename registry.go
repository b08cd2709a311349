package ern

/*

This implements the node-local pid and mailbox namespace: pid/port/ref
allocation, and the byPid/byName maps that let a control tuple arriving
off the wire, or a local SendName, find the mailbox it's addressed to.

Unlike a distributed name registry that propagates claims across a
cluster, this registry only ever knows about mailboxes that live on
this node; resolving a name on a remote node is a routing decision
(see routeSendName in remoteMailboxes.go), not a registry lookup.

*/

// -- pid/port/ref allocation ------------------------------------------

func (n *Node) nextPid() Pid {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	ser := n.nextSer
	n.nextID++
	if n.nextID > 0x7FFF {
		n.nextID = 0
		n.nextSer = (n.nextSer + 1) % 0x2000
	}
	return Pid{Node: n.selfName, ID: id & 0x7FFF, Serial: ser, Creation: n.creation & 0x3}
}

func (n *Node) nextPort() Port {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextPortN
	n.nextPortN = (n.nextPortN + 1) & 0x0FFFFFFF
	return Port{Node: n.selfName, ID: id, Creation: n.creation & 0x3}
}

func (n *Node) nextRef() Ref {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refCtr++
	v := n.refCtr
	return Ref{
		Node:     n.selfName,
		Creation: n.creation & 0x3,
		IDs:      []uint32{uint32(v) & 0x3FFFF, uint32(v >> 18), uint32(v >> 50)},
	}
}

func mailboxKey(p Pid) uint64 {
	return uint64(p.ID)<<32 | uint64(p.Serial)
}

// -- mailbox registry ---------------------------------------------------

// CreateMbox allocates a pid and a Mailbox for it. If name is
// non-empty, the mailbox is also registered under that name; if the
// name is already taken, the mailbox is still created but an error is
// returned alongside it. actor selects an actor-mode mailbox, which
// disallows blocking receive and instead wakes the scheduler.
func (n *Node) CreateMbox(name Atom, actor bool) (*Mailbox, error) {
	pid := n.nextPid()
	mb := newMailbox(pid, n, actor)

	n.mu.Lock()
	n.byPid[mailboxKey(pid)] = mb
	var nameErr error
	if name != "" {
		if _, taken := n.byName[name]; taken {
			nameErr = ErrNameTaken
		} else {
			n.byName[name] = mb
			mb.name = name
		}
	}
	n.mu.Unlock()

	return mb, nameErr
}

// CreateActorMbox allocates an actor-mode mailbox and registers fn as
// its reactor with the node's scheduler, so every message delivered to
// it runs fn on a dedicated dispatch goroutine instead of sitting in
// the queue for a blocking Receive that actor mailboxes refuse to
// serve. If name is already taken, the mailbox is still created and
// its reactor still registered, but ErrNameTaken is returned alongside
// it, matching CreateMbox's own contract.
func (n *Node) CreateActorMbox(name Atom, fn Reactor) (*Mailbox, error) {
	mb, err := n.CreateMbox(name, true)
	n.scheduler.react(mb, fn)
	return mb, err
}

// Register attaches name to an already-created mailbox.
func (n *Node) Register(name Atom, mb *Mailbox) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.byName[name]; taken {
		return ErrNameTaken
	}
	n.byName[name] = mb
	mb.name = name
	return nil
}

// Whereis returns the pid registered under name, if any.
func (n *Node) Whereis(name Atom) (Pid, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	mb, ok := n.byName[name]
	if !ok {
		return Pid{}, false
	}
	return mb.self, true
}

func (n *Node) unregisterMailbox(mb *Mailbox, name Atom) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.byPid, mailboxKey(mb.self))
	if name != "" {
		delete(n.byName, name)
	}
}

func (n *Node) mailboxByPid(p Pid) (*Mailbox, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	mb, ok := n.byPid[mailboxKey(p)]
	return mb, ok
}

func (n *Node) mailboxByName(name Atom) (*Mailbox, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	mb, ok := n.byName[name]
	return mb, ok
}

// -- local delivery ---------------------------------------------------

func (n *Node) deliverLocal(to Pid, entry qEntry) {
	mb, ok := n.mailboxByPid(to)
	if !ok {
		return
	}
	_ = mb.deliver(entry)
}

func (n *Node) deliverNamed(name Atom, entry qEntry) {
	mb, ok := n.mailboxByName(name)
	if !ok {
		return
	}
	_ = mb.deliver(entry)
}

func (n *Node) notifyLinkChange(to, from Pid, linked bool) {
	mb, ok := n.mailboxByPid(to)
	if !ok {
		return
	}
	mb.recordLink(from, linked)
}
