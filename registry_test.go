package ern

import "testing"

func TestRegistryPortAllocationWraps(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	n.mu.Lock()
	n.nextPortN = 0x0FFFFFFF
	n.mu.Unlock()

	last := n.nextPort()
	wrapped := n.nextPort()
	if last.ID != 0x0FFFFFFF {
		t.Fatalf("got id %d, want 0x0FFFFFFF", last.ID)
	}
	if wrapped.ID != 0 {
		t.Fatalf("expected port id to wrap to 0, got %d", wrapped.ID)
	}
}

func TestRegistryRefsAreUnique(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	a := n.nextRef()
	b := n.nextRef()
	if a.Equal(b) {
		t.Fatal("expected successive refs to differ")
	}
}

func TestRegistryDeliverLocalDropsUnknownPid(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	// deliverLocal to a pid with no mailbox must not panic; it's simply
	// dropped, same as a real node dropping a message to a dead process.
	n.deliverLocal(Pid{Node: n.selfName, ID: 999, Serial: 999}, qEntry{msg: OtpMsg{Payload: Atom("x")}})
}

func TestRegistryMailboxByNameMissing(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	if _, ok := n.mailboxByName("ghost"); ok {
		t.Fatal("expected no mailbox for an unregistered name")
	}
}
