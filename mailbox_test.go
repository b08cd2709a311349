package ern

import (
	"testing"
	"time"
)

func newLocalNode(t *testing.T) *Node {
	t.Helper()
	cfg, err := CreateFromSpec(NodeConfig{Name: "local@nowhere", Cookie: "x"})
	if err != nil {
		t.Fatalf("configuring node: %v", err)
	}
	n, err := NewNode(cfg.WithLogger(NullLogger))
	if err != nil {
		t.Fatalf("creating node: %v", err)
	}
	t.Cleanup(n.Close)
	return n
}

func TestMailboxSendReceive(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	mb, err := n.CreateMbox("", false)
	if err != nil {
		t.Fatalf("CreateMbox: %v", err)
	}

	if err := mb.Send(mb.Self(), Atom("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := mb.ReceiveTimeout(receiveTimeout)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !got.Equal(Atom("hello")) {
		t.Fatalf("got %v, want hello", got)
	}
}

func TestMailboxFIFOOrdering(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)
	mb, _ := n.CreateMbox("", false)

	for i := 0; i < 3; i++ {
		if err := mb.Send(mb.Self(), NewInt(int64(i))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		got, err := mb.ReceiveTimeout(receiveTimeout)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if !got.Equal(NewInt(int64(i))) {
			t.Fatalf("message %d: got %v, want %d", i, got, i)
		}
	}
}

func TestMailboxReceiveTimeout(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)
	mb, _ := n.CreateMbox("", false)

	_, err := mb.ReceiveTimeout(20 * time.Millisecond)
	if err != ErrReceiveTimeout {
		t.Fatalf("got %v, want ErrReceiveTimeout", err)
	}
}

func TestMailboxClosedRejectsSend(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)
	mb, _ := n.CreateMbox("", false)
	other, _ := n.CreateMbox("", false)

	mb.Close(Atom("done"))

	if err := other.Send(mb.Self(), Atom("too late")); err == nil {
		t.Fatal("expected send to a closed mailbox to fail")
	}
}

func TestMailboxNameConflict(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	_, err := n.CreateMbox("taken", false)
	if err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	_, err = n.CreateMbox("taken", false)
	if err != ErrNameTaken {
		t.Fatalf("got %v, want ErrNameTaken", err)
	}
}

func TestMailboxLinkPropagatesExit(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)
	a, _ := n.CreateMbox("", false)
	b, _ := n.CreateMbox("", false)

	if err := a.Link(b.Self()); err != nil {
		t.Fatalf("Link: %v", err)
	}

	a.Close(Atom("boom"))

	_, err := b.ReceiveTimeout(receiveTimeout)
	exit, ok := err.(*ExitSignal)
	if !ok {
		t.Fatalf("expected an ExitSignal, got %v", err)
	}
	if !exit.From.Equal(a.Self()) {
		t.Fatalf("exit signal from %v, want %v", exit.From, a.Self())
	}
	if !exit.Reason.Equal(Atom("boom")) {
		t.Fatalf("exit reason %v, want boom", exit.Reason)
	}
}

func TestMailboxUnlinkStopsPropagation(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)
	a, _ := n.CreateMbox("", false)
	b, _ := n.CreateMbox("", false)

	if err := a.Link(b.Self()); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := a.Unlink(b.Self()); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	a.Close(Atom("boom"))

	_, err := b.ReceiveTimeout(30 * time.Millisecond)
	if err != ErrReceiveTimeout {
		t.Fatalf("expected no exit after unlink, got %v", err)
	}
}

func TestMailboxActorCannotReceive(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)
	mb, err := n.CreateMbox("", true)
	if err != nil {
		t.Fatalf("CreateMbox: %v", err)
	}

	if _, err := mb.Receive(); err == nil {
		t.Fatal("expected an actor mailbox to reject Receive")
	}
}
