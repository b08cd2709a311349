package ern

import (
	"testing"
	"time"
)

func TestActorMboxReactsToDelivery(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	got := make(chan Term, 4)
	mb, err := n.CreateActorMbox("", func(term Term, err error) {
		if err != nil {
			return
		}
		got <- term
	})
	if err != nil {
		t.Fatalf("CreateActorMbox: %v", err)
	}

	if err := mb.Send(mb.Self(), Atom("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case term := <-got:
		if !term.Equal(Atom("hello")) {
			t.Fatalf("got %v, want hello", term)
		}
	case <-time.After(receiveTimeout):
		t.Fatal("reactor never ran")
	}
}

func TestActorMboxReactsToExitSignal(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	got := make(chan error, 4)
	mb, err := n.CreateActorMbox("", func(_ Term, err error) {
		if err != nil {
			got <- err
		}
	})
	if err != nil {
		t.Fatalf("CreateActorMbox: %v", err)
	}

	other, _ := n.CreateMbox("", false)
	if err := other.Link(mb.Self()); err != nil {
		t.Fatalf("Link: %v", err)
	}
	other.Close(Atom("boom"))

	select {
	case err := <-got:
		exit, ok := err.(*ExitSignal)
		if !ok {
			t.Fatalf("expected an ExitSignal, got %v", err)
		}
		if !exit.Reason.Equal(Atom("boom")) {
			t.Fatalf("exit reason %v, want boom", exit.Reason)
		}
	case <-time.After(receiveTimeout):
		t.Fatal("reactor never saw the exit signal")
	}
}

func TestActorMboxStopsReactingAfterClose(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	got := make(chan Term, 4)
	mb, err := n.CreateActorMbox("", func(term Term, err error) {
		if err == nil {
			got <- term
		}
	})
	if err != nil {
		t.Fatalf("CreateActorMbox: %v", err)
	}

	mb.Close(nil)

	other, _ := n.CreateMbox("", false)
	// Sending to a closed mailbox must fail, and must not somehow wake
	// a reactor task that was supposed to have been cancelled.
	if err := other.Send(mb.Self(), Atom("too late")); err == nil {
		t.Fatal("expected send to a closed actor mailbox to fail")
	}

	select {
	case term := <-got:
		t.Fatalf("reactor ran after Close with %v", term)
	case <-time.After(30 * time.Millisecond):
	}
}
