package ern

import (
	"testing"
	"time"
)

func TestPingLocalNetKernel(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	if !n.Ping(n.selfName, receiveTimeout) {
		t.Fatal("expected a node to be able to ping its own net_kernel")
	}
}

func TestPingUnreachableNodeFails(t *testing.T) {
	t.Parallel()
	n := newLocalNode(t)

	if n.Ping(Atom("nowhere@elsewhere"), 200*time.Millisecond) {
		t.Fatal("expected ping to an unconfigured node to fail")
	}
}

func TestPingCrossNode(t *testing.T) {
	tb := newTestBed(t)
	defer tb.terminate()

	if !tb.node1.Ping(Atom("two@localhost"), receiveTimeout) {
		t.Fatal("expected node one to successfully ping node two")
	}
	if !tb.node2.Ping(Atom("one@localhost"), receiveTimeout) {
		t.Fatal("expected node two to successfully ping node one")
	}
}
