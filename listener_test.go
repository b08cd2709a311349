package ern

import "testing"

func TestListenRequiresAddress(t *testing.T) {
	t.Parallel()

	cfg, err := CreateFromSpec(NodeConfig{Name: "noaddr@nowhere", Cookie: "x"})
	if err != nil {
		t.Fatalf("configuring node: %v", err)
	}
	n, err := NewNode(cfg.WithLogger(NullLogger))
	if err != nil {
		t.Fatalf("creating node: %v", err)
	}
	defer n.Close()

	if err := n.Listen(); err == nil {
		t.Fatal("expected Listen to fail without a configured listen address")
	}
}

func TestAcceptorAcceptsHandshakingPeer(t *testing.T) {
	tb := newTestBed(t)
	defer tb.terminate()

	if !tb.node1.Ping(Atom("two@localhost"), receiveTimeout) {
		t.Fatal("expected a successful ping once the acceptor handshakes the connecting peer")
	}
}
