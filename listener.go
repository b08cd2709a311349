package ern

import (
	"fmt"
	"net"
)

// This file defines the listener that accepts incoming distribution
// connections, and the suture service that runs it.

// Listen opens the configured listen address, publishes this node
// under its alive name with EPMD, and starts the inbound acceptor as a
// supervised service.
func (n *Node) Listen() error {
	if n.listenAddr == "" {
		return fmt.Errorf("ern: node has no listen address configured")
	}
	ln, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return newIOError(n.listenAddr, err)
	}
	n.listener = ln

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return err
	}
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)

	creation, err := n.epmdClient.Publish(nodeAlive(n.selfName), port)
	if err != nil {
		ln.Close()
		return fmt.Errorf("ern: publishing to epmd: %w", err)
	}
	n.creation = uint32(creation)

	n.supervisor.Add(&acceptorService{node: n, listener: ln})
	return nil
}

// acceptorService is the suture-supervised inbound accept loop: each
// accepted socket is handed off to its own goroutine to run the
// distribution handshake without blocking the next Accept.
type acceptorService struct {
	node     *Node
	listener net.Listener
}

func (a *acceptorService) Serve() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return
		}
		go a.node.acceptOne(conn)
	}
}

func (a *acceptorService) Stop() {
	a.listener.Close()
}

// acceptOne runs the accepting side of the handshake on a freshly
// accepted socket and, on success, hands it to the connection loop.
func (n *Node) acceptOne(conn net.Conn) {
	res, err := doAcceptHandshake(conn, n.selfName, n.distHigh, n.cookie, n.logger)
	if err != nil {
		n.fireConnAttempt(Atom(""), true, err)
		conn.Close()
		return
	}
	c := newConnection(n, conn, res.PeerName, n.cookie)
	n.connMu.Lock()
	n.connections[res.PeerName] = c
	n.connMu.Unlock()
	n.fireConnAttempt(res.PeerName, true, nil)
	n.fireRemoteStatus(res.PeerName, true, nil)
	c.token = n.supervisor.Add(c)
}
