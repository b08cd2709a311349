package ern

import (
	"fmt"
	"net"

	"github.com/ern-go/ern/internal/wire"
)

// This file connects a Node to its live set of outbound distribution
// connections: the per-peer cache, dialing and handshaking a fresh
// connection on demand, and cleaning up link state when a connection
// drops.

// getConnection returns the cached connection to node, dialing and
// handshaking a fresh one under the connections lock if none exists
// yet.
func (n *Node) getConnection(node Atom) (*connection, error) {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	if c, ok := n.connections[node]; ok {
		return c, nil
	}

	port, err := n.epmdClient.Lookup(nodeAlive(node))
	if err != nil {
		n.fireConnAttempt(node, false, err)
		return nil, fmt.Errorf("ern: looking up %s with epmd: %w", node, err)
	}
	addr := net.JoinHostPort(nodeHost(node), fmt.Sprintf("%d", port))
	tcpConn, err := net.Dial("tcp", addr)
	if err != nil {
		n.fireConnAttempt(node, false, err)
		return nil, newIOError(addr, err)
	}
	res, err := doInitiateHandshake(tcpConn, n.selfName, n.distHigh, n.cookie, n.logger)
	if err != nil {
		tcpConn.Close()
		n.fireConnAttempt(node, false, err)
		return nil, err
	}
	c := newConnection(n, tcpConn, res.PeerName, n.cookie)
	n.connections[node] = c
	n.fireConnAttempt(node, false, nil)
	n.fireRemoteStatus(node, true, nil)
	c.token = n.supervisor.Add(c)
	return c, nil
}

// onConnectionDown evicts the cached connection to peer and delivers a
// noconnection exit signal to every local pid that held a link across
// it, the same cleanup a real net_kernel does when a distribution
// socket drops.
func (n *Node) onConnectionDown(peer Atom, pairs []linkPair) {
	n.connMu.Lock()
	delete(n.connections, peer)
	n.connMu.Unlock()

	for _, p := range pairs {
		n.deliverLocal(p.local, qEntry{err: &ExitSignal{From: p.remote, Reason: Atom("noconnection")}})
	}
	n.fireRemoteStatus(peer, false, nil)
}

// -- routing -----------------------------------------------------------
//
// Each of these decides, per-call, whether the target lives on this
// node (a direct registry delivery) or on a peer (a control tuple over
// that peer's cached connection).

func (n *Node) routeSend(from, to Pid, term Term) error {
	if to.Node == n.selfName || to.Node == "" {
		mb, ok := n.mailboxByPid(to)
		if !ok {
			return ErrMailboxClosed
		}
		return mb.deliver(qEntry{msg: OtpMsg{From: from, Payload: term}})
	}
	c, err := n.getConnection(to.Node)
	if err != nil {
		return ErrNotConnected
	}
	return c.writeControl(Tuple{NewInt(wire.CtrlSend), Atom(""), to}, term)
}

func (n *Node) routeSendName(from Pid, name Atom, toNode Atom, term Term) error {
	if toNode == n.selfName || toNode == "" {
		n.deliverNamed(name, qEntry{msg: OtpMsg{From: from, ToName: name, Payload: term}})
		return nil
	}
	c, err := n.getConnection(toNode)
	if err != nil {
		return ErrNotConnected
	}
	return c.writeControl(Tuple{NewInt(wire.CtrlRegSend), from, Atom(""), name}, term)
}

func (n *Node) routeLink(self, peer Pid, link bool) error {
	if peer.Node == n.selfName || peer.Node == "" {
		n.notifyLinkChange(peer, self, link)
		return nil
	}
	c, err := n.getConnection(peer.Node)
	if err != nil {
		return ErrNotConnected
	}
	tag := wire.CtrlLink
	if !link {
		tag = wire.CtrlUnlink
	}
	return c.writeControl(Tuple{NewInt(int64(tag)), self, peer}, nil)
}

func (n *Node) routeExit(self, peer Pid, reason Term) error {
	if peer.Node == n.selfName || peer.Node == "" {
		n.deliverLocal(peer, qEntry{err: &ExitSignal{From: self, Reason: reason}})
		return nil
	}
	c, err := n.getConnection(peer.Node)
	if err != nil {
		return ErrNotConnected
	}
	return c.writeControl(Tuple{NewInt(wire.CtrlExit2), self, peer, reason}, nil)
}
