package ern

import "time"

// netKernelName is the well-known mailbox name a real Erlang runtime
// answers is_auth calls on; ERN's own net_kernel mailbox is addressed
// the same way so a real node, or another ern Node, can ping it.
const netKernelName = Atom("net_kernel")

// startNetKernel registers and runs the net_kernel mailbox that
// answers reciprocal is_auth pings. It is started once, during
// NewNode, and runs for the life of the Node.
func (n *Node) startNetKernel() error {
	mb, err := n.CreateMbox(netKernelName, false)
	if err != nil {
		return err
	}
	go n.netKernelLoop(mb)
	return nil
}

func (n *Node) netKernelLoop(mb *Mailbox) {
	for {
		msg, err := mb.Receive()
		if err != nil {
			return
		}
		n.handleNetKernelCall(mb, msg)
	}
}

// handleNetKernelCall answers a {'$gen_call', {FromPid, Ref}, {is_auth,
// Node}} envelope with {Ref, yes}, the same reciprocal handshake a real
// net_kernel performs once two nodes are connected.
func (n *Node) handleNetKernelCall(mb *Mailbox, msg Term) {
	tuple, ok := msg.(Tuple)
	if !ok || len(tuple) != 3 {
		return
	}
	if tag, ok := tuple[0].(Atom); !ok || tag != "$gen_call" {
		return
	}
	from, ok := tuple[1].(Tuple)
	if !ok || len(from) != 2 {
		return
	}
	fromPid, ok := from[0].(Pid)
	if !ok {
		return
	}
	ref := from[1]

	request, ok := tuple[2].(Tuple)
	if !ok || len(request) != 2 {
		return
	}
	if reqTag, ok := request[0].(Atom); !ok || reqTag != "is_auth" {
		return
	}

	_ = mb.Send(fromPid, Tuple{ref, Atom("yes")})
}

// Ping sends a reciprocal is_auth call to node's net_kernel mailbox and
// reports whether a matching reply arrived within timeout.
func (n *Node) Ping(node Atom, timeout time.Duration) bool {
	mb, err := n.CreateMbox("", false)
	if err != nil {
		return false
	}
	defer mb.Close(nil)

	ref := n.nextRef()
	call := Tuple{
		Atom("$gen_call"),
		Tuple{mb.Self(), ref},
		Tuple{Atom("is_auth"), n.selfName},
	}
	if err := mb.SendName(netKernelName, node, call); err != nil {
		return false
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		reply, err := mb.ReceiveTimeout(remaining)
		if err != nil {
			return false
		}
		tuple, ok := reply.(Tuple)
		if !ok || len(tuple) != 2 {
			continue
		}
		if !tuple[0].Equal(ref) {
			continue
		}
		result, ok := tuple[1].(Atom)
		return ok && result == "yes"
	}
}
