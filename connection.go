package ern

import (
	"net"
	"sync"
	"time"

	"github.com/ern-go/ern/internal/wire"
	"github.com/thejerf/suture"
)

// connection owns one live distribution socket, in either role. After
// the handshake it speaks the framed [len(4)][payload] protocol: ticks
// keep the socket alive, and payloads carry a control tuple plus an
// optional message term.
type connection struct {
	node *Node

	writeMu sync.Mutex
	conn    net.Conn

	peerName   Atom
	links      *linkTable
	logger     Logger
	traceLevel TraceLevel

	cookie        string
	cookieChecked bool

	closeOnce sync.Once
	closed    chan struct{}

	tickInterval time.Duration
	token        suture.ServiceToken
}

func newConnection(node *Node, conn net.Conn, peerName Atom, cookie string) *connection {
	return &connection{
		node:         node,
		conn:         conn,
		peerName:     peerName,
		links:        &linkTable{},
		logger:       node.logger,
		traceLevel:   node.traceLevel,
		cookie:       cookie,
		closed:       make(chan struct{}),
		tickInterval: node.tickInterval,
	}
}

// Serve runs the receive loop and the ticker until the connection
// fails or is closed; it returns when the receive loop returns, and the
// ticker stops once the connection is closed. connection
// implements suture.Service so the node's supervisor recovers a panic
// in either loop instead of taking the whole node down with it.
func (c *connection) Serve() {
	go c.tickLoop()
	c.readLoop()
}

// Stop closes the connection. It is suture's normal way of asking a
// service to exit; close's own callers (fail, Node.Close) reach the
// same idempotent cleanup through it.
func (c *connection) Stop() {
	c.close(nil)
}

func (c *connection) tickLoop() {
	if c.tickInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.writeFrame(nil); err != nil {
				c.fail(newIOError(c.peerName.String(), err))
				return
			}
			if c.traceLevel >= TraceFrame {
				c.logger.Trace("connection to %s: sent tick", c.peerName)
			}
		}
	}
}

func (c *connection) writeFrame(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame32(c.conn, body)
}

// writeControl sends ctrl (and, if msg is non-nil, msg right after it)
// as a single payload frame: passThrough, a shared version byte, then
// ctrl's raw bytes, then msg's raw bytes.
func (c *connection) writeControl(ctrl Term, msg Term) error {
	ctrlBytes, err := Encode(ctrl)
	if err != nil {
		return err
	}
	body := make([]byte, 0, 2+len(ctrlBytes)+32)
	body = append(body, 0x70, 131)
	body = append(body, ctrlBytes...)
	if msg != nil {
		msgBytes, err := Encode(msg)
		if err != nil {
			return err
		}
		body = append(body, msgBytes...)
	}
	if c.traceLevel >= TraceControl {
		c.logger.Trace("connection to %s: writing control %v", c.peerName, ctrl)
	}
	return c.writeFrame(body)
}

func (c *connection) readLoop() {
	defer c.close(nil)
	for {
		n, err := wire.ReadFrame32Length(c.conn)
		if err != nil {
			c.fail(newIOError(c.peerName.String(), err))
			return
		}
		if n == 0 {
			// tick: answer with a tock, keep looping.
			if err := c.writeFrame(nil); err != nil {
				c.fail(newIOError(c.peerName.String(), err))
				return
			}
			if c.traceLevel >= TraceFrame {
				c.logger.Trace("connection to %s: tick/tock", c.peerName)
			}
			continue
		}
		body := make([]byte, n)
		if _, err := readFull(c.conn, body); err != nil {
			c.fail(newIOError(c.peerName.String(), err))
			return
		}
		if err := c.handlePayload(body); err != nil {
			c.fail(err)
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *connection) handlePayload(body []byte) error {
	if len(body) < 2 || body[0] != 0x70 {
		return newDecodeError("payload missing passThrough marker")
	}
	dec := NewDecoder(body[1:])
	version, err := dec.readByte()
	if err != nil {
		return err
	}
	if version != 131 {
		return newDecodeError("payload missing version byte")
	}
	ctrl, err := dec.Next()
	if err != nil {
		return err
	}
	var msg Term
	if dec.Remaining() > 0 {
		msg, err = dec.Next()
		if err != nil {
			return err
		}
	}
	return c.dispatchControl(ctrl, msg)
}

func (c *connection) dispatchControl(ctrl Term, msg Term) error {
	tuple, ok := ctrl.(Tuple)
	if !ok || len(tuple) == 0 {
		return newDecodeError("control message is not a non-empty tuple")
	}
	tagInt, ok := tuple[0].(Int)
	if !ok {
		return newDecodeError("control tag is not an integer")
	}
	tagVal, _ := tagInt.Int64()
	if c.traceLevel >= TraceControl {
		c.logger.Trace("connection from %s: control tag %d", c.peerName, tagVal)
	}

	switch int(tagVal) {
	case wire.CtrlSend:
		return c.handleSend(tuple, msg)
	case wire.CtrlSendTT:
		return c.handleSend(stripTraceToken(tuple), msg)
	case wire.CtrlRegSend:
		return c.handleRegSend(tuple, msg)
	case wire.CtrlRegSendTT:
		return c.handleRegSend(stripTraceToken(tuple), msg)
	case wire.CtrlLink:
		return c.handleLink(tuple, true)
	case wire.CtrlUnlink:
		return c.handleLink(tuple, false)
	case wire.CtrlExit:
		return c.handleExit(tuple, true)
	case wire.CtrlExitTT:
		return c.handleExit(stripExitTraceToken(tuple), true)
	case wire.CtrlExit2:
		return c.handleExit(tuple, false)
	case wire.CtrlExit2TT:
		return c.handleExit(stripExitTraceToken(tuple), false)
	case wire.CtrlNodeLink, wire.CtrlGroupLeader:
		return nil // accepted and silently ignored
	default:
		return newDecodeError("unknown control tag %d", tagVal)
	}
}

// stripTraceToken drops the trailing TraceToken field a _TT control
// tuple carries after SEND's Cookie/ToPid or REG_SEND's
// FromPid/Cookie/ToName, leaving the arity the non-TT handler expects.
// The tag itself is left untouched; the arity-checking handlers only
// look at tuple[1:], so the mismatched tag in tuple[0] is harmless.
func stripTraceToken(tuple Tuple) Tuple {
	if len(tuple) == 0 {
		return tuple
	}
	return tuple[:len(tuple)-1]
}

// stripExitTraceToken drops the TraceToken field EXIT_TT/EXIT2_TT
// insert between ToPid and Reason: {Tag, From, To, TraceToken, Reason}
// becomes {Tag, From, To, Reason}.
func stripExitTraceToken(tuple Tuple) Tuple {
	if len(tuple) != 5 {
		return tuple
	}
	return Tuple{tuple[0], tuple[1], tuple[2], tuple[4]}
}

// checkCookie checks the peer's cookie atom on the first SEND/REG_SEND
// seen on this connection; later control tuples are not re-checked. The
// empty atom, which is what senders put there once the handshake has
// authenticated the link, is accepted; any other atom must equal this
// node's cookie.
func (c *connection) checkCookie(cookie Term) error {
	if c.cookieChecked {
		return nil
	}
	c.cookieChecked = true
	a, ok := cookie.(Atom)
	if !ok || (a != "" && string(a) != c.cookie) {
		report := Tuple{Atom("$gen_cast"), Tuple{Atom("print"), NewString(wire.BadCookieText), List{}}}
		_ = c.writeControl(Tuple{NewInt(wire.CtrlRegSend), Pid{Node: c.node.selfName}, Atom(""), Atom("error_logger")}, report)
		return newAuthError("bad cookie from %s", c.peerName)
	}
	return nil
}

func (c *connection) handleSend(tuple Tuple, msg Term) error {
	if len(tuple) != 3 {
		return newDecodeError("malformed SEND control tuple")
	}
	if err := c.checkCookie(tuple[1]); err != nil {
		return err
	}
	toPid, ok := tuple[2].(Pid)
	if !ok {
		return newDecodeError("SEND target is not a pid")
	}
	c.node.deliverLocal(toPid, qEntry{msg: OtpMsg{Payload: msg}})
	return nil
}

func (c *connection) handleRegSend(tuple Tuple, msg Term) error {
	if len(tuple) != 4 {
		return newDecodeError("malformed REG_SEND control tuple")
	}
	fromPid, ok := tuple[1].(Pid)
	if !ok {
		return newDecodeError("REG_SEND sender is not a pid")
	}
	if err := c.checkCookie(tuple[2]); err != nil {
		return err
	}
	toName, ok := tuple[3].(Atom)
	if !ok {
		return newDecodeError("REG_SEND target is not an atom")
	}
	c.node.deliverNamed(toName, qEntry{msg: OtpMsg{From: fromPid, ToName: toName, Payload: msg}})
	return nil
}

func (c *connection) handleLink(tuple Tuple, link bool) error {
	if len(tuple) != 3 {
		return newDecodeError("malformed LINK/UNLINK control tuple")
	}
	from, ok1 := tuple[1].(Pid)
	to, ok2 := tuple[2].(Pid)
	if !ok1 || !ok2 {
		return newDecodeError("LINK/UNLINK pids malformed")
	}
	if link {
		c.links.add(to, from)
	} else {
		c.links.remove(to, from)
	}
	c.node.notifyLinkChange(to, from, link)
	return nil
}

func (c *connection) handleExit(tuple Tuple, removeLink bool) error {
	if len(tuple) != 4 {
		return newDecodeError("malformed EXIT/EXIT2 control tuple")
	}
	from, ok1 := tuple[1].(Pid)
	to, ok2 := tuple[2].(Pid)
	if !ok1 || !ok2 {
		return newDecodeError("EXIT/EXIT2 pids malformed")
	}
	reason := tuple[3]
	if removeLink {
		c.links.remove(to, from)
	}
	c.node.deliverLocal(to, qEntry{err: &ExitSignal{From: from, Reason: reason}})
	return nil
}

func (c *connection) fail(err error) {
	if c.traceLevel >= TraceHandshake {
		c.logger.Warn("connection to %s failed: %v", c.peerName, err)
	}
	c.close(err)
}

func (c *connection) close(_ error) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
		pairs := c.links.clearAll()
		c.node.onConnectionDown(c.peerName, pairs)
		// Remove blocks until Stop returns, which would deadlock if
		// close was reached from inside Serve (via fail); hand it off
		// so this goroutine is free to finish returning from Serve.
		go c.node.supervisor.Remove(c.token)
	})
}
