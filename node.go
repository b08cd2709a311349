package ern

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ern-go/ern/epmd"
	"github.com/thejerf/suture"
)

// StatusHandler receives node-level lifecycle notifications. Every call
// is made with its own panics recovered, so a broken observer can
// never take the node down with it.
type StatusHandler interface {
	RemoteStatus(node Atom, up bool, info interface{})
	LocalStatus(node Atom, up bool, info interface{})
	ConnAttempt(node Atom, incoming bool, info interface{})
}

func safeInvoke(logger Logger, name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("status handler %s panicked: %v", name, r)
		}
	}()
	f()
}

// wireMaxDistVersion is the highest distribution version this
// implementation offers during negotiation.
const wireMaxDistVersion = 6

// Node is the root of a running distribution endpoint: it owns the pid
// and mailbox namespaces (registry.go), the outbound connection cache
// (remoteMailboxes.go), and, once Listen is called, the inbound
// acceptor (listener.go).
type Node struct {
	selfName     Atom
	cookie       string
	distHigh     uint16
	logger       Logger
	traceLevel   TraceLevel
	tickInterval time.Duration

	epmdClient *epmd.Client
	listenAddr string
	listener   net.Listener
	creation   uint32

	mu        sync.Mutex
	byPid     map[uint64]*Mailbox
	byName    map[Atom]*Mailbox
	nextID    uint32
	nextSer   uint32
	nextPortN uint32
	refCtr    uint64

	connMu      sync.Mutex
	connections map[Atom]*connection

	shMu          sync.Mutex
	statusHandler StatusHandler

	scheduler *scheduler

	supervisor *suture.Supervisor

	closeOnce sync.Once
	done      chan struct{}
}

// NewNode constructs a Node from a resolved NodeConfig. It does not
// start listening; call Listen to accept inbound connections, which
// most long-running peers will want.
func NewNode(cfg *NodeConfig) (*Node, error) {
	logger := cfg.logger()
	n := &Node{
		selfName:     Atom(cfg.Name),
		cookie:       cfg.resolvedCookie,
		distHigh:     wireMaxDistVersion,
		logger:       logger,
		traceLevel:   TraceLevel(cfg.TraceLevel),
		tickInterval: cfg.tickIntervalDuration(),
		listenAddr:   cfg.ListenAddr,
		byPid:        make(map[uint64]*Mailbox),
		byName:       make(map[Atom]*Mailbox),
		connections:  make(map[Atom]*connection),
		nextID:       1,
		done:         make(chan struct{}),
	}
	n.scheduler = newScheduler(n)

	logFn := func(msg string) { logger.Warn(msg) }
	n.supervisor = suture.New(fmt.Sprintf("ern node %s", n.selfName), suture.Spec{
		Log:              logFn,
		FailureDecay:     60,
		FailureThreshold: 5,
		FailureBackoff:   time.Second,
	})
	go n.supervisor.Serve()

	n.epmdClient = epmd.NewClient(cfg.EPMDAddr)

	if err := n.startNetKernel(); err != nil {
		return nil, fmt.Errorf("ern: starting net_kernel: %w", err)
	}

	return n, nil
}

func nodeAlive(name Atom) string {
	parts := strings.SplitN(string(name), "@", 2)
	return parts[0]
}

func nodeHost(name Atom) string {
	parts := strings.SplitN(string(name), "@", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return "localhost"
}

// SetStatusHandler installs h as the node's lifecycle observer.
func (n *Node) SetStatusHandler(h StatusHandler) {
	n.shMu.Lock()
	defer n.shMu.Unlock()
	n.statusHandler = h
}

func (n *Node) fireConnAttempt(node Atom, incoming bool, info interface{}) {
	n.shMu.Lock()
	h := n.statusHandler
	n.shMu.Unlock()
	if h == nil {
		return
	}
	safeInvoke(n.logger, "ConnAttempt", func() { h.ConnAttempt(node, incoming, info) })
}

func (n *Node) fireRemoteStatus(node Atom, up bool, info interface{}) {
	n.shMu.Lock()
	h := n.statusHandler
	n.shMu.Unlock()
	if h == nil {
		return
	}
	safeInvoke(n.logger, "RemoteStatus", func() { h.RemoteStatus(node, up, info) })
}

// Close shuts the node down: the acceptor and every outbound
// connection are stopped, and EPMD's registration is released by
// closing the socket that held it open.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
		n.supervisor.Stop()
		if n.listener != nil {
			n.listener.Close()
		}
		n.connMu.Lock()
		for _, c := range n.connections {
			c.close(nil)
		}
		n.connMu.Unlock()
		if n.epmdClient != nil {
			_ = n.epmdClient.Close()
		}
	})
}
