/*

Executable ernnode contains a simple demonstration of using the ern
library to run a two-node distribution cluster.

This implements a klunky, lowest-common-denominator terminal chat
program between two nodes. The default configuration will run these
two nodes on localhost, but with some trivial modifications it can be
run remotely. It also demonstrates pointing the node's logging at
logrus instead of the bundled StdLogger.

*/
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ern-go/ern"
	"github.com/ern-go/ern/ernlog"
)

func main() {
	if len(os.Args) < 2 {
		_, _ = fmt.Fprint(os.Stderr,
			"Must pass the node this is going to be (1 or 2) as the argument\n")
		os.Exit(1)
	}

	nodeInt, err := strconv.Atoi(os.Args[1])
	if err != nil || (nodeInt != 1 && nodeInt != 2) {
		_, _ = fmt.Fprintf(os.Stderr, "node argument must be 1 or 2: %v\n", err)
		os.Exit(1)
	}

	logrusLog := logrus.New()
	logrusLog.SetLevel(logrus.InfoLevel)

	selfName := ern.Atom(fmt.Sprintf("chat%d@localhost", nodeInt))
	peerName := ern.Atom(fmt.Sprintf("chat%d@localhost", 3-nodeInt))

	cfg, err := ern.CreateFromSpec(ern.NodeConfig{
		Name:       string(selfName),
		Cookie:     "ernnode-demo",
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", 15000+nodeInt),
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "couldn't configure node: %v\n", err)
		os.Exit(1)
	}
	cfg.WithLogger(ernlog.NewLogrusLogger(logrusLog))

	node, err := ern.NewNode(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "couldn't start node: %v\n", err)
		os.Exit(1)
	}
	defer node.Close()

	if err := node.Listen(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "couldn't listen: %v\n", err)
		os.Exit(1)
	}

	// Register tells the node we want to receive chat messages under a
	// well-known name, so the other side can find us without already
	// holding a pid.
	myName := ern.Atom(fmt.Sprintf("chatter_%d", nodeInt))
	mb, err := node.CreateMbox("", false)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "couldn't create mailbox: %v\n", err)
		os.Exit(1)
	}
	if err := node.Register(myName, mb); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "couldn't register name %s: %v\n", myName, err)
		os.Exit(1)
	}

	peerChatterName := ern.Atom(fmt.Sprintf("chatter_%d", 3-nodeInt))

	// Write the chat listener.
	go func() {
		for {
			msg, err := mb.Receive()
			if err != nil {
				fmt.Println("ERROR:", err)
				return
			}
			fmt.Println("Received:", msg)
		}
	}()

	fmt.Printf("%s ready; waiting to reach %s\n", selfName, peerName)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Chat message: ")
		text, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("Bye!")
				return
			}
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			return
		}

		// See Mailbox.SendName for what can actually error. The peer is
		// remote by construction, so this fails only when no connection
		// to it can be made or the write fails; a message that arrives
		// but goes unanswered surfaces as the peer simply never
		// answering.
		if err := mb.SendName(peerChatterName, peerName, ern.Atom(text)); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
}
