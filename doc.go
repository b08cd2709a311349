/*

Package ern implements the Erlang distribution protocol: the external
term format, the MD5-cookie connection handshake, an EPMD client, and
the node/mailbox/actor-scheduler layer that sits on top of them.

What Erlang Distribution Is

A distributed Erlang node gives you two things: a pid that can be sent
messages from anywhere in the cluster, with the message itself free to
carry more pids that remain live across the wire, and a local name
registry that bootstraps how unrelated processes first find each
other. This package provides both, without requiring an actual Erlang
VM anywhere in the cluster: an ern Node speaks the same wire protocol a
real node does, so it can sit in a cluster of real Erlang/OTP
releases, or talk to other ern Nodes exclusively, indifferently.

Nodes and Mailboxes

A Node owns a pid/port/ref namespace, a registry of named and anonymous
mailboxes, and the outbound connection cache used to reach peers. A
Mailbox is the receiving end of a pid: Send and SendName deliver into
someone else's mailbox, Receive and ReceiveTimeout pull out of your
own. Mailboxes come in two flavors. A synchronous mailbox is driven by
a goroutine calling Receive, the same shape a gen_server's main loop
takes. An actor mailbox instead registers a reaction function with the
node's scheduler and is driven by wakeups; nothing calls Receive on it
directly.

Distribution

Two nodes become peers by completing the same challenge-response
handshake a real erl install performs: a shared cookie, never sent in
the clear, proves each side belongs in the cluster without the
overhead or certificate management a TLS-secured transport would
require. Once connected, sends, registered-name sends, links, and exit
signals flow as control tuples over the framed socket; termination
notices and link breakage propagate when a connection drops, the same
liveness guarantee a real node's net_kernel provides.

Peers find each other's listening port through the epmd subpackage, a
client for the same local port-mapper daemon a real Erlang release
runs, so an ern node mixes into an existing cluster without any
non-standard discovery mechanism.

A Final Note

This is a from-scratch implementation of the wire protocol, not a
binding to the Erlang runtime; nothing here requires cgo or an erl
binary on the host. If you find a corner of the protocol this package
doesn't speak yet, or a control message a real node sends that this
one doesn't answer, patches are welcome.

*/
package ern
