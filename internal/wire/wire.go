/*

Package wire holds the frozen byte-level constants and small framing
helpers shared by the distribution handshake, the connection loop, and
the EPMD client. None of this belongs in the public API: it exists
purely so the two packages that need these byte layouts (ern and
ern/epmd) don't each reinvent them.

*/
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Control message tags, per the distribution control-tuple table.
const (
	CtrlLink       = 1
	CtrlSend       = 2
	CtrlExit       = 3
	CtrlUnlink     = 4
	CtrlNodeLink   = 5
	CtrlRegSend    = 6
	CtrlGroupLeader = 7
	CtrlExit2      = 8

	CtrlSendTT      = 12
	CtrlExitTT      = 13
	CtrlRegSendTT   = 16
	CtrlExit2TT     = 18
)

// Handshake frame tags, per the handshake wire section.
const (
	HandshakeTagName      = 'n'
	HandshakeTagStatus    = 's'
	HandshakeTagChallenge = 'n'
	HandshakeTagReply     = 'r'
	HandshakeTagAck       = 'a'
)

// Distribution flags this implementation negotiates. Only the bits the
// handshake cares about are named; unknown bits are ignored on receipt.
const (
	FlagExtendedReferences uint32 = 1 << 2
	FlagExtendedPidsPorts  uint32 = 1 << 8
	FlagNewFunTags         uint32 = 1 << 11
	FlagBigCreation        uint32 = 1 << 18
	FlagNewFloats          uint32 = 1 << 11 // historical overlap with new_fun_tags is fine; both are required together in practice
)

// MinDistVersion is the lowest negotiable distribution version; a peer
// offering less fails the handshake.
const MinDistVersion = 5

// DefaultEPMDPort is used when ERL_EPMD_PORT is unset.
const DefaultEPMDPort = 4369

// WriteFrame16 writes a 2-byte big-endian length prefix followed by body,
// as used by every handshake frame.
func WriteFrame16(w io.Writer, body []byte) error {
	if len(body) > 0xFFFF {
		return fmt.Errorf("wire: frame body too large (%d bytes)", len(body))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame16 reads a 2-byte-length-prefixed frame, per the handshake
// framing rule. maxLen bounds the accepted body size to guard against a
// hostile or corrupt peer.
func ReadFrame16(r io.Reader, maxLen int) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n > maxLen {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds limit %d", n, maxLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame32 writes a 4-byte big-endian length prefix followed by body,
// as used by the post-handshake distribution framing (len==0 is a tick).
func WriteFrame32(w io.Writer, body []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame32Length reads just the 4-byte length prefix of a distribution
// frame. A return of 0 indicates a tick.
func ReadFrame32Length(r io.Reader) (uint32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

// BadCookieText is the well-known error-report text sent to a peer when a
// cookie mismatch is discovered mid-session, byte-for-byte as required
// for interoperability with a real Erlang peer.
const BadCookieText = "~n** Bad cookie sent to " + "%s" + "**~n"
