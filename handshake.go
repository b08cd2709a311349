package ern

import (
	"crypto/md5"
	"fmt"
	"math/rand"
	"net"

	"github.com/ern-go/ern/internal/wire"
)

// handshakeState names where a handshake attempt is in the state
// machine the wire format imposes. It exists mainly so a failure can
// report where things went wrong.
type handshakeState int

const (
	stateNew handshakeState = iota
	stateNameSeen
	stateStatusOK
	stateChallenge
	stateReply
	stateAck
	stateOpen
)

func (s handshakeState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateNameSeen:
		return "name-seen"
	case stateStatusOK:
		return "status-ok"
	case stateChallenge:
		return "challenge"
	case stateReply:
		return "reply"
	case stateAck:
		return "ack"
	case stateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// maxHandshakeFrame bounds every handshake frame body; none of them
// legitimately exceeds a couple hundred bytes (an alive-name plus a
// handful of fixed fields), so this is generous headroom against a
// hostile peer rather than a tight protocol limit.
const maxHandshakeFrame = 4096

// handshakeResult is what a successful handshake, in either role,
// hands back to the connection layer.
type handshakeResult struct {
	PeerName    Atom
	DistVersion uint16
	Flags       uint32
}

func requiredFlags() uint32 {
	return wire.FlagExtendedReferences | wire.FlagExtendedPidsPorts
}

func negotiateVersion(peerDistHigh uint16, selfDistHigh uint16) (uint16, error) {
	v := peerDistHigh
	if selfDistHigh < v {
		v = selfDistHigh
	}
	if v < wire.MinDistVersion {
		return 0, newAuthError("peer offered distribution version %d, below minimum %d", v, wire.MinDistVersion)
	}
	return v, nil
}

func checkFlags(flags uint32) error {
	if flags&requiredFlags() != requiredFlags() {
		return newAuthError("peer flags 0x%x missing required extended-refs/extended-pids-ports bits", flags)
	}
	return nil
}

// challengeDigest computes md5(cookie || ascii-decimal(challenge)), the
// exact digest both handshake roles compare against. challenge is
// treated as unsigned even though it travels the wire as a 4-byte
// field with no sign of its own; the re-encoding to an unsigned
// decimal string is what a real Erlang peer expects.
func challengeDigest(cookie string, challenge uint32) [16]byte {
	h := md5.New()
	h.Write([]byte(cookie))
	h.Write([]byte(fmt.Sprintf("%d", challenge)))
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func randomChallenge() uint32 {
	return rand.Uint32()
}

// -- frame encode/decode --------------------------------------------

func encodeNameFrame(distHigh uint16, flags uint32, name Atom) []byte {
	b := make([]byte, 0, 7+len(name))
	b = append(b, wire.HandshakeTagName)
	b = appendUint16(b, distHigh)
	b = appendUint32(b, flags)
	b = append(b, []byte(name)...)
	return b
}

func decodeNameFrame(body []byte) (distHigh uint16, flags uint32, name Atom, err error) {
	if len(body) < 7 || body[0] != wire.HandshakeTagName {
		return 0, 0, "", newDecodeError("malformed name frame (%d bytes)", len(body))
	}
	distHigh = readUint16At(body, 1)
	flags = readUint32At(body, 3)
	name = Atom(body[7:])
	return distHigh, flags, name, nil
}

func encodeStatusFrame(status string) []byte {
	b := make([]byte, 0, 1+len(status))
	b = append(b, wire.HandshakeTagStatus)
	return append(b, []byte(status)...)
}

func decodeStatusFrame(body []byte) (string, error) {
	if len(body) < 1 || body[0] != wire.HandshakeTagStatus {
		return "", newDecodeError("malformed status frame (%d bytes)", len(body))
	}
	return string(body[1:]), nil
}

func encodeChallengeFrame(distHigh uint16, flags uint32, challenge uint32, name Atom) []byte {
	b := make([]byte, 0, 11+len(name))
	b = append(b, wire.HandshakeTagChallenge)
	b = appendUint16(b, distHigh)
	b = appendUint32(b, flags)
	b = appendUint32(b, challenge)
	b = append(b, []byte(name)...)
	return b
}

func decodeChallengeFrame(body []byte) (distHigh uint16, flags uint32, challenge uint32, name Atom, err error) {
	if len(body) < 11 || body[0] != wire.HandshakeTagChallenge {
		return 0, 0, 0, "", newDecodeError("malformed challenge frame (%d bytes)", len(body))
	}
	distHigh = readUint16At(body, 1)
	flags = readUint32At(body, 3)
	challenge = readUint32At(body, 7)
	name = Atom(body[11:])
	return distHigh, flags, challenge, name, nil
}

func encodeChallengeReplyFrame(challenge uint32, digest [16]byte) []byte {
	b := make([]byte, 0, 21)
	b = append(b, wire.HandshakeTagReply)
	b = appendUint32(b, challenge)
	return append(b, digest[:]...)
}

func decodeChallengeReplyFrame(body []byte) (challenge uint32, digest [16]byte, err error) {
	if len(body) != 21 || body[0] != wire.HandshakeTagReply {
		return 0, digest, newDecodeError("malformed challenge-reply frame (%d bytes)", len(body))
	}
	challenge = readUint32At(body, 1)
	copy(digest[:], body[5:21])
	return challenge, digest, nil
}

func encodeChallengeAckFrame(digest [16]byte) []byte {
	b := make([]byte, 0, 17)
	b = append(b, wire.HandshakeTagAck)
	return append(b, digest[:]...)
}

func decodeChallengeAckFrame(body []byte) (digest [16]byte, err error) {
	if len(body) != 17 || body[0] != wire.HandshakeTagAck {
		return digest, newDecodeError("malformed challenge-ack frame (%d bytes)", len(body))
	}
	copy(digest[:], body[1:17])
	return digest, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint16At(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

func readUint32At(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

// -- state machines ---------------------------------------------------

// doAcceptHandshake runs the accepting side of the handshake on an
// already-open TCP connection: the peer connected to us.
func doAcceptHandshake(conn net.Conn, selfName Atom, selfDistHigh uint16, cookie string, logger Logger) (*handshakeResult, error) {
	state := stateNew

	nameBody, err := wire.ReadFrame16(conn, maxHandshakeFrame)
	if err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	peerDistHigh, peerFlags, peerName, err := decodeNameFrame(nameBody)
	if err != nil {
		return nil, err
	}
	if err := checkFlags(peerFlags); err != nil {
		return nil, err
	}
	dist, err := negotiateVersion(peerDistHigh, selfDistHigh)
	if err != nil {
		return nil, err
	}
	state = stateNameSeen
	logger.Trace("handshake: accepted name frame from %s, dist=%d flags=0x%x", peerName, peerDistHigh, peerFlags)

	if err := wire.WriteFrame16(conn, encodeStatusFrame("ok")); err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	state = stateStatusOK

	ourChallenge := randomChallenge()
	if err := wire.WriteFrame16(conn, encodeChallengeFrame(selfDistHigh, requiredFlags(), ourChallenge, selfName)); err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	state = stateChallenge

	replyBody, err := wire.ReadFrame16(conn, maxHandshakeFrame)
	if err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	theirChallenge, theirDigest, err := decodeChallengeReplyFrame(replyBody)
	if err != nil {
		return nil, err
	}
	state = stateReply

	wantDigest := challengeDigest(cookie, ourChallenge)
	if theirDigest != wantDigest {
		return nil, newAuthError("bad cookie from %s during %s", peerName, state)
	}

	ackDigest := challengeDigest(cookie, theirChallenge)
	if err := wire.WriteFrame16(conn, encodeChallengeAckFrame(ackDigest)); err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	state = stateOpen
	logger.Trace("handshake: accepted connection from %s is now open", peerName)

	return &handshakeResult{PeerName: peerName, DistVersion: dist, Flags: peerFlags}, nil
}

// doInitiateHandshake runs the initiating side: we dialed out to the
// peer.
func doInitiateHandshake(conn net.Conn, selfName Atom, selfDistHigh uint16, cookie string, logger Logger) (*handshakeResult, error) {
	if err := wire.WriteFrame16(conn, encodeNameFrame(selfDistHigh, requiredFlags(), selfName)); err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	state := stateNameSeen

	statusBody, err := wire.ReadFrame16(conn, maxHandshakeFrame)
	if err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	status, err := decodeStatusFrame(statusBody)
	if err != nil {
		return nil, err
	}
	if status != "ok" {
		return nil, newAuthError("peer handshake status %q, expected ok", status)
	}
	state = stateStatusOK

	challengeBody, err := wire.ReadFrame16(conn, maxHandshakeFrame)
	if err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	peerDistHigh, peerFlags, peerChallenge, peerName, err := decodeChallengeFrame(challengeBody)
	if err != nil {
		return nil, err
	}
	if err := checkFlags(peerFlags); err != nil {
		return nil, err
	}
	dist, err := negotiateVersion(peerDistHigh, selfDistHigh)
	if err != nil {
		return nil, err
	}
	state = stateChallenge
	logger.Trace("handshake: received challenge from %s, dist=%d", peerName, peerDistHigh)

	ourChallenge := randomChallenge()
	ourDigest := challengeDigest(cookie, peerChallenge)
	if err := wire.WriteFrame16(conn, encodeChallengeReplyFrame(ourChallenge, ourDigest)); err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	state = stateReply

	ackBody, err := wire.ReadFrame16(conn, maxHandshakeFrame)
	if err != nil {
		return nil, newIOError(conn.RemoteAddr().String(), err)
	}
	ackDigest, err := decodeChallengeAckFrame(ackBody)
	if err != nil {
		return nil, err
	}
	state = stateAck

	wantAck := challengeDigest(cookie, ourChallenge)
	if ackDigest != wantAck {
		return nil, newAuthError("bad cookie from %s during %s", peerName, state)
	}
	state = stateOpen
	logger.Trace("handshake: connection to %s is now open", peerName)

	return &handshakeResult{PeerName: peerName, DistVersion: dist, Flags: peerFlags}, nil
}
