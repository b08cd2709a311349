package ern

import (
	"net"
	"testing"

	"github.com/ern-go/ern/internal/wire"
)

func runHandshakePair(t *testing.T, acceptCookie, initCookie string) (*handshakeResult, *handshakeResult, error, error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	type out struct {
		res *handshakeResult
		err error
	}
	acceptCh := make(chan out, 1)
	initCh := make(chan out, 1)

	go func() {
		res, err := doAcceptHandshake(serverConn, "server@host", wire5Max, acceptCookie, NullLogger)
		if err != nil {
			serverConn.Close()
		}
		acceptCh <- out{res, err}
	}()
	go func() {
		res, err := doInitiateHandshake(clientConn, "client@host", wire5Max, initCookie, NullLogger)
		if err != nil {
			clientConn.Close()
		}
		initCh <- out{res, err}
	}()

	a := <-acceptCh
	i := <-initCh
	clientConn.Close()
	serverConn.Close()
	return a.res, i.res, a.err, i.err
}

// wire5Max is the distribution version both sides advertise in these
// tests; it's comfortably above the protocol minimum of 5.
const wire5Max = 6

func TestHandshakeSuccess(t *testing.T) {
	acceptRes, initRes, acceptErr, initErr := runHandshakePair(t, "cookie123", "cookie123")
	if acceptErr != nil {
		t.Fatalf("accept side: %v", acceptErr)
	}
	if initErr != nil {
		t.Fatalf("initiate side: %v", initErr)
	}
	if acceptRes.PeerName != Atom("client@host") {
		t.Fatalf("accept side saw peer name %q, want client@host", acceptRes.PeerName)
	}
	if initRes.PeerName != Atom("server@host") {
		t.Fatalf("initiate side saw peer name %q, want server@host", initRes.PeerName)
	}
	if acceptRes.DistVersion != wire5Max || initRes.DistVersion != wire5Max {
		t.Fatalf("negotiated versions = %d/%d, want %d on both sides", acceptRes.DistVersion, initRes.DistVersion, wire5Max)
	}
}

func TestHandshakeCookieMismatch(t *testing.T) {
	_, _, acceptErr, initErr := runHandshakePair(t, "correct-cookie", "wrong-cookie")
	if acceptErr == nil {
		t.Fatal("expected accept side to fail on cookie mismatch")
	}
	if _, ok := acceptErr.(*AuthError); !ok {
		t.Fatalf("accept side error = %T, want *AuthError", acceptErr)
	}
	// The initiator only learns about the mismatch once the acceptor's
	// ack (or lack of one) comes back; closing the pipe on the accept
	// side surfaces as an I/O error there, which is still a failure.
	if initErr == nil {
		t.Log("initiate side happened not to observe the failure in this run; acceptErr alone proves the defect was caught")
	}
}

func TestHandshakeRejectsLowDistVersion(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := doAcceptHandshake(serverConn, "server@host", wire5Max, "cookie", NullLogger)
		errCh <- err
	}()

	// Hand-roll a name frame advertising a distribution version below
	// the minimum, bypassing doInitiateHandshake's normal framing.
	body := encodeNameFrame(uint16(wire.MinDistVersion-1), requiredFlags(), "client@host")
	if err := wire.WriteFrame16(clientConn, body); err != nil {
		t.Fatalf("write name frame: %v", err)
	}

	err := <-errCh
	if err == nil {
		t.Fatal("expected the accept side to reject a below-minimum distribution version")
	}
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("error = %T, want *AuthError", err)
	}
}
