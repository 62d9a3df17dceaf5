package tcptransport

import (
	"net"
	"testing"
	"time"

	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/wirename"
)

func testName(s string) wirename.Name {
	return wirename.New(wirename.Segment{Type: wirename.SegmentAPP, Value: []byte(s)})
}

func TestDialAndListenerRoundTrip(t *testing.T) {
	t.Parallel()

	serverLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	serverAddr := serverLn.Addr().String()

	m := New()
	var server interface {
		Receive() (*message.Message, bool)
		Close() error
	}
	serverCh := make(chan error, 1)
	go func() {
		conn, err := serverLn.Accept()
		if err != nil {
			serverCh <- err
			return
		}
		server = newLink("server", defaultMTU, conn, false)
		serverCh <- nil
	}()

	client, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: serverAddr})
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}
	defer client.Close()

	if err := <-serverCh; err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer server.Close()

	interest := message.NewInterest(nil, &message.Interest{Name: testName("x")})
	if err := client.Send(interest); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan bool, 1)
	var got *message.Message
	go func() {
		m, ok := server.Receive()
		got = m
		done <- ok
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Receive: closed before delivery")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	if !got.Interest().Name.Equal(interest.Interest().Name) {
		t.Errorf("round-trip mismatch: got %+v", got.Interest())
	}
}

func TestSendFailsAfterClose(t *testing.T) {
	t.Parallel()

	serverLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer serverLn.Close()
	go func() {
		conn, err := serverLn.Accept()
		if err == nil {
			newLink("server", defaultMTU, conn, false)
		}
	}()

	m := New()
	client, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: serverLn.Addr().String()})
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}

	client.Close()
	if err := client.Send(message.NewInterest(nil, &message.Interest{Name: testName("x")})); err == nil {
		t.Error("expected Send on a closed link to fail")
	}
}
