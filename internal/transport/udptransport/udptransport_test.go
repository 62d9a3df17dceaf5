package udptransport

import (
	"testing"
	"time"

	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/wirename"
)

func testName(s string) wirename.Name {
	return wirename.New(wirename.Segment{Type: wirename.SegmentAPP, Value: []byte(s)})
}

func mustOpenListener(t *testing.T, m *Module, authority string) *Link {
	t.Helper()
	l, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: authority, Listener: true})
	if err != nil {
		t.Fatalf("Open listener: %v", err)
	}
	return l.(*Link)
}

func TestDialAndListenerRoundTrip(t *testing.T) {
	t.Parallel()

	m := New()
	server := mustOpenListener(t, m, "127.0.0.1:0")
	defer server.Close()

	serverAddr := server.conn.LocalAddr().String()
	clientLink, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: serverAddr})
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}
	defer clientLink.Close()

	interest := message.NewInterest(nil, &message.Interest{Name: testName("x")})
	if err := clientLink.Send(interest); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, ok := server.Receive()
	if !ok {
		t.Fatal("Receive: closed before delivery")
	}
	if !got.Interest().Name.Equal(interest.Interest().Name) {
		t.Errorf("round-trip mismatch: got %+v", got.Interest())
	}
}

func TestListenerLocksOntoFirstPeer(t *testing.T) {
	t.Parallel()

	m := New()
	server := mustOpenListener(t, m, "127.0.0.1:0")
	defer server.Close()

	serverAddr := server.conn.LocalAddr().String()
	client, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: serverAddr})
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}
	defer client.Close()

	if err := client.Send(message.NewInterest(nil, &message.Interest{Name: testName("x")})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := server.Receive(); !ok {
		t.Fatal("Receive: closed before delivery")
	}

	if err := server.Send(message.NewInterest(nil, &message.Interest{Name: testName("reply")})); err != nil {
		t.Fatalf("reply Send: %v", err)
	}

	replyCh := make(chan *message.Message, 1)
	go func() {
		reply, ok := client.Receive()
		if ok {
			replyCh <- reply
		}
	}()

	select {
	case reply := <-replyCh:
		if !reply.Interest().Name.Equal(testName("reply")) {
			t.Errorf("reply mismatch: got %+v", reply.Interest())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestSendBeforePeerKnownFails(t *testing.T) {
	t.Parallel()

	m := New()
	server := mustOpenListener(t, m, "127.0.0.1:0")
	defer server.Close()

	if err := server.Send(message.NewInterest(nil, &message.Interest{Name: testName("x")})); err == nil {
		t.Error("expected Send to fail before any peer has sent a datagram")
	}
}
