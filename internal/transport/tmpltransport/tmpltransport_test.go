package tmpltransport

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

func TestNewPairDeliversAcrossEnds(t *testing.T) {
	t.Parallel()

	a, b := NewPair("a", "b", 1500)
	defer a.Close()
	defer b.Close()

	i := message.NewInterest(nil, &message.Interest{Name: testName("x")})
	if err := a.Send(i); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, ok := b.Receive()
	if !ok {
		t.Fatal("Receive: closed before delivery")
	}
	if !got.Interest().Name.Equal(i.Interest().Name) {
		t.Errorf("delivered message mismatch: %+v", got)
	}
}

func TestSendFailsAfterClose(t *testing.T) {
	t.Parallel()

	a, b := NewPair("a", "b", 1500)
	defer b.Close()

	a.Close()
	if err := a.Send(message.NewInterest(nil, &message.Interest{Name: testName("x")})); err == nil {
		t.Error("expected Send on a closed link to fail")
	}
}

func TestModuleOpenPairsMatchingAuthority(t *testing.T) {
	t.Parallel()

	m := New()
	first, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: "pair-1", Name: "a"})
	if err != nil {
		t.Fatalf("Open (first): %v", err)
	}
	second, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: "pair-1", Name: "b"})
	if err != nil {
		t.Fatalf("Open (second): %v", err)
	}
	defer first.Close()
	defer second.Close()

	i := message.NewInterest(nil, &message.Interest{Name: testName("x")})
	if err := first.Send(i); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := second.Receive()
		done <- ok
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Error("Receive: closed before delivery")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for paired delivery")
	}
}

func TestModuleOpenFirstHalfHasNoPeerYet(t *testing.T) {
	t.Parallel()

	m := New()
	only, err := m.Open(&transport.ConnectionURI{Scheme: Scheme, Authority: "lonely"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer only.Close()

	if err := only.Send(message.NewInterest(nil, &message.Interest{Name: testName("x")})); err == nil {
		t.Error("expected Send to fail before a peer connects")
	}
}
