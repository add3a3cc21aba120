package realtime

import (
	"net"
	"testing"
	"time"
)

func TestComputeAcceptKey(t *testing.T) {
	// RFC 6455, section 1.3
	got := computeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	if got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("computeAcceptKey() = %q", got)
	}
}

func TestPublishDeliversToBoardSubscribers(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()

	hub := NewBoardHub()
	hub.Register("b1", newConn(serverEnd))
	if n := hub.Subscribers("b1"); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Publish("b1", map[string]string{"state": "ready"})
		hub.Publish("other", map[string]string{"state": "ignored"})
	}()

	client := newConn(clientEnd)
	var got map[string]string
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got["state"] != "ready" {
		t.Errorf("payload = %v", got)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestPublishDropsBrokenSubscriber(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	clientEnd.Close()

	hub := NewBoardHub()
	hub.Register("b1", newConn(serverEnd))
	hub.Publish("b1", map[string]int{"generation": 1})

	if n := hub.Subscribers("b1"); n != 0 {
		t.Errorf("Subscribers() = %d after failed write, want 0", n)
	}
}

func TestCloseBoard(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	go func() {
		buf := make([]byte, 16)
		for {
			if _, err := clientEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	hub := NewBoardHub()
	hub.Register("b1", newConn(serverEnd))
	hub.CloseBoard("b1")

	if n := hub.Subscribers("b1"); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}
