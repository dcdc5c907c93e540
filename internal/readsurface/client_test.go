package readsurface

import "testing"

func newTestClient(bufSize int) *Client {
	return NewClient(nil, bufSize)
}

func TestNewClientDefaultsToJSONAndSubscribed(t *testing.T) {
	c := newTestClient(4)
	if c.Format() != FormatJSON {
		t.Fatalf("expected default format JSON, got %d", c.Format())
	}
	if !c.IsSubscribed() {
		t.Fatal("expected a new client to start subscribed")
	}
}

func TestSetFormat(t *testing.T) {
	c := newTestClient(4)
	c.SetFormat(FormatBinary)
	if c.Format() != FormatBinary {
		t.Fatalf("expected FormatBinary, got %d", c.Format())
	}
}

func TestUnsubscribeThenSubscribe(t *testing.T) {
	c := newTestClient(4)
	c.Unsubscribe()
	if c.IsSubscribed() {
		t.Fatal("expected client to be unsubscribed")
	}
	c.Subscribe()
	if !c.IsSubscribed() {
		t.Fatal("expected client to be subscribed again")
	}
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	c := newTestClient(1)
	if !c.Send([]byte("a")) {
		t.Fatal("expected first send to succeed")
	}
	if c.Send([]byte("b")) {
		t.Fatal("expected second send to be dropped (buffer full)")
	}
	if c.Dropped != 1 {
		t.Fatalf("expected Dropped=1, got %d", c.Dropped)
	}
}

func TestClientIDsAreUnique(t *testing.T) {
	a := newTestClient(1)
	b := newTestClient(1)
	if a.ID == b.ID {
		t.Fatal("expected distinct client IDs")
	}
}
