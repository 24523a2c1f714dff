package ws

import "testing"

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient("u1", nil, ConnInfo{ConnID: "c1", UserID: "u1"})
	if !hub.HasListeners("u1") {
		t.Fatalf("expected listener after add")
	}

	hub.RemoveClient("u1", nil)
	if hub.HasListeners("u1") {
		t.Fatalf("expected listener to be removed")
	}
	if len(hub.clients) != 0 || len(hub.connInfo) != 0 {
		t.Fatalf("expected empty hub state after removal")
	}
}

func TestHubHasListenersUnknownUser(t *testing.T) {
	hub := NewHub()
	if hub.HasListeners("nobody") {
		t.Fatalf("expected no listeners for unknown user")
	}
}
