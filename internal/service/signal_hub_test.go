package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignalHubPresenceDelivery(t *testing.T) {
	hub := NewSignalHub(0, 4, zap.NewNop())

	peer, cleanup := hub.RegisterPresence("bob", nil)
	defer cleanup()

	hub.Notify("bob", []byte("ring"))
	hub.Notify("nobody", []byte("lost")) // absent subscriber: silent drop

	select {
	case got := <-peer.Send:
		assert.Equal(t, "ring", string(got))
	default:
		t.Fatal("expected a presence delivery")
	}
	assert.Empty(t, peer.Send)
}

func TestSignalHubSessionDeliveryPerUser(t *testing.T) {
	hub := NewSignalHub(0, 4, zap.NewNop())

	alice, cleanupA := hub.RegisterSession("s-1", "alice", nil)
	defer cleanupA()
	bob, cleanupB := hub.RegisterSession("s-1", "bob", nil)
	defer cleanupB()

	hub.SendToUser("s-1", "bob", []byte("for-bob"))

	require.Len(t, bob.Send, 1)
	assert.Equal(t, "for-bob", string(<-bob.Send))
	assert.Empty(t, alice.Send, "session sends are per-user, not broadcast")
}

func TestSignalHubDropOnFullBuffer(t *testing.T) {
	hub := NewSignalHub(0, 1, zap.NewNop())

	peer, cleanup := hub.RegisterSession("s-1", "bob", nil)
	defer cleanup()

	hub.SendToUser("s-1", "bob", []byte("first"))
	hub.SendToUser("s-1", "bob", []byte("second")) // buffer full: dropped, not queued

	require.Len(t, peer.Send, 1)
	assert.Equal(t, "first", string(<-peer.Send))
	assert.Empty(t, peer.Send)
}

func TestSignalHubCloseSession(t *testing.T) {
	hub := NewSignalHub(0, 4, zap.NewNop())

	peer, cleanup := hub.RegisterSession("s-1", "alice", nil)
	presence, pcleanup := hub.RegisterPresence("alice", nil)
	defer pcleanup()

	hub.CloseSession("s-1")
	assert.Equal(t, 0, hub.PeerCount("s-1"))

	_, open := <-peer.Send
	assert.False(t, open, "session channel must be closed")

	// Sends after close are dropped, not panicking.
	hub.SendToUser("s-1", "alice", []byte("late"))
	assert.False(t, peer.TrySend([]byte("late")))

	// Presence survives session teardown.
	hub.Notify("alice", []byte("still-here"))
	require.Len(t, presence.Send, 1)

	// Cleanup after CloseSession is a no-op.
	cleanup()
}

func TestSignalHubUnregisterIdempotentWithClose(t *testing.T) {
	hub := NewSignalHub(0, 4, zap.NewNop())

	_, cleanup := hub.RegisterSession("s-1", "alice", nil)
	cleanup()
	cleanup() // double cleanup must not panic
	hub.CloseSession("s-1")
}
