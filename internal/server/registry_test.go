package server

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBareClient(name string) *Client {
	hub := NewHub(16, discardLogger())
	return newClient(uuid.New(), name, nil, hub, 4096, newRateLimiter(1000, time.Second), discardLogger())
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	c := newBareClient("alice")

	require.NoError(t, r.Register(c))
	require.Equal(t, 1, r.Len())

	removed, err := r.Unregister(c.id)
	require.NoError(t, err)
	require.Same(t, c, removed)
	require.Equal(t, 0, r.Len())
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	c := newBareClient("alice")
	imposter := newBareClient("mallory")
	imposter.id = c.id

	require.NoError(t, r.Register(c))
	require.ErrorIs(t, r.Register(imposter), ErrAlreadyRegistered)
	require.Equal(t, 1, r.Len())
}

func TestRegistryUnregisterTwice(t *testing.T) {
	r := NewRegistry()
	c := newBareClient("alice")

	require.NoError(t, r.Register(c))
	_, err := r.Unregister(c.id)
	require.NoError(t, err)

	_, err = r.Unregister(c.id)
	require.ErrorIs(t, err, ErrNotRegistered)
	require.Equal(t, 0, r.Len())
}

func TestRegistryUnregisterUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Unregister(uuid.New())
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistrySnapshotJoinOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"alice", "bob", "carol", "dave"}
	clients := make([]*Client, len(names))
	for i, name := range names {
		clients[i] = newBareClient(name)
		require.NoError(t, r.Register(clients[i]))
	}

	_, err := r.Unregister(clients[1].id)
	require.NoError(t, err)

	require.Equal(t, []string{"alice", "carol", "dave"}, r.Names())

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 3)
	require.Same(t, clients[0], snapshot[0])
	require.Same(t, clients[2], snapshot[1])
	require.Same(t, clients[3], snapshot[2])
}

// The registry must always contain exactly the clients registered and not
// yet unregistered, for any connect/disconnect sequence.
func TestRegistryExactness(t *testing.T) {
	r := NewRegistry()
	live := make(map[uuid.UUID]*Client)

	for i := 0; i < 50; i++ {
		c := newBareClient("client")
		require.NoError(t, r.Register(c))
		live[c.id] = c

		if i%3 == 0 {
			for id := range live {
				_, err := r.Unregister(id)
				require.NoError(t, err)
				delete(live, id)
				break
			}
		}
		require.Equal(t, len(live), r.Len())
	}
}
