package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/protocol"
)

func newTestHub(t *testing.T, queueSize int) *Hub {
	t.Helper()
	h := NewHub(queueSize, discardLogger())
	go h.Run()
	t.Cleanup(func() { _ = h.Shutdown(time.Second) })
	return h
}

// addClient registers a handle without a real socket; the hub only touches
// the outbound queue, so tests read c.send directly.
func addClient(t *testing.T, h *Hub, name string) *Client {
	t.Helper()
	c := newClient(uuid.New(), name, nil, h, 4096, newRateLimiter(1000, time.Second), discardLogger())
	require.NoError(t, h.registry.Register(c))
	return c
}

func recvFrame(t *testing.T, c *Client, timeout time.Duration) protocol.ServerFrame {
	t.Helper()
	select {
	case payload := <-c.send:
		frame, err := protocol.DecodeServerFrame(payload)
		require.NoError(t, err)
		return frame
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for frame on %s's queue", c.name)
		return protocol.ServerFrame{}
	}
}

func expectNoFrame(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("%s unexpectedly received frame: %s", c.name, payload)
	case <-time.After(wait):
	}
}

func messageEvent(sender uuid.UUID, name, text string) Event {
	return Event{
		Type:      protocol.EventMessage,
		ClientID:  sender,
		Name:      name,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

func TestHubSuppressesEcho(t *testing.T) {
	h := newTestHub(t, 16)
	alice := addClient(t, h, "alice")
	bob := addClient(t, h, "bob")

	h.Publish(messageEvent(alice.id, "alice", "hi"))

	frame := recvFrame(t, bob, time.Second)
	require.Equal(t, protocol.EventMessage, frame.Type)
	require.Equal(t, "alice", frame.Name)
	require.Equal(t, "hi", frame.Text)
	require.False(t, frame.Timestamp.IsZero())

	expectNoFrame(t, alice, 100*time.Millisecond)
}

func TestHubRosterFrame(t *testing.T) {
	h := newTestHub(t, 16)
	alice := addClient(t, h, "alice")
	addClient(t, h, "bob")

	h.Publish(Event{Type: protocol.EventRoster})

	frame := recvFrame(t, alice, time.Second)
	require.Equal(t, protocol.EventRoster, frame.Type)
	require.Equal(t, 2, frame.Count)
	require.Equal(t, []protocol.User{{Name: "alice"}, {Name: "bob"}}, frame.Users)
}

// Every connected client must observe the same total order, and within it
// each sender's messages must keep their send order.
func TestHubTotalOrderAcrossConcurrentSenders(t *testing.T) {
	const senders = 3
	const perSender = 100

	h := newTestHub(t, senders*perSender+16)
	receivers := []*Client{
		addClient(t, h, "r1"),
		addClient(t, h, "r2"),
	}

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := uuid.New()
			for i := 0; i < perSender; i++ {
				h.Publish(messageEvent(id, fmt.Sprintf("sender-%d", s), fmt.Sprintf("%d/%d", s, i)))
			}
		}(s)
	}
	wg.Wait()

	total := senders * perSender
	observed := make([][]string, len(receivers))
	for ri, r := range receivers {
		for i := 0; i < total; i++ {
			frame := recvFrame(t, r, time.Second)
			require.Equal(t, protocol.EventMessage, frame.Type)
			observed[ri] = append(observed[ri], frame.Text)
		}
	}

	// Identical total order on every receiver.
	require.Equal(t, observed[0], observed[1])

	// Per-sender FIFO within the total order.
	next := make([]int, senders)
	for _, text := range observed[0] {
		var s, i int
		_, err := fmt.Sscanf(text, "%d/%d", &s, &i)
		require.NoError(t, err)
		require.Equal(t, next[s], i, "sender %d out of order", s)
		next[s]++
	}
}

// A recipient that stops draining must be disconnected once its queue
// fills, without losing or reordering anyone else's delivery.
func TestHubDisconnectsSlowConsumer(t *testing.T) {
	h := newTestHub(t, 256)

	turtle := addClient(t, h, "turtle")
	turtle.send = make(chan []byte, 2) // shrink just this queue

	hare := addClient(t, h, "hare")

	sender := uuid.New()
	const total = 50
	for i := 0; i < total; i++ {
		h.Publish(messageEvent(sender, "flood", fmt.Sprintf("m%d", i)))
	}

	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, uint64(1), h.Stats().SlowDisconnects)

	var messages []string
	var leaves []string
	deadline := time.After(time.Second)
	for len(messages) < total || len(leaves) < 1 {
		select {
		case payload := <-hare.send:
			frame, err := protocol.DecodeServerFrame(payload)
			require.NoError(t, err)
			switch frame.Type {
			case protocol.EventMessage:
				messages = append(messages, frame.Text)
			case protocol.EventLeave:
				leaves = append(leaves, frame.Name)
			}
		case <-deadline:
			t.Fatalf("timed out; got %d messages, %d leaves", len(messages), len(leaves))
		}
	}

	require.Len(t, leaves, 1)
	require.Equal(t, "turtle", leaves[0])
	for i, text := range messages {
		require.Equal(t, fmt.Sprintf("m%d", i), text)
	}
}

// Concurrent read-side and write-side failure must produce exactly one
// Leave and one registry removal.
func TestHubSingleTeardownUnderRace(t *testing.T) {
	h := newTestHub(t, 64)
	doomed := addClient(t, h, "doomed")
	observer := addClient(t, h, "observer")

	var wg sync.WaitGroup
	wins := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- doomed.teardown(true)
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	require.Equal(t, 1, winners)
	require.Equal(t, 1, h.registry.Len())

	// Exactly one Leave reaches the observer; keep draining briefly to
	// catch a duplicate.
	leaves := 0
	deadline := time.After(time.Second)
	quiet := time.After(0) // replaced once the first Leave arrives
	for done := false; !done; {
		select {
		case payload := <-observer.send:
			frame, err := protocol.DecodeServerFrame(payload)
			require.NoError(t, err)
			if frame.Type == protocol.EventLeave {
				leaves++
				quiet = time.After(100 * time.Millisecond)
			}
		case <-quiet:
			done = leaves > 0
		case <-deadline:
			done = true
		}
	}
	require.Equal(t, 1, leaves)
}

func TestHubTapObservesWithoutBlocking(t *testing.T) {
	h := NewHub(16, discardLogger())
	tap := h.Tap(1)
	go h.Run()
	t.Cleanup(func() { _ = h.Shutdown(time.Second) })

	receiver := addClient(t, h, "receiver")

	sender := uuid.New()
	for i := 0; i < 5; i++ {
		h.Publish(messageEvent(sender, "chatty", fmt.Sprintf("m%d", i)))
	}

	// Delivery is unaffected by the stalled tap.
	for i := 0; i < 5; i++ {
		frame := recvFrame(t, receiver, time.Second)
		require.Equal(t, fmt.Sprintf("m%d", i), frame.Text)
	}

	// The tap holds the first event; the rest were dropped, not queued.
	ev := <-tap
	require.Equal(t, "m0", ev.Text)
	require.LessOrEqual(t, len(tap), 1)
}

func TestHubShutdownStopsPublish(t *testing.T) {
	h := NewHub(16, discardLogger())
	go h.Run()
	addClient(t, h, "lingering")

	require.NoError(t, h.Shutdown(time.Second))
	require.Equal(t, 0, h.registry.Len())

	finished := make(chan struct{})
	go func() {
		h.Publish(messageEvent(uuid.New(), "late", "anyone there?"))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after shutdown")
	}
}
