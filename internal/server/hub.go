package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/protocol"
)

// Event is the unit of broadcast. Events are immutable once published.
type Event struct {
	Type      protocol.EventType
	ClientID  uuid.UUID
	Name      string
	Text      string
	Timestamp time.Time
}

// Stats is a point-in-time view of hub counters for observers.
type Stats struct {
	Clients         int
	Delivered       uint64
	SlowDisconnects uint64
}

// Hub is the single ordering and fan-out point for chat events. All
// publishes funnel through one intake channel drained by a dedicated
// goroutine, so every client observes the same total order. Each recipient
// has its own bounded queue; a recipient whose queue is full is forcibly
// disconnected rather than allowed to stall delivery or grow memory
// without bound.
type Hub struct {
	registry  *Registry
	intake    chan Event
	tap       chan Event
	queueSize int
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	delivered       atomic.Uint64
	slowDisconnects atomic.Uint64
}

// NewHub creates a hub whose clients get outbound queues of queueSize.
func NewHub(queueSize int, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:  NewRegistry(),
		intake:    make(chan Event),
		queueSize: queueSize,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Registry exposes the client registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:         h.registry.Len(),
		Delivered:       h.delivered.Load(),
		SlowDisconnects: h.slowDisconnects.Load(),
	}
}

// Tap returns a read-only stream of every event the hub processes, for
// display purposes only. A stalled consumer loses events instead of
// stalling delivery. Must be called before Run.
func (h *Hub) Tap(buffer int) <-chan Event {
	h.tap = make(chan Event, buffer)
	return h.tap
}

// Publish submits an event to the intake. It blocks until the hub accepts
// the event, which fixes the event's position in the total order, or
// returns without effect once the hub is shutting down.
func (h *Hub) Publish(ev Event) {
	select {
	case h.intake <- ev:
	case <-h.ctx.Done():
	}
}

// Run drains the intake until Shutdown. It must run in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.intake:
			h.fanOut(ev)
		}
	}
}

// Admit attaches a freshly registered client to the hub: the writer starts
// first so fan-out can reach the client, the Join and roster events are
// published, and only then does the reader start so nothing the client
// sends can precede its own Join in the total order.
func (h *Hub) Admit(c *Client) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	h.Publish(Event{
		Type:      protocol.EventJoin,
		ClientID:  c.id,
		Name:      c.name,
		Timestamp: time.Now().UTC(),
	})
	h.Publish(Event{Type: protocol.EventRoster})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// fanOut delivers one event to every live client except its originator.
// It runs only on the hub goroutine.
func (h *Hub) fanOut(ev Event) {
	h.observe(ev)

	payload, err := h.encode(ev)
	if err != nil {
		h.log.Error("failed to encode event", "type", ev.Type, "err", err)
		return
	}

	var slow []*Client
	for _, c := range h.registry.Snapshot() {
		if ev.ClientID != uuid.Nil && c.id == ev.ClientID {
			// Echo suppression: a client never receives its own events.
			continue
		}
		select {
		case c.send <- payload:
			h.delivered.Add(1)
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		h.dropSlow(c)
	}
}

// dropSlow forcibly disconnects a client whose queue is full and fans its
// Leave out inline, keeping the synthetic event at a consistent point in
// the total order. Dropping messages instead would let loss go unnoticed.
func (h *Hub) dropSlow(c *Client) {
	if !c.teardown(false) {
		return
	}
	h.slowDisconnects.Add(1)
	c.log.Warn("outbound queue full, disconnecting slow client")
	h.fanOut(Event{
		Type:      protocol.EventLeave,
		ClientID:  c.id,
		Name:      c.name,
		Timestamp: time.Now().UTC(),
	})
	h.fanOut(Event{Type: protocol.EventRoster})
}

// observe forwards the event to the tap without ever blocking.
func (h *Hub) observe(ev Event) {
	if h.tap == nil {
		return
	}
	select {
	case h.tap <- ev:
	default:
	}
}

// encode serializes an event once; the same bytes go to every recipient.
// Roster frames are filled from the registry here, on the hub goroutine,
// so the user list matches the event's position in the order.
func (h *Hub) encode(ev Event) ([]byte, error) {
	frame := protocol.ServerFrame{
		Type: ev.Type,
		Name: ev.Name,
	}
	if ev.ClientID != uuid.Nil {
		frame.ClientID = ev.ClientID.String()
	}
	switch ev.Type {
	case protocol.EventMessage:
		frame.Text = ev.Text
		frame.Timestamp = ev.Timestamp
	case protocol.EventRoster:
		names := h.registry.Names()
		frame.Users = make([]protocol.User, len(names))
		for i, name := range names {
			frame.Users[i] = protocol.User{Name: name}
		}
		frame.Count = len(names)
	}
	return protocol.EncodeServerFrame(frame)
}

// Shutdown stops the intake, tears down every client, and waits for the
// pump goroutines up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	clients := h.registry.Snapshot()
	for _, c := range clients {
		c.teardown(false)
	}
	if len(clients) > 0 {
		h.log.Info("closed client connections", "count", len(clients))
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, pumps may still be running")
		return context.DeadlineExceeded
	}
}
