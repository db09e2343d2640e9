package router

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
)

// defaultLogger wraps the standard library logger, matching
// cmd/main.go's stdLogger idiom in the teacher codebase.
type defaultLogger struct{}

func (defaultLogger) Debug(msg string, kv ...any) { log.Printf("[DEBUG] %s %v", msg, kv) }
func (defaultLogger) Info(msg string, kv ...any)  { log.Printf("[INFO] %s %v", msg, kv) }
func (defaultLogger) Warn(msg string, kv ...any)  { log.Printf("[WARN] %s %v", msg, kv) }
func (defaultLogger) Error(msg string, kv ...any) { log.Printf("[ERROR] %s %v", msg, kv) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

type receiverEntry struct {
	id      HandlerID
	handler ReceiverFunc
}

// InMemoryRouter is the concrete Router: a single cooperative I/O loop
// goroutine owns peer delivery and local dispatch, giving the whole
// router FIFO ordering for free (spec §5's ordering guarantees are a
// corollary of a single serial worker rather than per-triplet queues).
type InMemoryRouter struct {
	participantName string
	logger          Logger

	mu        sync.RWMutex
	receivers map[string][]receiverEntry // payloadType -> receivers
	peers     map[string]PeerLink        // participantName -> link
	nextID    uint64

	connHandlers []ParticipantEventHandler
	discHandlers []ParticipantEventHandler

	tasks   chan func()
	done    chan struct{}
	started bool
}

// NewInMemoryRouter constructs a router for one participant. participantName
// is used only for diagnostics; the router itself does not filter
// self-delivery (that's addressing.AllowMessageProcessing's job, applied
// by callers on the hot path per spec §4.1).
func NewInMemoryRouter(participantName string, logger Logger) *InMemoryRouter {
	if logger == nil {
		logger = NoopLogger()
	}
	r := &InMemoryRouter{
		participantName: participantName,
		logger:          logger,
		receivers:       make(map[string][]receiverEntry),
		peers:           make(map[string]PeerLink),
		tasks:           make(chan func(), 256),
		done:            make(chan struct{}),
	}
	r.Start()
	return r
}

// Start launches the I/O loop goroutine. Safe to call once; NewInMemoryRouter
// already does this.
func (r *InMemoryRouter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.loop()
}

// Stop drains and terminates the I/O loop. Pending tasks already enqueued
// are run to completion before the loop exits.
func (r *InMemoryRouter) Stop() {
	close(r.tasks)
	<-r.done
}

func (r *InMemoryRouter) loop() {
	defer close(r.done)
	for task := range r.tasks {
		task()
	}
}

func (r *InMemoryRouter) enqueue(task func()) {
	defer func() {
		// A send on a closed channel only happens if Stop raced a caller;
		// routers are expected to stop only after their owning participant
		// is fully torn down, so this is a defensive no-op rather than a
		// condition we expect to hit in practice.
		_ = recover()
	}()
	r.tasks <- task
}

// SendMsg broadcasts msg to every currently connected peer. Local
// receivers are not invoked by outbound sends — self-delivery, where
// needed (e.g. trivial-mode bus frames), is the caller's responsibility
// via an explicit Deliver call, because the framing differs per caller
// (TX vs RX direction, discovery's no-self-delivery rule, and so on).
func (r *InMemoryRouter) SendMsg(from addressing.ServiceDescriptor, msg Message) {
	r.enqueue(func() {
		r.mu.RLock()
		peers := make([]PeerLink, 0, len(r.peers))
		for _, p := range r.peers {
			peers = append(peers, p)
		}
		r.mu.RUnlock()

		for _, p := range peers {
			if err := p.Send(from, msg); err != nil {
				r.logger.Warn("send_failed", "peer", p.ParticipantName(), "payload_type", msg.PayloadType(), "error", err.Error())
			}
		}
	})
}

// SendMsgTo delivers msg only to target. If target is not a currently
// connected peer, the send is dropped silently per spec §4.2 — the
// request/reply plane relies on disconnect detection, not a delivery
// error, to surface this.
func (r *InMemoryRouter) SendMsgTo(from addressing.ServiceDescriptor, target string, msg Message) {
	r.enqueue(func() {
		r.mu.RLock()
		peer, ok := r.peers[target]
		r.mu.RUnlock()

		if !ok {
			r.logger.Debug("directed_send_dropped_unknown_peer", "target", target, "payload_type", msg.PayloadType())
			return
		}
		if err := peer.Send(from, msg); err != nil {
			r.logger.Warn("send_failed", "peer", target, "payload_type", msg.PayloadType(), "error", err.Error())
		}
	})
}

// Deliver is called by a PeerLink (or a test harness) when a frame
// arrives from fromParticipant. It dispatches to every local receiver
// registered for msg.PayloadType(), in registration order.
func (r *InMemoryRouter) Deliver(fromParticipant string, msg Message) {
	r.enqueue(func() {
		r.mu.RLock()
		entries := append([]receiverEntry(nil), r.receivers[msg.PayloadType()]...)
		r.mu.RUnlock()

		for _, e := range entries {
			e.handler(fromParticipant, msg)
		}
	})
}

// RegisterReceiver registers handler for payloadType and returns a
// HandlerID that can later be passed to RemoveReceiver.
func (r *InMemoryRouter) RegisterReceiver(payloadType string, handler ReceiverFunc) HandlerID {
	id := HandlerID(atomic.AddUint64(&r.nextID, 1))
	r.mu.Lock()
	r.receivers[payloadType] = append(r.receivers[payloadType], receiverEntry{id: id, handler: handler})
	r.mu.Unlock()
	return id
}

// RemoveReceiver removes a previously registered receiver. It reports
// whether anything was actually removed; calling it with an unknown or
// already-removed id is safe and returns false (spec §9).
func (r *InMemoryRouter) RemoveReceiver(id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for payloadType, entries := range r.receivers {
		for i, e := range entries {
			if e.id == id {
				r.receivers[payloadType] = append(entries[:i], entries[i+1:]...)
				return true
			}
		}
	}
	return false
}

// GetParticipantNamesOfRemoteReceivers returns the names of currently
// connected remote participants considered able to receive payloadType.
// Every participant in this model runs the same router stack, so any
// connected peer is a candidate receiver regardless of payload type; the
// parameter is kept for signature fidelity with spec §4.5's call site and
// so a future transport that exposes per-type subscriptions can narrow it.
func (r *InMemoryRouter) GetParticipantNamesOfRemoteReceivers(payloadType string) []string {
	_ = payloadType
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.peers))
	for name := range r.peers {
		names = append(names, name)
	}
	return names
}

// AddPeer connects a remote participant immediately (not through the I/O
// loop), then notifies registered connection handlers.
func (r *InMemoryRouter) AddPeer(link PeerLink) {
	r.mu.Lock()
	r.peers[link.ParticipantName()] = link
	handlers := append([]ParticipantEventHandler(nil), r.connHandlers...)
	r.mu.Unlock()

	for _, h := range handlers {
		h(link.ParticipantName())
	}
}

// RemovePeer disconnects a remote participant and notifies registered
// disconnection handlers (C3's OnParticipantRemoval, C5's disconnect
// synthesis, C7's connected-peer bookkeeping).
func (r *InMemoryRouter) RemovePeer(name string) {
	r.mu.Lock()
	link, ok := r.peers[name]
	delete(r.peers, name)
	handlers := append([]ParticipantEventHandler(nil), r.discHandlers...)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = link.Close()
	for _, h := range handlers {
		h(name)
	}
}

// OnParticipantConnected registers a handler invoked whenever AddPeer
// connects a new remote participant.
func (r *InMemoryRouter) OnParticipantConnected(handler ParticipantEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connHandlers = append(r.connHandlers, handler)
}

// OnParticipantDisconnected registers a handler invoked whenever RemovePeer
// disconnects a remote participant.
func (r *InMemoryRouter) OnParticipantDisconnected(handler ParticipantEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discHandlers = append(r.discHandlers, handler)
}

// ExecuteDeferred posts callback to the I/O loop. Used by procedures that
// must observe a stable snapshot of "who is connected right now" before
// issuing a call (spec §4.5) — since SendMsg is itself posted to the same
// loop, a deferred callback always executes strictly after every earlier
// enqueued operation. Peer connection changes (AddPeer/RemovePeer) are
// applied directly and are not ordered by the loop.
func (r *InMemoryRouter) ExecuteDeferred(callback func()) {
	r.enqueue(callback)
}

// OnAllMessagesDelivered invokes callback once every message enqueued so
// far has been delivered. Because the loop is strictly FIFO, posting the
// callback behind everything already queued is sufficient.
func (r *InMemoryRouter) OnAllMessagesDelivered(callback func()) {
	r.enqueue(callback)
}

// FlushSendBuffers blocks the calling goroutine until every task enqueued
// so far has run.
func (r *InMemoryRouter) FlushSendBuffers() {
	done := make(chan struct{})
	r.enqueue(func() { close(done) })
	<-done
}
