package requestreply

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectorgrp/sil-kit-sub002/router"
)

// ParticipantReplies is the one concrete procedure specified by spec §4.5:
// an all-participants barrier. Grounded directly on
// SilKit/source/core/requests/procs/ParticipantReplies.cpp.
type ParticipantReplies struct {
	svc *Service
	r   router.Router

	mu       sync.Mutex
	active   bool
	expected map[string]struct{}
	onDone   func()
}

var _ Procedure = (*ParticipantReplies)(nil)

// NewParticipantReplies constructs a ParticipantReplies procedure bound to
// svc and registers it as the handler for FunctionTypeParticipantReplies.
func NewParticipantReplies(svc *Service, r router.Router) *ParticipantReplies {
	p := &ParticipantReplies{svc: svc, r: r}
	svc.RegisterProcedure(FunctionTypeParticipantReplies, p)
	return p
}

// CallAfterAllParticipantsReplied issues a ParticipantReplies call and
// invokes fn once every participant that was connected at call time has
// answered (a real Success, or a synthesized RecipientDisconnected). Only
// one barrier may be active at a time; a concurrent attempt is dropped.
//
// The snapshot of "who is connected right now" and the actual Call are
// both performed inside ExecuteDeferred, on the router's I/O goroutine —
// otherwise a participant could join between counting receivers and
// issuing the call, leaving the barrier waiting on a reply that can never
// arrive (spec §4.5).
func (p *ParticipantReplies) CallAfterAllParticipantsReplied(fn func()) {
	p.r.ExecuteDeferred(func() {
		p.mu.Lock()
		if p.active {
			p.mu.Unlock()
			p.svc.logger.Warn("requestreply: ParticipantReplies barrier already active, dropping concurrent attempt")
			return
		}

		recipients := p.r.GetParticipantNamesOfRemoteReceivers("RequestReplyCall")
		if len(recipients) == 0 {
			p.mu.Unlock()
			fn()
			return
		}

		p.active = true
		p.onDone = fn
		p.expected = make(map[string]struct{}, len(recipients))
		for _, name := range recipients {
			p.expected[name] = struct{}{}
		}
		p.mu.Unlock()

		if _, err := p.svc.Call(FunctionTypeParticipantReplies, nil); err != nil {
			p.mu.Lock()
			p.active = false
			p.mu.Unlock()
		}
	})
}

// ReceiveCall implements Procedure: this side is being probed by a peer's
// barrier, and immediately answers Success with no data, making the
// barrier a pure liveness probe.
func (p *ParticipantReplies) ReceiveCall(svc *Service, fromParticipant string, callUUID uuid.UUID, _ []byte) {
	_ = svc.SubmitCallReturn(callUUID, FunctionTypeParticipantReplies, CallReturnStatusSuccess, nil)
}

// ReceiveCallReturn implements Procedure: any status (including
// RecipientDisconnected) counts as a reply. Once every expected
// participant has replied, onDone fires exactly once.
func (p *ParticipantReplies) ReceiveCallReturn(fromParticipant string, _ uuid.UUID, _ CallReturnStatus, _ []byte) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	delete(p.expected, fromParticipant)
	done := len(p.expected) == 0
	var onDone func()
	if done {
		p.active = false
		onDone = p.onDone
		p.onDone = nil
	}
	p.mu.Unlock()

	if done && onDone != nil {
		onDone()
	}
}
