package lifecycle

import (
	"sync"
	"time"

	"github.com/vectorgrp/sil-kit-sub002/router"
)

// Logger matches router.Logger.
type Logger = router.Logger

// ParticipantStatus is a participant's last-known lifecycle state (spec
// §3).
type ParticipantStatus struct {
	ParticipantName string
	State           ParticipantState
	EnterReason     string
	EnterTime       time.Time
}

// SystemStateHandler is notified whenever the aggregate SystemState
// changes (spec §4.7, §8 scenario 6).
type SystemStateHandler func(state ParticipantState)

// Tracker is C7: per-participant state tracking plus system-state
// aggregation over an injected required-participant set, and connected-peer
// bookkeeping wired to the router's connect/disconnect notifications.
type Tracker struct {
	logger Logger

	mu                     sync.Mutex
	statuses               map[string]ParticipantStatus
	invalidTransitionCount uint64
	required               map[string]struct{}
	connected              map[string]struct{}
	systemStateHandlers    []SystemStateHandler
	lastNotifiedState      ParticipantState
	errorLatched           bool
}

// NewTracker constructs a Tracker and wires its connected-peer bookkeeping
// to r's connect/disconnect notifications.
func NewTracker(r router.Router, logger Logger) *Tracker {
	if logger == nil {
		logger = router.NoopLogger()
	}
	t := &Tracker{
		logger:            logger,
		statuses:          make(map[string]ParticipantStatus),
		required:          make(map[string]struct{}),
		connected:         make(map[string]struct{}),
		lastNotifiedState: StateInvalid,
	}
	r.OnParticipantConnected(t.onParticipantConnected)
	r.OnParticipantDisconnected(t.onParticipantDisconnected)
	return t
}

func (t *Tracker) onParticipantConnected(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected[name] = struct{}{}
}

func (t *Tracker) onParticipantDisconnected(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connected, name)
}

// IsParticipantConnected is O(1); connection and lifecycle state are
// tracked independently (spec §4.7's closing note).
func (t *Tracker) IsParticipantConnected(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.connected[name]
	return ok
}

// UpdateRequiredParticipantNames replaces the required-participant set
// used by SystemState aggregation.
func (t *Tracker) UpdateRequiredParticipantNames(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.required = make(map[string]struct{}, len(names))
	for _, n := range names {
		t.required[n] = struct{}{}
	}
}

// SetParticipantState records an observed transition for name. A
// transition outside the allowed graph increments invalidTransitionCount
// and is otherwise ignored — the stored state is left unchanged (spec
// §4.7: "no retroactive correction"). It returns the recomputed
// SystemState and whether it changed since the last call.
func (t *Tracker) SetParticipantState(name string, newState ParticipantState, reason string) (ParticipantState, bool) {
	t.mu.Lock()

	current, known := t.statuses[name]
	from := StateInvalid
	if known {
		from = current.State
	}

	if !IsValidTransition(from, newState) {
		t.invalidTransitionCount++
		t.logger.Warn("lifecycle: invalid participant state transition observed", "participant", name, "from", from, "to", newState)
		t.mu.Unlock()
		return t.systemStateLocked(), false
	}

	t.statuses[name] = ParticipantStatus{ParticipantName: name, State: newState, EnterReason: reason, EnterTime: time.Now()}

	newSystemState := t.systemStateLocked()
	changed := newSystemState != t.lastNotifiedState
	if changed {
		t.lastNotifiedState = newSystemState
	}
	handlers := append([]SystemStateHandler(nil), t.systemStateHandlers...)
	t.mu.Unlock()

	if changed {
		for _, h := range handlers {
			h(newSystemState)
		}
	}
	return newSystemState, changed
}

// GetParticipantStatus returns the last-known status for name.
func (t *Tracker) GetParticipantStatus(name string) (ParticipantStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[name]
	return s, ok
}

// InvalidTransitionCount reports how many observed transitions were
// rejected by the graph.
func (t *Tracker) InvalidTransitionCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invalidTransitionCount
}

// RegisterSystemStateHandler appends handler to the set notified on every
// SystemState change.
func (t *Tracker) RegisterSystemStateHandler(handler SystemStateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.systemStateHandlers = append(t.systemStateHandlers, handler)
}

// SystemState recomputes and returns the current aggregate state (spec
// §4.7).
func (t *Tracker) SystemState() ParticipantState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.systemStateLocked()
}

func (t *Tracker) systemStateLocked() ParticipantState {
	if len(t.required) == 0 {
		return StateInvalid
	}

	requiredStates := make([]ParticipantState, 0, len(t.required))
	for name := range t.required {
		status, ok := t.statuses[name]
		if !ok {
			requiredStates = append(requiredStates, StateInvalid)
			continue
		}
		requiredStates = append(requiredStates, status.State)
	}

	anyError := false
	allShutdown := true
	for _, s := range requiredStates {
		if s == StateError {
			anyError = true
		}
		if s != StateShutdown {
			allShutdown = false
		}
	}
	if anyError {
		t.errorLatched = true
	}
	if t.errorLatched {
		if allShutdown {
			return StateShutdown
		}
		return StateError
	}

	anyPaused := false
	allOthersAtLeastRunning := true
	for _, s := range requiredStates {
		if s == StatePaused {
			anyPaused = true
			continue
		}
		if !atLeastRunning(s) {
			allOthersAtLeastRunning = false
		}
	}
	if anyPaused && allOthersAtLeastRunning {
		return StatePaused
	}

	for _, s := range requiredStates {
		if s == StateShuttingDown {
			return StateShuttingDown
		}
	}
	for _, s := range requiredStates {
		if s == StateStopping {
			return StateStopping
		}
	}
	for _, s := range requiredStates {
		if s == StateStopped {
			return StateStopped
		}
	}

	minIndex := -2
	for _, s := range requiredStates {
		idx := canonicalIndex(s)
		if minIndex == -2 || idx < minIndex {
			minIndex = idx
		}
	}
	if minIndex < 0 {
		return StateInvalid
	}
	return canonicalOrder[minIndex]
}
