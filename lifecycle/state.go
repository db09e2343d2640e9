// Package lifecycle implements C7: the per-participant state machine and
// the required-participant-set system-state aggregation built on top of it.
package lifecycle

// ParticipantState is the full state alphabet shared by ParticipantStatus
// and SystemState (spec §3).
type ParticipantState int

const (
	StateInvalid ParticipantState = iota
	StateServicesCreated
	StateCommunicationInitializing
	StateCommunicationInitialized
	StateReadyToRun
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateShuttingDown
	StateShutdown
	StateError
)

func (s ParticipantState) String() string {
	switch s {
	case StateServicesCreated:
		return "ServicesCreated"
	case StateCommunicationInitializing:
		return "CommunicationInitializing"
	case StateCommunicationInitialized:
		return "CommunicationInitialized"
	case StateReadyToRun:
		return "ReadyToRun"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateShutdown:
		return "Shutdown"
	case StateError:
		return "Error"
	default:
		return "Invalid"
	}
}

// canonicalOrder is the happy-path sequence used to compute the minimum
// state among required participants (spec §4.7).
var canonicalOrder = []ParticipantState{
	StateServicesCreated,
	StateCommunicationInitializing,
	StateCommunicationInitialized,
	StateReadyToRun,
	StateRunning,
}

func canonicalIndex(s ParticipantState) int {
	for i, st := range canonicalOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// operationalStates are every state from which `* -> Error` is a legal
// transition (spec §4.7).
var operationalStates = []ParticipantState{
	StateServicesCreated, StateCommunicationInitializing, StateCommunicationInitialized,
	StateReadyToRun, StateRunning, StatePaused, StateStopping, StateStopped,
}

// validTransitions is the explicit transition graph (spec §4.7): the happy
// path, Paused<->Running, *->Error from every operational state,
// Error->ShuttingDown->Shutdown, and Stopped->ServicesCreated as the only
// restart edge.
var validTransitions = buildTransitionGraph()

func buildTransitionGraph() map[ParticipantState]map[ParticipantState]bool {
	g := make(map[ParticipantState]map[ParticipantState]bool)
	add := func(from, to ParticipantState) {
		if g[from] == nil {
			g[from] = make(map[ParticipantState]bool)
		}
		g[from][to] = true
	}

	add(StateInvalid, StateServicesCreated)
	add(StateServicesCreated, StateCommunicationInitializing)
	add(StateCommunicationInitializing, StateCommunicationInitialized)
	add(StateCommunicationInitialized, StateReadyToRun)
	add(StateReadyToRun, StateRunning)

	add(StateRunning, StatePaused)
	add(StatePaused, StateRunning)

	add(StateRunning, StateStopping)
	add(StatePaused, StateStopping)
	add(StateStopping, StateStopped)

	add(StateStopped, StateShuttingDown)
	add(StateStopped, StateServicesCreated)

	add(StateError, StateShuttingDown)
	add(StateShuttingDown, StateShutdown)

	for _, from := range operationalStates {
		add(from, StateError)
	}

	return g
}

// IsValidTransition reports whether from -> to is in the allowed graph.
func IsValidTransition(from, to ParticipantState) bool {
	return validTransitions[from][to]
}

// atLeastRunning reports whether s is Running or any state that follows it
// in the lifecycle (used by the Paused system-state aggregation rule,
// which requires every non-Paused required participant to be "at least
// Running").
func atLeastRunning(s ParticipantState) bool {
	switch s {
	case StateRunning, StatePaused, StateStopping, StateStopped, StateShuttingDown, StateShutdown:
		return true
	default:
		return false
	}
}
