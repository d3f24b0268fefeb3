package session

import "fmt"

type State string

type Event string

const (
	StateConnected  State = "connected"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateClosed     State = "closed"
)

const (
	EventHandshake  Event = "handshake"
	EventFinalize   Event = "finalize"
	EventFinalized  Event = "finalized"
	EventDisconnect Event = "disconnect"
)

// Transition validates one step of a session's lifecycle. A disconnect
// before the handshake closes the session directly.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateConnected:
		switch event {
		case EventHandshake:
			return StateStreaming, nil
		case EventDisconnect:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStreaming:
		switch event {
		case EventFinalize:
			return StateFinalizing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventFinalized:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
