// Package fsm defines the capture session state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateReady      State = "ready"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

const (
	EventStart       Event = "start"
	EventPause       Event = "pause"
	EventResume      Event = "resume"
	EventStop        Event = "stop"
	EventSucceed     Event = "succeed"
	EventFail        Event = "fail"
	EventCancel      Event = "cancel"
	EventAcknowledge Event = "acknowledge"
	EventReset       Event = "reset"
)

// Transition applies one event to a state and returns the next state.
// Transitions are strictly forward except recording <-> paused. Cancel
// returns to ready from every state except processing, which runs to
// completion or failure once entered.
func Transition(current State, event Event) (State, error) {
	if event == EventCancel {
		if current == StateProcessing {
			return current, invalidTransition(current, event)
		}
		return StateReady, nil
	}

	switch current {
	case StateReady:
		switch event {
		case EventStart:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventPause:
			return StatePaused, nil
		case EventStop:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePaused:
		switch event {
		case EventResume:
			return StateRecording, nil
		case EventStop:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventSucceed:
			return StateComplete, nil
		case EventFail:
			// Processing failures return to ready so another attempt can be
			// made; the queued audio stays in the pending store.
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateComplete:
		switch event {
		case EventAcknowledge:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFailed:
		switch event {
		case EventReset:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
