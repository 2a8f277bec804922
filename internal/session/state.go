package session

// State is the per-session playback state machine:
//
//	Idle → Playing ⇄ Paused → (Advancing | Retreating) → Playing | Ended
//
// Ended is terminal. Paused is derived: the controller reports Paused whenever
// it would be Playing but the interaction gate holds at least one active pause
// source.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateAdvancing
	StateRetreating
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateAdvancing:
		return "advancing"
	case StateRetreating:
		return "retreating"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
