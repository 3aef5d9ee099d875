// Package playback provides the per-tenant playback session and the audio
// transport contracts it drives.
package playback

// State represents the playback state of a session.
type State int

const (
	StateIdle      State = iota // Session exists, nothing playing yet
	StateResolving              // Waiting for the first resolution to settle
	StatePlaying                // Track is playing
	StatePaused                 // Track is paused
	StateDestroyed              // Session torn down; terminal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Active reports whether a track is loaded (playing or paused).
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
