package playback

// EventType represents a transport event type.
type EventType int

const (
	EventTrackEnded EventType = iota // Track finished playing
	EventError                       // Transport failed mid-playback
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackEnded:
		return "track_ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by a Connection for the track identified by TrackID.
type Event struct {
	Type    EventType
	TrackID uint64 // Track the event belongs to, as returned by Connection.Play
	Err     error  // Set for EventError
}

// EventHandler receives transport events. It is called from transport
// goroutines and must not block.
type EventHandler func(Event)
