package enums

// EventType is the canonical event_type routed by the queue worker.
type EventType string

const (
	EventCreateObject       EventType = "CREATE_OBJECT"
	EventDeleteMedias       EventType = "DELETE_MEDIAS"
	EventDeleteNotes        EventType = "DELETE_NOTES"
	EventDeleteUser         EventType = "DELETE_USER"
	EventDeleteProfilePhoto EventType = "DELETE_PROFILE_PHOTO"
	EventUnknown            EventType = "UNKNOWN"
)

var validEventTypes = []EventType{
	EventCreateObject,
	EventDeleteMedias,
	EventDeleteNotes,
	EventDeleteUser,
	EventDeleteProfilePhoto,
	EventUnknown,
}

// String returns the literal string for the event type.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the event type is known.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into an EventType, mapping anything
// unrecognized to EventUnknown.
func ParseEventType(value string) EventType {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate
		}
	}
	return EventUnknown
}
