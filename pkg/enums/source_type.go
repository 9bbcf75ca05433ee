package enums

// SourceType identifies the originator of a queue message.
type SourceType string

const (
	SourceObjectStore  SourceType = "OBJECT_STORE"
	SourceNoteService  SourceType = "NOTE_SERVICE"
	SourceAuthService  SourceType = "AUTH_SERVICE"
	SourceQueueService SourceType = "QUEUE_SERVICE"
	SourceUnknown      SourceType = "UNKNOWN"
)

var validSourceTypes = []SourceType{
	SourceObjectStore,
	SourceNoteService,
	SourceAuthService,
	SourceQueueService,
	SourceUnknown,
}

// String returns the literal string for the source type.
func (s SourceType) String() string {
	return string(s)
}

// IsValid reports whether the source type is known.
func (s SourceType) IsValid() bool {
	for _, candidate := range validSourceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSourceType converts raw input into a SourceType, mapping anything
// unrecognized to SourceUnknown.
func ParseSourceType(value string) SourceType {
	for _, candidate := range validSourceTypes {
		if string(candidate) == value {
			return candidate
		}
	}
	return SourceUnknown
}
