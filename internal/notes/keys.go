package notes

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	noteMediaKeyPrefix    = "notes/"
	profilePhotoKeyPrefix = "profile-photos/"
)

// KeyKind classifies an object-store key by its shape.
type KeyKind int

const (
	KeyKindUnknown KeyKind = iota
	KeyKindNoteMedia
	KeyKindProfilePhoto
)

// MediaID derives the stable media map key from the client global id.
func MediaID(globalID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(globalID))
}

// NoteMediaKey renders the object-store key for a note media.
func NoteMediaKey(ownerID, noteID, mediaID string) string {
	return fmt.Sprintf("%s%s/%s/%s", noteMediaKeyPrefix, ownerID, noteID, mediaID)
}

// NoteMediaPrefix renders the object-store prefix covering every media of a
// note. Used by cascade deletes.
func NoteMediaPrefix(ownerID, noteID string) string {
	return fmt.Sprintf("%s%s/%s/", noteMediaKeyPrefix, ownerID, noteID)
}

// ProfilePhotoKey renders the object-store key for a profile photo.
func ProfilePhotoKey(userID, fileID string) string {
	return fmt.Sprintf("%s%s/%s", profilePhotoKeyPrefix, userID, fileID)
}

// ClassifyKey identifies which subsystem owns an object-store key.
func ClassifyKey(key string) KeyKind {
	switch {
	case strings.HasPrefix(key, noteMediaKeyPrefix):
		return KeyKindNoteMedia
	case strings.HasPrefix(key, profilePhotoKeyPrefix):
		return KeyKindProfilePhoto
	default:
		return KeyKindUnknown
	}
}

// ParseNoteMediaKey splits a note media key into its components.
func ParseNoteMediaKey(key string) (ownerID, noteID, mediaID string, err error) {
	rest, ok := strings.CutPrefix(key, noteMediaKeyPrefix)
	if !ok {
		return "", "", "", fmt.Errorf("not a note media key: %s", key)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed note media key: %s", key)
	}
	return parts[0], parts[1], parts[2], nil
}

// ParseProfilePhotoKey splits a profile photo key into its components.
func ParseProfilePhotoKey(key string) (userID, fileID string, err error) {
	rest, ok := strings.CutPrefix(key, profilePhotoKeyPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a profile photo key: %s", key)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed profile photo key: %s", key)
	}
	return parts[0], parts[1], nil
}
