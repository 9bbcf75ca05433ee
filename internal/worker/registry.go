package worker

import (
	"errors"
	"fmt"

	"github.com/notewellhq/notewell-backend/pkg/enums"
)

// Registry is the fixed event-type to handler mapping, built once in the
// composition root. Every event type, Unknown included, must have exactly
// one handler.
type Registry struct {
	handlers map[enums.EventType]Handler
}

// RegistryHandlers names the handler for each event type.
type RegistryHandlers struct {
	CreateObject       Handler
	DeleteMedias       Handler
	DeleteNotes        Handler
	DeleteUser         Handler
	DeleteProfilePhoto Handler
	Unknown            Handler
}

func NewRegistry(handlers RegistryHandlers) (*Registry, error) {
	entries := map[enums.EventType]Handler{
		enums.EventCreateObject:       handlers.CreateObject,
		enums.EventDeleteMedias:       handlers.DeleteMedias,
		enums.EventDeleteNotes:        handlers.DeleteNotes,
		enums.EventDeleteUser:         handlers.DeleteUser,
		enums.EventDeleteProfilePhoto: handlers.DeleteProfilePhoto,
		enums.EventUnknown:            handlers.Unknown,
	}
	for event, handler := range entries {
		if handler == nil {
			return nil, fmt.Errorf("missing handler for event type %s", event)
		}
	}
	return &Registry{handlers: entries}, nil
}

// Lookup returns the handler owning the event type.
func (r *Registry) Lookup(event enums.EventType) (Handler, error) {
	handler, ok := r.handlers[event]
	if !ok {
		return nil, errors.New("no handler registered for event type " + event.String())
	}
	return handler, nil
}
