// Package queue implements the SQS-backed pipeline transport: the message
// envelope, raw payload classification, and batch enqueue/receive/delete.
package queue

import (
	"encoding/json"

	"github.com/notewellhq/notewell-backend/pkg/enums"
)

// envelope is the wire format for messages produced by our own services.
type envelope struct {
	SourceType string          `json:"source_type"`
	EventType  string          `json:"event_type"`
	Attempt    int             `json:"attempt"`
	Body       json.RawMessage `json:"body"`
}

// Message is a classified queue message. ReceiptHandle is set on received
// messages and required to acknowledge them.
type Message struct {
	Source        enums.SourceType
	Event         enums.EventType
	Attempt       int
	Body          json.RawMessage
	ReceiptHandle string
}

// RetryCopy returns the requeue copy of the message: attempt bumped, source
// stamped as self-generated, receipt handle cleared. The copy goes back on
// the queue while the original delivery is acknowledged.
func (m Message) RetryCopy() Message {
	return Message{
		Source:  enums.SourceQueueService,
		Event:   m.Event,
		Attempt: m.Attempt + 1,
		Body:    m.Body,
	}
}

// ExhaustedAt reports whether the message has hit the retry ceiling and must
// be acknowledged without further work.
func (m Message) ExhaustedAt(maxAttempt int) bool {
	return m.Source == enums.SourceQueueService && m.Attempt >= maxAttempt
}

// Encode serialises the message into its envelope form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(envelope{
		SourceType: m.Source.String(),
		EventType:  m.Event.String(),
		Attempt:    m.Attempt,
		Body:       m.Body,
	})
}

// s3Notification mirrors the subset of the native S3 event notification shape
// needed to recognise object uploads that bypass our envelope.
type s3Notification struct {
	Records []struct {
		EventSource string `json:"eventSource"`
		EventName   string `json:"eventName"`
	} `json:"Records"`
}

// Parse classifies a raw queue payload. Payloads that are not valid JSON, or
// valid JSON in neither the envelope nor the S3 notification shape, come back
// as UNKNOWN/UNKNOWN with the raw payload preserved as the body.
func Parse(raw []byte) Message {
	var note s3Notification
	if err := json.Unmarshal(raw, &note); err == nil && len(note.Records) > 0 &&
		note.Records[0].EventSource == "aws:s3" {
		return Message{
			Source:  enums.SourceObjectStore,
			Event:   enums.EventCreateObject,
			Attempt: 0,
			Body:    append(json.RawMessage{}, raw...),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.SourceType != "" {
		return Message{
			Source:  enums.ParseSourceType(env.SourceType),
			Event:   enums.ParseEventType(env.EventType),
			Attempt: env.Attempt,
			Body:    env.Body,
		}
	}

	return Message{
		Source:  enums.SourceUnknown,
		Event:   enums.EventUnknown,
		Attempt: 0,
		Body:    append(json.RawMessage{}, raw...),
	}
}
