// Package types holds the wire envelopes shared by every API response.
package types

// SuccessEnvelope wraps every 2xx payload under a "data" key so clients can
// decode success and error bodies with one shape check.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public projection of a coded error. Details is only
// populated for codes whose metadata allows exposing them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx payload.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
