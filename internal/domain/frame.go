package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one inbound record. Raw keeps the full JSON object so that the
// action specific body can be decoded by whoever handles it.
type Frame struct {
	Action    Action
	RequestID string
	Raw       json.RawMessage
}

// ParseFrame validates the envelope of an inbound payload.
func ParseFrame(data []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Action == "" {
		return Frame{}, fmt.Errorf("%w: missing action", ErrMalformedFrame)
	}
	return Frame{Action: env.Action, RequestID: env.RequestID, Raw: data}, nil
}

// Decode unmarshals the frame body into v.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Action, err)
	}
	return nil
}
