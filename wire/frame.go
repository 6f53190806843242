package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmptyEvent = errors.New("frame: empty event name")

// Frame is the envelope of every websocket text message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals v as the data of a frame named event.
func Encode(event string, v interface{}) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	f := Frame{Event: event}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("frame: marshal `%s` data: %w", event, err)
		}
		f.Data = data
	}
	return json.Marshal(&f)
}

// Decode parses a websocket text message into a frame.
func Decode(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	if f.Event == "" {
		return nil, ErrEmptyEvent
	}
	return &f, nil
}

// Bind unmarshals the frame data into v. A frame without data leaves v unchanged.
func (f *Frame) Bind(v interface{}) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("frame: bind `%s` data: %w", f.Event, err)
	}
	return nil
}
