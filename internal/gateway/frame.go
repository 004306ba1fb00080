package gateway

import (
	"encoding/json"

	"github.com/torrpeddo/torrpeddo/internal/relay"
)

// Frame is one websocket message in either direction. ID is opaque and only
// echoed back on replies to host-native requests.
type Frame struct {
	Channel string          `json:"channel"`
	ID      json.RawMessage `json:"id,omitempty"`
	Payload relay.Message   `json:"payload"`
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
