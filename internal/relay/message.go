package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/torrpeddo/torrpeddo/internal/errors"
)

// Message is one opaque structured value: a tree of JSON scalars, arrays
// and objects. Numbers are kept as json.Number so integers of any size
// survive a round trip untouched.
type Message struct {
	v any
}

// NewMessage wraps an arbitrary value. It is marshalled with encoding/json
// when encoded.
func NewMessage(v any) Message {
	return Message{v: v}
}

// Value returns the decoded value (map[string]any, []any, string,
// json.Number, bool or nil).
func (m Message) Value() any {
	return m.v
}

// MarshalJSON encodes the wrapped value.
func (m Message) MarshalJSON() ([]byte, error) {
	return marshal(m.v)
}

// UnmarshalJSON decodes exactly one JSON value, keeping numbers exact.
func (m *Message) UnmarshalJSON(data []byte) error {
	v, err := decodeValue(data)
	if err != nil {
		return err
	}
	m.v = v
	return nil
}

// String renders the message compactly for logs.
func (m Message) String() string {
	b, err := marshal(m.v)
	if err != nil {
		return fmt.Sprintf("<unencodable %T>", m.v)
	}
	return string(b)
}

// Encode serializes msg as one newline-terminated record. encoding/json
// escapes control characters inside strings, so the record never contains
// an embedded newline.
func Encode(msg Message) ([]byte, error) {
	b, err := marshal(msg.v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrEncode, err)
	}
	return append(b, '\n'), nil
}

// Decode parses one record into a Message. The record must hold exactly one
// JSON value; anything else yields a *errors.DecodeError.
func Decode(line []byte) (Message, error) {
	return decodeAt(0, line)
}

func decodeAt(n int64, line []byte) (Message, error) {
	v, err := decodeValue(line)
	if err != nil {
		return Message{}, errors.NewDecodeError(n, line, err)
	}
	return Message{v: v}, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty record")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}
