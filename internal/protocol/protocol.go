// Package protocol defines the framed JSON messages exchanged between the
// coordinator and worker nodes over the persistent worker channel. Every
// frame carries a type, an opaque payload, and a send timestamp; unknown
// frame types are answered with an ERROR frame rather than dropped.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType discriminates frames on the worker channel.
type MessageType string

const (
	// Worker → coordinator
	MsgNodeRegister   MessageType = "node_register"
	MsgHeartbeat      MessageType = "node_heartbeat"
	MsgTaskResult     MessageType = "task_result"
	MsgTaskError      MessageType = "task_error"
	MsgTaskStream     MessageType = "task_stream"
	MsgClassifyResult MessageType = "classify_result"
	MsgClassifyError  MessageType = "classify_error"

	// Coordinator → worker
	MsgRegisterAck    MessageType = "register_ack"
	MsgHeartbeatAck   MessageType = "heartbeat_ack"
	MsgTaskAssign     MessageType = "task_assign"
	MsgClassifyAssign MessageType = "classify_assign"
	MsgDisconnect     MessageType = "node_disconnect"
	MsgError          MessageType = "error"
)

// Frame is the wire envelope for a single message.
type Frame struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	TS        float64         `json:"ts"`
	Signature string          `json:"signature,omitempty"`
}

// NewFrame builds a frame around the given payload, stamping the current time.
func NewFrame(t MessageType, payload any) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Frame{
		Type:    t,
		Payload: raw,
		TS:      float64(time.Now().UnixNano()) / float64(time.Second),
	}, nil
}

// Encode serializes the frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses a frame off the wire. The payload stays raw until the
// handler binds it with ParsePayload.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &f, nil
}

// ParsePayload binds the frame payload into the given struct.
func ParsePayload(f *Frame, into any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", f.Type)
	}
	if err := json.Unmarshal(f.Payload, into); err != nil {
		return fmt.Errorf("%s: parse payload: %w", f.Type, err)
	}
	return nil
}
