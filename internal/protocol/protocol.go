// Package protocol defines the JSON frames exchanged between the parlor
// server and its clients. Frames ride on websocket text messages, so the
// transport provides the message boundaries and no extra length prefixing
// is needed.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType tags a server-to-client frame.
type EventType string

const (
	// EventJoin announces that a client connected.
	EventJoin EventType = "join"
	// EventMessage carries a chat message.
	EventMessage EventType = "message"
	// EventLeave announces that a client disconnected.
	EventLeave EventType = "leave"
	// EventRoster carries the current list of connected users.
	EventRoster EventType = "users"
)

// FrameType tags a client-to-server frame.
type FrameType string

const (
	// FrameHello is the first frame a client must send; it carries the
	// requested display name.
	FrameHello FrameType = "hello"
	// FrameMessage submits a chat message.
	FrameMessage FrameType = "message"
	// FrameBye asks for a clean disconnect.
	FrameBye FrameType = "bye"
)

// MaxNameLength bounds display names; longer names are truncated at the
// handshake rather than rejected.
const MaxNameLength = 32

// User is a roster entry.
type User struct {
	Name string `json:"name"`
}

// ServerFrame is the wire form of every server-to-client event.
// Text and Timestamp are present only for message frames; Users and Count
// only for roster frames.
type ServerFrame struct {
	Type      EventType `json:"type"`
	ClientID  string    `json:"client_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Users     []User    `json:"users,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// ClientFrame is the wire form of every client-to-server frame.
type ClientFrame struct {
	Type FrameType `json:"type"`
	Name string    `json:"name,omitempty"`
	Text string    `json:"text,omitempty"`
}

// EncodeServerFrame marshals a server frame for transmission.
func EncodeServerFrame(f ServerFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeServerFrame parses a frame received from the server.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ServerFrame{}, fmt.Errorf("protocol: decode server frame: %w", err)
	}
	switch f.Type {
	case EventJoin, EventMessage, EventLeave, EventRoster:
		return f, nil
	default:
		return ServerFrame{}, fmt.Errorf("protocol: unknown server frame type %q", f.Type)
	}
}

// EncodeClientFrame marshals a client frame for transmission.
func EncodeClientFrame(f ClientFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeClientFrame parses a frame received from a client. An unknown type
// or malformed JSON is an error; the server treats both as connection-fatal.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("protocol: decode client frame: %w", err)
	}
	switch f.Type {
	case FrameHello, FrameMessage, FrameBye:
		return f, nil
	default:
		return ClientFrame{}, fmt.Errorf("protocol: unknown client frame type %q", f.Type)
	}
}

// CleanName trims and truncates a requested display name. The result may be
// empty, in which case the server assigns a fallback.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	return name
}
