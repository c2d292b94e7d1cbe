// Package message defines the wire messages exchanged between group
// members: application multicasts and the acknowledgments that gate their
// delivery.
//
// A message's identity is deterministic: "<sender>_<timestamp>". Because a
// sender reads its timestamp under the clock's exclusive increment, no two
// distinct messages from the same sender can share an id.
package message

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the two message variants on the wire.
type Type string

const (
	// TypeMulticast is an application message broadcast to the group.
	TypeMulticast Type = "multicast"

	// TypeAck acknowledges receipt of a multicast message.
	TypeAck Type = "ack"
)

// Message is a single wire message. Messages are immutable once
// constructed; handlers copy them by value.
type Message struct {
	// ID is the deterministic message identity, "<sender>_<timestamp>".
	ID string

	// Type is either TypeMulticast or TypeAck.
	Type Type

	// Sender is the originating process identifier.
	Sender string

	// Timestamp is the sender's logical clock value at send time.
	Timestamp int

	// Content is the application payload. Multicast only.
	Content string

	// TargetID is the id of the multicast being acknowledged. Ack only.
	TargetID string
}

// wireMessage is the exact JSON frame exchanged between members. The
// variant field that does not apply is carried as an explicit null, not
// omitted.
type wireMessage struct {
	ID        string  `json:"msg_id"`
	Type      Type    `json:"msg_type"`
	Sender    string  `json:"sender"`
	Timestamp int     `json:"timestamp"`
	Content   *string `json:"content"`
	TargetID  *string `json:"original_msg_id"`
}

// FormatID derives the deterministic message id for a sender and timestamp.
func FormatID(sender string, timestamp int) string {
	return fmt.Sprintf("%s_%d", sender, timestamp)
}

// NewMulticast constructs a multicast message with its derived id.
func NewMulticast(sender string, timestamp int, content string) Message {
	return Message{
		ID:        FormatID(sender, timestamp),
		Type:      TypeMulticast,
		Sender:    sender,
		Timestamp: timestamp,
		Content:   content,
	}
}

// NewAck constructs an acknowledgment for the multicast identified by
// targetID.
func NewAck(sender string, timestamp int, targetID string) Message {
	return Message{
		ID:        FormatID(sender, timestamp),
		Type:      TypeAck,
		Sender:    sender,
		Timestamp: timestamp,
		TargetID:  targetID,
	}
}

// Before reports whether m precedes other in the group-wide total order:
// ascending timestamp, sender name as tie-break.
func (m Message) Before(other Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	return m.Sender < other.Sender
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	w := wireMessage{
		ID:        m.ID,
		Type:      m.Type,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
	}
	switch m.Type {
	case TypeMulticast:
		w.Content = &m.Content
	case TypeAck:
		w.TargetID = &m.TargetID
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode parses a wire payload into a message, validating the variant.
// The id is taken from the payload as-is, not re-derived.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}

	m := Message{
		ID:        w.ID,
		Type:      w.Type,
		Sender:    w.Sender,
		Timestamp: w.Timestamp,
	}
	if w.Content != nil {
		m.Content = *w.Content
	}
	if w.TargetID != nil {
		m.TargetID = *w.TargetID
	}

	switch m.Type {
	case TypeMulticast:
		if m.ID == "" || m.Sender == "" {
			return Message{}, fmt.Errorf("multicast message missing id or sender")
		}
	case TypeAck:
		if m.ID == "" || m.Sender == "" || m.TargetID == "" {
			return Message{}, fmt.Errorf("ack message missing id, sender, or target")
		}
	default:
		return Message{}, fmt.Errorf("unknown message type %q", m.Type)
	}

	return m, nil
}
