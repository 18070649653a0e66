package protocol

import (
	"encoding/json"
	"time"
)

// DecodeError marks a failure to turn wire bytes into a valid
// Message: malformed JSON, a missing/unknown kind, or a missing
// sender_id. Always non-fatal to the connection it arrived on;
// callers log and keep reading.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "protocol: decode error: " + e.Reason
}

// Payload is the free-form, per-kind body of a Message. Its schema
// depends on Kind; the protocol layer never inspects or validates its
// contents beyond "is it a JSON object" — that's left to the
// per-kind handler.
type Payload map[string]interface{}

// Message is the wire envelope exchanged between nodes.
type Message struct {
	Kind      Kind    `json:"type"`
	SenderID  string  `json:"sender_id"`
	TimestampMs int64 `json:"timestamp"`
	Payload   Payload `json:"payload"`
}

// New constructs a Message stamped with the current wall-clock
// millisecond as TimestampMs; a nil payload becomes an empty one.
func New(kind Kind, senderID string, payload Payload) Message {
	if payload == nil {
		payload = Payload{}
	}
	return Message{
		Kind:        kind,
		SenderID:    senderID,
		TimestampMs: nowMs(),
		Payload:     payload,
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Encode serializes the Message to its UTF-8 JSON wire form. This is
// total for every validly-constructed Message.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type      string  `json:"type"`
		SenderID  string  `json:"sender_id"`
		Timestamp int64   `json:"timestamp"`
		Payload   Payload `json:"payload"`
	}{
		Type:      string(m.Kind),
		SenderID:  m.SenderID,
		Timestamp: m.TimestampMs,
		Payload:   m.Payload,
	})
}

// ToBytes implements the Framable interface the outbound client's
// enqueue helper looks for.
func (m Message) ToBytes() ([]byte, error) {
	return m.Encode()
}

// wireMessage is the literal JSON shape on the wire, kept separate
// from Message so zero-value timestamp/payload fields can be told
// apart from "absent" during decode.
type wireMessage struct {
	Type      *string                `json:"type"`
	SenderID  *string                `json:"sender_id"`
	Timestamp *int64                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Decode parses raw wire bytes into a Message: rejects non-object
// input, missing or unknown `type`, missing `sender_id`; defaults a
// missing `timestamp` to now and a missing `payload` to an empty
// object.
func Decode(raw []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, &DecodeError{Reason: err.Error()}
	}

	if w.Type == nil {
		return Message{}, &DecodeError{Reason: "missing field: type"}
	}
	kind := Kind(*w.Type)
	if !kind.Valid() {
		return Message{}, &DecodeError{Reason: "unknown kind: " + *w.Type}
	}

	if w.SenderID == nil || *w.SenderID == "" {
		return Message{}, &DecodeError{Reason: "missing field: sender_id"}
	}

	ts := nowMs()
	if w.Timestamp != nil {
		ts = *w.Timestamp
	}

	payload := Payload{}
	if w.Payload != nil {
		payload = Payload(w.Payload)
	}

	return Message{
		Kind:        kind,
		SenderID:    *w.SenderID,
		TimestampMs: ts,
		Payload:     payload,
	}, nil
}
