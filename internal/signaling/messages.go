// Package signaling implements the JSON control protocol spoken over the
// rover's websocket endpoint: drive commands, photo requests, status
// reports, frame subscriptions and WebRTC offer/answer exchange.
package signaling

import "encoding/json"

// Message types for the control protocol.
const (
	TypeRegistered  = "registered"
	TypeDrive       = "drive"
	TypePhoto       = "photo"
	TypeStatus      = "status"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

// Message is the envelope for all control messages. Payload holds a
// drive.Command for drive, a drive.Status for status, a control.PhotoResult
// for photo replies and an SDP session description for offer and answer.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Msg       string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// NewMessage builds a message, marshalling payload if it is not nil.
func NewMessage(typ string, payload any) (Message, error) {
	msg := Message{Type: typ}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.Payload = data
	return msg, nil
}
