package models

import "encoding/json"

// FrameType names a message on the notification duplex channel.
type FrameType string

const (
	// FrameReceiveNotification is pushed by the hub; the payload is a Notification.
	FrameReceiveNotification FrameType = "receiveNotification"
	// FrameSendNotification is sent by a client; the payload is an OutboundNotification.
	FrameSendNotification FrameType = "sendNotification"
	// FrameAck answers a FrameSendNotification with the same Ref.
	FrameAck FrameType = "ack"
)

// Frame is the envelope of every message on the notification channel.
type Frame struct {
	Type     FrameType       `json:"type"`
	Ref      string          `json:"ref,omitempty"`
	Accepted bool            `json:"accepted,omitempty"`
	Error    string          `json:"error,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewFrame encodes payload into a frame of the given type.
func NewFrame(t FrameType, ref string, payload any) (Frame, error) {
	f := Frame{Type: t, Ref: ref}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Payload = raw
	return f, nil
}

// Ack builds the reply to a send request.
func Ack(ref string, err error) Frame {
	f := Frame{Type: FrameAck, Ref: ref, Accepted: err == nil}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}
