package wsgateway

import (
	"encoding/json"
	"time"

	"github.com/yndnr/pairmesh-go/internal/transport"
)

// Frame types exchanged with the gateway.
const (
	FrameHello            = "hello"
	FrameCredsUpdate      = "creds.update"
	FrameConnectionUpdate = "connection.update"
	FrameMessagesUpsert   = "messages.upsert"
	FrameSend             = "send"
)

// CloseLoggedOut is the websocket close code the gateway uses for a revoked
// session. It maps to transport.StatusLoggedOut.
const CloseLoggedOut = 4401

// Frame is the envelope of every gateway message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HelloFrame is sent first after dialing.
type HelloFrame struct {
	Identity string          `json:"identity"`
	Browser  BrowserFrame    `json:"browser"`
	Creds    json.RawMessage `json:"creds,omitempty"`
}

// BrowserFrame describes the client.
type BrowserFrame struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// CredsFrame carries replacement credentials.
type CredsFrame struct {
	Creds json.RawMessage `json:"creds"`
}

// ConnectionFrame carries a connection state change.
type ConnectionFrame struct {
	Connection string `json:"connection"`
	Self       string `json:"self,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// MessagesFrame carries inbound messages.
type MessagesFrame struct {
	Messages []MessageFrame `json:"messages"`
}

// MessageFrame is a single inbound message.
type MessageFrame struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Sender    string `json:"sender,omitempty"`
	FromMe    bool   `json:"from_me,omitempty"`
	Text      string `json:"text,omitempty"`
	ButtonID  string `json:"button_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SendFrame is an outbound message.
type SendFrame struct {
	To      string `json:"to"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

func (m MessageFrame) toMessage() transport.Message {
	msg := transport.Message{
		ID:       m.ID,
		From:     m.From,
		Sender:   m.Sender,
		FromMe:   m.FromMe,
		Text:     m.Text,
		ButtonID: m.ButtonID,
	}
	if msg.Sender == "" {
		msg.Sender = m.From
	}
	if m.Timestamp > 0 {
		msg.Timestamp = time.Unix(m.Timestamp, 0).UTC()
	}
	return msg
}

func encodeFrame(typ string, v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Data: data}, nil
}
