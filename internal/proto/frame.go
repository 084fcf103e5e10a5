// Package proto defines the wire frames exchanged between drift clients and
// the server, and the codec that reads them off a byte stream.
package proto

import "time"

// Kind discriminates the frame variants.
type Kind uint8

const (
	// KindAuthorize is the first frame on a new connection; asserts identity.
	KindAuthorize Kind = iota + 1
	// KindConnect carries the current channel list to a freshly joined client.
	KindConnect
	// KindMessage is a chat message, either direction.
	KindMessage
	// KindBulk seeds client state: message history plus the channel list.
	KindBulk
	// KindChannel requests creation of a new channel.
	KindChannel
	// KindOk is a generic acknowledgement.
	KindOk
	// KindError reports a failure; terminal when used to reject admission.
	KindError
	// KindDisconnect announces that a peer left.
	KindDisconnect
)

func (k Kind) valid() bool {
	return k >= KindAuthorize && k <= KindDisconnect
}

// String returns the frame kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindAuthorize:
		return "authorize"
	case KindConnect:
		return "connect"
	case KindMessage:
		return "message"
	case KindBulk:
		return "bulk"
	case KindChannel:
		return "channel"
	case KindOk:
		return "ok"
	case KindError:
		return "error"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// User identifies a chat participant. Identity is nominal: the display name is
// self-asserted at authorize time and immutable for the session.
type User struct {
	Name   string `cbor:"1,keyasint"`
	Color  string `cbor:"2,keyasint,omitempty"`
	Avatar string `cbor:"3,keyasint,omitempty"`
}

// Message is one chat message. CreatedAt is advisory display metadata in unix
// milliseconds; channel history is ordered by arrival at the server, not by it.
type Message struct {
	From      User   `cbor:"1,keyasint"`
	Channel   string `cbor:"2,keyasint"`
	Body      string `cbor:"3,keyasint"`
	CreatedAt int64  `cbor:"4,keyasint"`
}

// NewMessage stamps a message with the current wall clock.
func NewMessage(from User, channel, body string) Message {
	return Message{
		From:      from,
		Channel:   channel,
		Body:      body,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// Channel is a named room as seen on the wire: metadata plus history.
type Channel struct {
	Name     string    `cbor:"1,keyasint"`
	Cover    string    `cbor:"2,keyasint,omitempty"`
	Messages []Message `cbor:"3,keyasint,omitempty"`
}

// Frame is the tagged union carried on the wire. Exactly the fields relevant
// to Kind are set; the remainder stay zero so the encoding omits them.
type Frame struct {
	Kind     Kind      `cbor:"1,keyasint"`
	User     *User     `cbor:"2,keyasint,omitempty"`
	Message  *Message  `cbor:"3,keyasint,omitempty"`
	Messages []Message `cbor:"4,keyasint,omitempty"`
	Channels []Channel `cbor:"5,keyasint,omitempty"`
	Channel  *Channel  `cbor:"6,keyasint,omitempty"`
	Reason   string    `cbor:"7,keyasint,omitempty"`
}

// AuthorizeFrame builds the client's opening identity frame.
func AuthorizeFrame(u User) *Frame {
	return &Frame{Kind: KindAuthorize, User: &u}
}

// ConnectFrame carries the channel list to a client.
func ConnectFrame(channels []Channel) *Frame {
	return &Frame{Kind: KindConnect, Channels: channels}
}

// MessageFrame wraps a chat message.
func MessageFrame(m Message) *Frame {
	return &Frame{Kind: KindMessage, Message: &m}
}

// BulkFrame seeds client state with history and the channel list.
func BulkFrame(messages []Message, channels []Channel) *Frame {
	return &Frame{Kind: KindBulk, Messages: messages, Channels: channels}
}

// ChannelFrame wraps a channel-creation request or announcement.
func ChannelFrame(ch Channel) *Frame {
	return &Frame{Kind: KindChannel, Channel: &ch}
}

// OkFrame is the generic acknowledgement.
func OkFrame() *Frame {
	return &Frame{Kind: KindOk}
}

// ErrorFrame reports a failure with a human-readable reason.
func ErrorFrame(reason string) *Frame {
	return &Frame{Kind: KindError, Reason: reason}
}

// DisconnectFrame announces that u left.
func DisconnectFrame(u User) *Frame {
	return &Frame{Kind: KindDisconnect, User: &u}
}
