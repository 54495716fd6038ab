// Package protocol defines the framed messages exchanged between the broker
// and its workers.
//
// Every unit on the transport is a Frame: the identity of the remote peer
// plus one JSON payload. Workers send tagged messages (READY, OUTPUT,
// GOODBYE); the broker sends untagged dispatch payloads that carry the
// request parameters and the correlation id under "id_num".
package protocol

import "github.com/BranchIntl/gobroker/work"

// Address identifies a remote peer on a transport. It is opaque: the key
// only has meaning to the transport that produced it.
type Address struct {
	key string
}

// NewAddress wraps a transport routing key
func NewAddress(key string) Address {
	return Address{key: key}
}

// Key returns the transport routing key
func (a Address) Key() string {
	return a.key
}

func (a Address) String() string {
	return a.key
}

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a.key == ""
}

// Frame is one addressed message on the transport
type Frame struct {
	Peer    Address
	Payload []byte
}

// Type is the discriminator carried in the "type" field
type Type string

const (
	TypeReady   Type = "READY"
	TypeOutput  Type = "OUTPUT"
	TypeGoodbye Type = "GOODBYE"
)

// Message is a decoded worker message. The set of implementations is closed:
// Ready, Output and Goodbye.
type Message interface {
	Type() Type
	isMessage()
}

// Ready announces that a worker is idle and can take one unit of work
type Ready struct {
	Hostname string
}

// Output carries a worker's result for a dispatched request
type Output struct {
	ID       work.ID
	Data     []byte
	Hostname string
}

// Goodbye announces that a worker is leaving
type Goodbye struct{}

func (Ready) Type() Type   { return TypeReady }
func (Output) Type() Type  { return TypeOutput }
func (Goodbye) Type() Type { return TypeGoodbye }

func (Ready) isMessage()   {}
func (Output) isMessage()  {}
func (Goodbye) isMessage() {}
