// Package machinetalk implements the client-side connection state machine
// and stream-replication protocol for talking to a CNC/motion-controller
// supervisor: a status replica, a command endpoint, and an error
// notification stream, each running its own I/O worker over a transport
// the caller supplies.
package machinetalk

import "time"

// StatusTransport is the subscribe-side socket used by StatusClient and
// ErrorClient. Implementations wrap whatever pub/sub broker binding the
// caller has chosen; machinetalk never constructs one itself.
type StatusTransport interface {
	Connect(uri string) error
	Disconnect() error
	Subscribe(topic string) error
	Unsubscribe(topic string) error

	// Recv blocks for up to timeout waiting for the next message. ok is
	// false on a timeout with no error; it is also false once the
	// transport has been disconnected.
	Recv(timeout time.Duration) (topic string, payload []byte, ok bool, err error)
}

// CommandTransport is the dealer socket used by CommandClient.
type CommandTransport interface {
	Connect(uri string) error
	Disconnect() error
	SetIdentity(id string) error
	Send(payload []byte) error
	Recv(timeout time.Duration) (payload []byte, ok bool, err error)
}

// Codec decodes and encodes the wire representation of a Container. The
// wire format itself is an external collaborator; machinetalk only needs
// something that can fill in and read back a Container.
type Codec interface {
	Decode(payload []byte, into *Container) error
	Encode(c *Container) ([]byte, error)
}
