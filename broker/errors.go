package broker

import (
	"context"
	"io"
	"net"

	"github.com/Azure/go-amqp"
	"github.com/pkg/errors"
)

// ErrNotConnected is returned by Send before Connect succeeds or after the
// link was dropped.
var ErrNotConnected = errors.New("not connected")

// ConnectionError means the link to the interchange is gone. The caller is
// expected to reconnect and retry.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return "connection error: " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Cause() error  { return e.Err }
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err carries a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// lostConnection classifies errors returned by a link. A rejected delivery
// is not a connection failure.
func lostConnection(err error) bool {
	var (
		connErr    *amqp.ConnError
		sessionErr *amqp.SessionError
		linkErr    *amqp.LinkError
		netErr     net.Error
	)
	switch {
	case errors.As(err, &connErr), errors.As(err, &sessionErr), errors.As(err, &linkErr):
		return true
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
