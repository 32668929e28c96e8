// Package brokermock provides an in-memory broker.Dialer for tests.
package brokermock

import (
	"context"
	"sync"

	"github.com/Azure/go-amqp"

	"github.com/NPRA/geofence-converter/broker"
)

// Dialer hands out the same Link on every dial. DialErrors are returned, in
// order, before dials start succeeding.
type Dialer struct {
	Link       *Link
	DialErrors []error

	mu    sync.Mutex
	dials int
}

var _ broker.Dialer = (*Dialer)(nil)

// New returns a Dialer with an empty Link.
func New() *Dialer {
	return &Dialer{Link: &Link{}}
}

func (d *Dialer) Dial(ctx context.Context, opts *broker.Options) (broker.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.DialErrors) > 0 {
		err := d.DialErrors[0]
		d.DialErrors = d.DialErrors[1:]
		return nil, err
	}
	d.Link.reopen()
	return d.Link, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Link records every message sent. SendErrors are returned, in order, before
// sends start succeeding.
type Link struct {
	SendErrors []error

	mu       sync.Mutex
	messages []*amqp.Message
	closed   bool
}

var _ broker.Link = (*Link)(nil)

func (l *Link) Send(ctx context.Context, msg *amqp.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.SendErrors) > 0 {
		err := l.SendErrors[0]
		l.SendErrors = l.SendErrors[1:]
		return err
	}
	l.messages = append(l.messages, msg)
	return nil
}

func (l *Link) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Closed reports whether Close was called since the last dial.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Messages returns a copy of the messages sent so far.
func (l *Link) Messages() []*amqp.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*amqp.Message(nil), l.messages...)
}

func (l *Link) reopen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = false
}
