package broker

import (
	"context"

	"github.com/Azure/go-amqp"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// AMQPDialer dials the interchange with go-amqp.
type AMQPDialer struct {
	// Fs is where TLS key material is read from.
	Fs afero.Fs
}

var _ Dialer = (*AMQPDialer)(nil)

// Dial opens a connection, a session, a sender link and a receiver link. The
// receiver is opened with manual credit so nothing is consumed; it only
// proves that the receiver queue is reachable.
func (d *AMQPDialer) Dial(ctx context.Context, opts *Options) (Link, error) {
	connOpts := &amqp.ConnOptions{SASLType: amqp.SASLTypeAnonymous()}
	if opts.Username != "" {
		connOpts.SASLType = amqp.SASLTypePlain(opts.Username, opts.Password)
	}
	if opts.Secure() {
		cfg, err := tlsConfig(d.Fs, opts)
		if err != nil {
			return nil, err
		}
		connOpts.TLSConfig = cfg
	}

	conn, err := amqp.Dial(ctx, opts.URL, connOpts)
	if err != nil {
		return nil, errors.Wrap(err, "error dialing")
	}
	link := &amqpLink{conn: conn}

	link.session, err = conn.NewSession(ctx, nil)
	if err != nil {
		link.Close(ctx)
		return nil, errors.Wrap(err, "error creating session")
	}
	link.sender, err = link.session.NewSender(ctx, opts.Sender, nil)
	if err != nil {
		link.Close(ctx)
		return nil, errors.Wrapf(err, "error attaching sender %s", opts.Sender)
	}
	link.receiver, err = link.session.NewReceiver(ctx, opts.Receiver, &amqp.ReceiverOptions{Credit: -1})
	if err != nil {
		link.Close(ctx)
		return nil, errors.Wrapf(err, "error attaching receiver %s", opts.Receiver)
	}

	return link, nil
}

type amqpLink struct {
	conn     *amqp.Conn
	session  *amqp.Session
	sender   *amqp.Sender
	receiver *amqp.Receiver
}

func (l *amqpLink) Send(ctx context.Context, msg *amqp.Message) error {
	return l.sender.Send(ctx, msg, nil)
}

// Close tears everything down. Only the connection error is reported.
func (l *amqpLink) Close(ctx context.Context) error {
	if l.receiver != nil {
		l.receiver.Close(ctx)
	}
	if l.sender != nil {
		l.sender.Close(ctx)
	}
	if l.session != nil {
		l.session.Close(ctx)
	}
	return l.conn.Close()
}
