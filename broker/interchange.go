// Package broker sends DATEX II documents to the NordicWay interchange over
// AMQP 1.0.
package broker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/NPRA/geofence-converter/datex"
)

const (
	// DefaultSendTimeout bounds a single delivery.
	DefaultSendTimeout = 10 * time.Second

	closeTimeout = 5 * time.Second
)

// Options of the interchange connection.
type Options struct {
	URL               string
	Sender            string
	Receiver          string
	Username          string
	Password          string
	TLSKeyFile        string
	TLSCertFile       string
	TLSCAFile         string
	SkipHostnameCheck bool
	SendTimeout       time.Duration
}

// Secure reports whether the broker URL asks for TLS.
func (o *Options) Secure() bool {
	u, err := url.Parse(o.URL)
	return err == nil && u.Scheme == "amqps"
}

// Validate checks that the options are complete enough to dial.
func (o *Options) Validate() error {
	if o.URL == "" {
		return errors.New("broker URL is required")
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return errors.Wrap(err, "broker URL is invalid")
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return errors.Errorf("broker URL scheme %q is not supported", u.Scheme)
	}
	if o.Sender == "" {
		return errors.New("sender queue is required")
	}
	if o.Receiver == "" {
		return errors.New("receiver queue is required")
	}
	if o.Secure() && (o.TLSKeyFile == "" || o.TLSCertFile == "") {
		return errors.New("broker URL uses TLS, key and certificate files are required")
	}
	return nil
}

// Link is an open sender link.
type Link interface {
	Send(ctx context.Context, msg *amqp.Message) error
	Close(ctx context.Context) error
}

// Dialer opens links to the interchange.
type Dialer interface {
	Dial(ctx context.Context, opts *Options) (Link, error)
}

// Interchange delivers documents to the sender queue of the interchange.
// After a connection failure the link is dropped and Connect must be called
// again.
type Interchange struct {
	logger logrus.FieldLogger
	opts   Options
	dialer Dialer

	mu   sync.Mutex
	link Link
}

// New returns an Interchange. A nil dialer dials AMQP using the OS
// filesystem for key material.
func New(logger logrus.FieldLogger, opts Options, dialer Dialer) *Interchange {
	if dialer == nil {
		dialer = &AMQPDialer{Fs: afero.NewOsFs()}
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Interchange{
		logger: logger,
		opts:   opts,
		dialer: dialer,
	}
}

// Connect opens a new link, replacing the current one.
func (i *Interchange) Connect(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.dropLocked()

	link, err := i.dialer.Dial(ctx, &i.opts)
	if err != nil {
		return &ConnectionError{Op: "connect", Err: err}
	}
	i.link = link

	i.logger.WithFields(logrus.Fields{
		"url":      redact(i.opts.URL),
		"sender":   i.opts.Sender,
		"receiver": i.opts.Receiver,
	}).Info("Connected to the interchange")

	return nil
}

// Connected reports whether a link is open.
func (i *Interchange) Connected() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.link != nil
}

// Send delivers a document. Connection failures are returned as
// *ConnectionError and leave the Interchange disconnected.
func (i *Interchange) Send(ctx context.Context, doc *datex.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.link == nil {
		return &ConnectionError{Op: "send", Err: ErrNotConnected}
	}

	sendCtx, cancel := context.WithTimeout(ctx, i.opts.SendTimeout)
	defer cancel()

	err := i.link.Send(sendCtx, NewMessage(doc))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lostConnection(err) {
		i.dropLocked()
		return &ConnectionError{Op: "send", Err: err}
	}
	return errors.Wrapf(err, "geofence %d: delivery failed", doc.Payload.ID)
}

// Close releases the link.
func (i *Interchange) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.link == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := i.link.Close(ctx)
	i.link = nil
	return err
}

func (i *Interchange) dropLocked() {
	if i.link == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := i.link.Close(ctx); err != nil {
		i.logger.WithError(err).Debug("Error closing stale link")
	}
	i.link = nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Redacted()
}
