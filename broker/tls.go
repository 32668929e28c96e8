package broker

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// tlsConfig loads the client key pair and, optionally, a CA bundle.
//
// The interchange presents certificates issued for IP addresses, so hostname
// verification can be turned off. The chain is still verified in that case.
func tlsConfig(fs afero.Fs, opts *Options) (*tls.Config, error) {
	certPEM, err := afero.ReadFile(fs, opts.TLSCertFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading certificate")
	}
	keyPEM, err := afero.ReadFile(fs, opts.TLSKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading private key")
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "error loading key pair")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.TLSCAFile != "" {
		caPEM, err := afero.ReadFile(fs, opts.TLSCAFile)
		if err != nil {
			return nil, errors.Wrap(err, "error reading CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.Errorf("no certificates found in %s", opts.TLSCAFile)
		}
		cfg.RootCAs = pool
	}

	if opts.SkipHostnameCheck {
		roots := cfg.RootCAs
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			return verifyChain(cs, roots)
		}
	}

	return cfg, nil
}

func verifyChain(cs tls.ConnectionState, roots *x509.CertPool) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("server presented no certificates")
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(c)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}
