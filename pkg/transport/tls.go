package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig describes the client side of a TLS-enabled manager port.
type TLSConfig struct {
	// ServerName is verified against the switch certificate. Empty means
	// the dialed host name.
	ServerName string

	// CAFile is a PEM bundle of roots to trust instead of the system pool.
	CAFile string

	// InsecureSkipVerify disables certificate verification. Lab use only.
	InsecureSkipVerify bool
}

// Build returns the tls.Config used when dialing.
func (tc TLSConfig) Build() (*tls.Config, error) {
	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         tc.ServerName,
		InsecureSkipVerify: tc.InsecureSkipVerify,
	}

	if tc.CAFile != "" {
		pem, err := os.ReadFile(tc.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %s: no certificates found", tc.CAFile)
		}
		config.RootCAs = pool
	}

	return config, nil
}
