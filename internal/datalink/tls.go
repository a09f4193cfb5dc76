package datalink

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/logging"
)

// ClientTLS holds the file paths of a node's operational certificate
type ClientTLS struct {
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// NewClientTLSConfig builds the TLS configuration used to reach a hub.
// BACnet/SC requires TLS 1.3; the client certificate is optional for lab
// hubs that do not authenticate nodes.
func NewClientTLSConfig(c ClientTLS) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if c.CertFile != "" || c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load node certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pemData, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no PEM certificates found in %s", c.CAFile)
		}
		cfg.RootCAs = pool
	}

	logging.Debug("BACnet/SC TLS configuration",
		zap.Bool("client_cert", len(cfg.Certificates) > 0),
		zap.String("ca_file", c.CAFile),
		zap.Bool("insecure_skip_verify", c.InsecureSkipVerify),
	)
	return cfg, nil
}
