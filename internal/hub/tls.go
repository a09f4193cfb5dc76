package hub

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/logging"
)

// CertificateError represents a failure loading or generating the hub
// certificate
type CertificateError struct {
	// Operation describes what certificate operation failed
	Operation string
	// Path is the certificate file path (if applicable)
	Path string
	// Underlying error
	Err error
}

func (e *CertificateError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("certificate error during %s (file: %s): %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("certificate error during %s: %v", e.Operation, e.Err)
}

func (e *CertificateError) Unwrap() error {
	return e.Err
}

// NewTLSConfig creates the hub TLS configuration from certificate files
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	if _, err := os.Stat(certPath); err != nil {
		return nil, &CertificateError{Operation: "load", Path: certPath, Err: err}
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, &CertificateError{Operation: "load", Path: certPath, Err: err}
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)
	return buildTLSConfig(cert), nil
}

// NewTLSConfigFromMemory creates the hub TLS configuration from PEM data
func NewTLSConfigFromMemory(certPEM, keyPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, &CertificateError{Operation: "load_memory", Err: err}
	}
	return buildTLSConfig(cert), nil
}

// buildTLSConfig applies the BACnet/SC transport rules: TLS 1.3 only
func buildTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		VerifyConnection: func(cs tls.ConnectionState) error {
			logging.Debug("TLS handshake completed",
				zap.String("server_name", cs.ServerName),
				zap.Uint16("tls_version", cs.Version),
			)
			return nil
		},
	}
}

// SelfSignedCert is an in-memory certificate for a lab hub
type SelfSignedCert struct {
	CertPEM     []byte
	KeyPEM      []byte
	Certificate *x509.Certificate
}

// GenerateSelfSigned creates a self-signed server certificate valid for
// the given host names and IP addresses. Nodes must skip verification or
// trust CertPEM explicitly.
func GenerateSelfSigned(hosts []string, validFor time.Duration) (*SelfSignedCert, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, &CertificateError{Operation: "generate_key", Err: err}
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, &CertificateError{Operation: "generate_serial", Err: err}
	}

	notBefore := time.Now().Add(-time.Minute)
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"bacscan lab hub"},
			CommonName:   "bacscan-hub",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, &CertificateError{Operation: "create_certificate", Err: err}
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, &CertificateError{Operation: "parse_certificate", Err: err}
	}

	logging.Info("Generated self-signed hub certificate",
		zap.Strings("dns_names", cert.DNSNames),
		zap.Int("ip_addresses", len(cert.IPAddresses)),
		zap.Time("not_after", cert.NotAfter),
	)

	return &SelfSignedCert{
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}),
		Certificate: cert,
	}, nil
}
