package hub

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/discovery"
	"github.com/muurk/bacscan/internal/logging"
)

// Path is the URL path the hub serves WebSocket connections on
const Path = "/"

const shutdownWait = 10 * time.Second

// Config holds the hub server configuration
type Config struct {
	Listen    string // host:port
	CertPath  string // Empty generates a self-signed certificate in memory
	KeyPath   string
	Plain     bool // Serve ws:// instead of wss://; for tests and loopback use
	Advertise bool // Announce the hub over mDNS
	Instance  string
}

// Server runs a Hub on a TLS listener
type Server struct {
	config    Config
	hub       *Hub
	tlsConfig *tls.Config
	http      *http.Server
	listener  net.Listener
	adv       *discovery.Advertisement
}

// NewServer creates the hub and its TLS configuration
func NewServer(config Config) (*Server, error) {
	h, err := New()
	if err != nil {
		return nil, err
	}

	s := &Server{config: config, hub: h}
	if config.Plain {
		return s, nil
	}

	if config.CertPath != "" {
		s.tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		return s, nil
	}

	logging.Info("No hub certificate configured, generating a self-signed one")
	hostname, _ := os.Hostname()
	cert, err := GenerateSelfSigned([]string{hostname, "localhost", "127.0.0.1", "::1"}, 365*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	s.tlsConfig, err = NewTLSConfigFromMemory(cert.CertPEM, cert.KeyPEM)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Hub returns the relay served by this server
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the listening address once ListenAndServe has started
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URI returns the address nodes connect to
func (s *Server) URI() string {
	scheme := "wss"
	if s.config.Plain {
		scheme = "ws"
	}
	addr := s.config.Listen
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	return scheme + "://" + addr + Path
}

// Listen binds the listening socket
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln
	return nil
}

// ListenAndServe serves nodes until ctx is cancelled, then shuts down
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(Path, s.hub)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: connectWait,
	}

	logging.Info("BACnet/SC hub listening",
		zap.String("uri", s.URI()),
		zap.Stringer("vmac", s.hub.VMAC()),
		zap.Bool("tls", s.tlsConfig != nil),
	)

	if s.config.Advertise {
		port := s.listener.Addr().(*net.TCPAddr).Port
		instance := s.config.Instance
		if instance == "" {
			instance, _ = os.Hostname()
		}
		adv, err := discovery.Advertise(instance, port, Path, !s.config.Plain)
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.adv = adv
			logging.Info("Hub advertised over mDNS", zap.String("instance", instance), zap.String("service", discovery.ServiceType))
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping hub...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown withdraws the advertisement, disconnects nodes and stops the
// listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.adv.Shutdown()

	// Hijacked WebSocket connections are not tracked by http.Server
	done := make(chan struct{})
	go func() {
		s.hub.Close()
		close(done)
	}()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}

	select {
	case <-done:
		logging.Info("All nodes disconnected")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}
