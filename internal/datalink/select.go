package datalink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/config"
	"github.com/muurk/bacscan/internal/discovery"
	"github.com/muurk/bacscan/internal/logging"
	"github.com/muurk/bacscan/internal/session"
)

// Open creates the transport selected by the settings
func Open(ctx context.Context, s *config.Settings) (session.Transport, error) {
	switch s.Datalink {
	case config.DatalinkBIP:
		cfg, err := bipConfig(s.BIP)
		if err != nil {
			return nil, err
		}
		return OpenBIP(cfg)

	case config.DatalinkBSC:
		uri := s.SC.HubURI
		if uri == config.HubAuto {
			found, err := discovery.FindHubURI(ctx, discovery.DefaultScanTimeout)
			if err != nil {
				return nil, err
			}
			logging.Info("Using hub found over mDNS", zap.String("uri", found))
			uri = found
		}
		tlsCfg, err := NewClientTLSConfig(ClientTLS{
			CertFile:           s.SC.CertFile,
			KeyFile:            s.SC.KeyFile,
			CAFile:             s.SC.CAFile,
			InsecureSkipVerify: s.SC.InsecureSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		return DialSC(ctx, SCConfig{
			HubURI:    uri,
			TLSConfig: tlsCfg,
			Heartbeat: s.HeartbeatInterval(),
		})

	default:
		return nil, fmt.Errorf("unknown datalink %q", s.Datalink)
	}
}

func bipConfig(s *config.BIPSettings) (BIPConfig, error) {
	cfg := BIPConfig{Interface: s.Interface, Port: s.Port}
	if s.BBMD == nil {
		return cfg, nil
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(s.BBMD.Address, strconv.Itoa(s.BBMD.Port)))
	if err != nil {
		return cfg, fmt.Errorf("invalid BBMD address %q: %w", s.BBMD.Address, err)
	}
	cfg.BBMD = addr
	cfg.BBMDTTL = time.Duration(s.BBMD.TimeToLive) * time.Second
	return cfg, nil
}
