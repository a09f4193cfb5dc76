package config

import (
	"fmt"
	"time"
)

// Datalink names accepted in the settings file, BACNET_DATALINK and --datalink
const (
	DatalinkBIP = "bip"
	DatalinkBSC = "bsc"
)

// HubAuto asks the BACnet/SC datalink to find a hub over mDNS
const HubAuto = "auto"

// Settings is the whole configuration file
type Settings struct {
	Version  int              `yaml:"version"`
	Datalink string           `yaml:"datalink"` // "bip" or "bsc"
	LogLevel string           `yaml:"log_level,omitempty"`
	BIP      *BIPSettings     `yaml:"bip,omitempty"`
	SC       *SCSettings      `yaml:"sc,omitempty"`
	APDU     *APDUSettings    `yaml:"apdu,omitempty"`
	Session  *SessionDefaults `yaml:"session,omitempty"`
	Hub      *HubSettings     `yaml:"hub,omitempty"`
}

// BIPSettings configures the BACnet/IP datalink
type BIPSettings struct {
	Interface string        `yaml:"interface,omitempty"` // Network interface name; empty = first usable IPv4 interface
	Port      int           `yaml:"port"`                // UDP port, normally 47808
	BBMD      *BBMDSettings `yaml:"bbmd,omitempty"`      // Register as a foreign device when set
}

// BBMDSettings is the BBMD this node registers with as a foreign device
type BBMDSettings struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	TimeToLive int    `yaml:"time_to_live"` // Seconds
}

// SCSettings configures the BACnet Secure Connect datalink
type SCSettings struct {
	HubURI             string `yaml:"hub_uri,omitempty"` // wss:// URI or "auto"
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
	HeartbeatSeconds   int    `yaml:"heartbeat_seconds"`
}

// APDUSettings are the application layer timing values. The default
// discovery timeout is their product.
type APDUSettings struct {
	TimeoutMS int `yaml:"timeout_ms"`
	Retries   int `yaml:"retries"`
}

// SessionDefaults are defaults for the whois and iam commands
type SessionDefaults struct {
	PollDelayMS int `yaml:"poll_delay_ms"`
}

// HubSettings configures the lab hub started by "bacscan hub"
type HubSettings struct {
	Listen    string `yaml:"listen"`
	CertFile  string `yaml:"cert_file,omitempty"`
	KeyFile   string `yaml:"key_file,omitempty"`
	Advertise bool   `yaml:"advertise"`
}

// NewSettings returns the built-in defaults
func NewSettings() *Settings {
	return &Settings{
		Version:  1,
		Datalink: DatalinkBIP,
		BIP:      &BIPSettings{Port: 47808},
		SC:       &SCSettings{HeartbeatSeconds: 300},
		APDU:     &APDUSettings{TimeoutMS: 3000, Retries: 3},
		Session:  &SessionDefaults{PollDelayMS: 100},
		Hub:      &HubSettings{Listen: ":4443"},
	}
}

// fillDefaults replaces sections missing from a loaded file
func (s *Settings) fillDefaults() {
	d := NewSettings()
	if s.Datalink == "" {
		s.Datalink = d.Datalink
	}
	if s.BIP == nil {
		s.BIP = d.BIP
	}
	if s.BIP.Port == 0 {
		s.BIP.Port = d.BIP.Port
	}
	if s.SC == nil {
		s.SC = d.SC
	}
	if s.SC.HeartbeatSeconds == 0 {
		s.SC.HeartbeatSeconds = d.SC.HeartbeatSeconds
	}
	if s.APDU == nil {
		s.APDU = d.APDU
	}
	if s.Session == nil {
		s.Session = d.Session
	}
	if s.Hub == nil {
		s.Hub = d.Hub
	}
}

// Validate checks values that would otherwise fail deep inside a datalink
func (s *Settings) Validate() error {
	switch s.Datalink {
	case DatalinkBIP, DatalinkBSC:
	default:
		return fmt.Errorf("unknown datalink %q (want %q or %q)", s.Datalink, DatalinkBIP, DatalinkBSC)
	}
	if s.BIP.Port < 1 || s.BIP.Port > 65535 {
		return fmt.Errorf("bip port %d out of range", s.BIP.Port)
	}
	if b := s.BIP.BBMD; b != nil {
		if b.Port < 1 || b.Port > 65535 {
			return fmt.Errorf("bbmd port %d out of range", b.Port)
		}
		if b.TimeToLive < 1 || b.TimeToLive > 65535 {
			return fmt.Errorf("bbmd time to live %d out of range", b.TimeToLive)
		}
	}
	if s.Datalink == DatalinkBSC && s.SC.HubURI == "" {
		return fmt.Errorf("datalink %q needs a hub URI (set sc.hub_uri, BACNET_SC_HUB_URI or --hub)", DatalinkBSC)
	}
	if s.APDU.TimeoutMS < 0 || s.APDU.Retries < 0 {
		return fmt.Errorf("apdu timeout and retries must not be negative")
	}
	return nil
}

// RequestTimeout is the default wait before a Who-Is is retransmitted.
// Zero retries still allow one APDU timeout. It is zero only when the
// APDU timeout is.
func (s *Settings) RequestTimeout() time.Duration {
	retries := s.APDU.Retries
	if retries < 1 {
		retries = 1
	}
	return time.Duration(s.APDU.TimeoutMS) * time.Duration(retries) * time.Millisecond
}

// PollDelay is the default receive poll duration
func (s *Settings) PollDelay() time.Duration {
	return time.Duration(s.Session.PollDelayMS) * time.Millisecond
}

// HeartbeatInterval is the BACnet/SC idle time before a heartbeat
func (s *Settings) HeartbeatInterval() time.Duration {
	return time.Duration(s.SC.HeartbeatSeconds) * time.Second
}
