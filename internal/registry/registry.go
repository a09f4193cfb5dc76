// Package registry keeps the devices found during a discovery session and
// renders them as the address cache table other BACnet tools read.
//
// Entries are kept in arrival order. A device identifier seen from two
// different addresses is kept twice and both entries are flagged as
// duplicates; the table marks them so that readers skip them.
//
// A Registry is owned by one session and is not safe for concurrent use.
package registry

import (
	"github.com/muurk/bacscan/internal/bacnet"
)

// Peer is one discovered device
type Peer struct {
	DeviceID  uint32
	Duplicate bool
	MaxAPDU   uint32
	Address   bacnet.Address
}

// Outcome describes what Add did with a reply
type Outcome int

const (
	// OutcomeKnown means the identifier and address were already recorded
	OutcomeKnown Outcome = iota
	// OutcomeAdded means a new entry was appended
	OutcomeAdded
	// OutcomeDuplicate means a new entry was appended and flagged, along
	// with every earlier entry for the same identifier
	OutcomeDuplicate
)

// String returns a short name for logging
func (o Outcome) String() string {
	switch o {
	case OutcomeKnown:
		return "known"
	case OutcomeAdded:
		return "added"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Registry is an insertion ordered, deduplicated list of peers
type Registry struct {
	peers []Peer
}

// New creates an empty registry
func New() *Registry {
	return &Registry{}
}

// Add records an identity reply. It returns the index of the entry that
// holds the reply and what happened.
func (r *Registry) Add(deviceID uint32, maxAPDU uint32, src bacnet.Address) (int, Outcome) {
	duplicate := false
	for i := range r.peers {
		p := &r.peers[i]
		if p.DeviceID != deviceID {
			continue
		}
		if p.Address.Equal(src) {
			return i, OutcomeKnown
		}
		duplicate = true
		p.Duplicate = true
	}

	r.peers = append(r.peers, Peer{
		DeviceID:  deviceID,
		Duplicate: duplicate,
		MaxAPDU:   maxAPDU,
		Address:   src.Clone(),
	})

	if duplicate {
		return len(r.peers) - 1, OutcomeDuplicate
	}
	return len(r.peers) - 1, OutcomeAdded
}

// Len returns the number of entries
func (r *Registry) Len() int {
	return len(r.peers)
}

// Duplicates returns the number of entries flagged as duplicate
func (r *Registry) Duplicates() int {
	n := 0
	for _, p := range r.peers {
		if p.Duplicate {
			n++
		}
	}
	return n
}

// At returns the entry at index i
func (r *Registry) At(i int) Peer {
	return r.peers[i]
}

// Peers returns a copy of all entries in arrival order
func (r *Registry) Peers() []Peer {
	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}
