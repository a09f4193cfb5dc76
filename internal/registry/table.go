package registry

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muurk/bacscan/internal/bacnet"
)

// Table layout. The address cache reader depends on every character of
// these lines, including the trailing space on each row.
const (
	tableHeaderFormat = ";%-7s  %-20s %-5s %-20s %-4s\n"
	tableSeparator    = ";-------- -------------------- ----- -------------------- ----\n"

	duplicateMark byte = ';'
	normalMark    byte = ' '
)

// Render writes the address cache table for all entries
func (r *Registry) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, tableHeaderFormat, "Device", "MAC (hex)", "SNET", "SADR (hex)", "APDU")
	bw.WriteString(tableSeparator)

	for _, p := range r.peers {
		mark := normalMark
		if p.Duplicate {
			mark = duplicateMark
		}
		bw.WriteByte(mark)
		fmt.Fprintf(bw, " %-7d ", p.DeviceID)
		bw.WriteString(padHex(p.Address.MAC))
		fmt.Fprintf(bw, " %-5d ", p.Address.Net)
		if p.Address.Net != 0 {
			bw.WriteString(padHex(p.Address.Adr))
		} else {
			// Local devices show a single zero station byte
			bw.WriteString(padHex([]byte{0}))
		}
		fmt.Fprintf(bw, " %-4d \n", p.MaxAPDU)
	}

	fmt.Fprintf(bw, ";\n; Total Devices: %d\n", len(r.peers))
	if dups := r.Duplicates(); dups > 0 {
		fmt.Fprintf(bw, "; * Duplicate Devices: %d\n", dups)
	}

	return bw.Flush()
}

// String renders the table into a string
func (r *Registry) String() string {
	var b bytes.Buffer
	_ = r.Render(&b)
	return b.String()
}

// padHex writes colon separated hex pairs padded with three spaces for
// every byte short of MaxMACLen, giving a 20 column field
func padHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	for i := len(b); i < bacnet.MaxMACLen; i++ {
		sb.WriteString("   ")
	}
	return sb.String()
}

// ParseTable reads an address cache table. Comment lines (those starting
// with ';', which includes duplicate rows) and blank lines are skipped.
func ParseTable(r io.Reader) ([]Peer, error) {
	var peers []Peer
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}

		p, err := parseRow(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		peers = append(peers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	return peers, nil
}

// parseRow parses "device mac snet sadr apdu"
func parseRow(line string) (Peer, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Peer{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	id, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil || id > bacnet.MaxInstance {
		return Peer{}, fmt.Errorf("invalid device instance %q", fields[0])
	}

	mac, err := parseHexPairs(fields[1])
	if err != nil {
		return Peer{}, fmt.Errorf("invalid MAC: %w", err)
	}

	snet, err := strconv.ParseUint(fields[2], 10, 16)
	if err != nil {
		return Peer{}, fmt.Errorf("invalid SNET %q", fields[2])
	}

	sadr, err := parseHexPairs(fields[3])
	if err != nil {
		return Peer{}, fmt.Errorf("invalid SADR: %w", err)
	}

	maxAPDU, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return Peer{}, fmt.Errorf("invalid max APDU %q", fields[4])
	}

	addr := bacnet.Address{MAC: mac, Net: uint16(snet)}
	if snet != 0 {
		addr.Adr = sadr
	}

	return Peer{
		DeviceID: uint32(id),
		MaxAPDU:  uint32(maxAPDU),
		Address:  addr,
	}, nil
}

func parseHexPairs(s string) ([]byte, error) {
	parts := strings.Split(s, ":")
	if len(parts) > bacnet.MaxMACLen {
		return nil, fmt.Errorf("%q longer than %d bytes", s, bacnet.MaxMACLen)
	}
	out := make([]byte, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil || len(part) != 2 {
			return nil, fmt.Errorf("invalid hex pair %q", part)
		}
		out[i] = byte(v)
	}
	return out, nil
}
