package registry

import (
	"strings"
	"testing"

	"github.com/muurk/bacscan/internal/bacnet"
)

var (
	macA = bacnet.Address{MAC: []byte{192, 168, 1, 20, 0xBA, 0xC0}}
	macB = bacnet.Address{MAC: []byte{192, 168, 1, 21, 0xBA, 0xC0}}
	macC = bacnet.Address{MAC: []byte{0x05}, Net: 2001, Adr: []byte{0x21}}
)

func TestAdd_Dedup(t *testing.T) {
	r := New()

	idx, outcome := r.Add(1234, 480, macA)
	if idx != 0 || outcome != OutcomeAdded {
		t.Fatalf("first Add() = (%d, %v), want (0, added)", idx, outcome)
	}

	idx, outcome = r.Add(1234, 480, macA)
	if idx != 0 || outcome != OutcomeKnown {
		t.Errorf("second Add() = (%d, %v), want (0, known)", idx, outcome)
	}

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if r.At(0).Duplicate {
		t.Error("single entry should not be duplicate")
	}
}

func TestAdd_Duplicates(t *testing.T) {
	r := New()
	r.Add(1234, 480, macA)
	r.Add(99, 50, macC)

	if _, outcome := r.Add(1234, 1476, macB); outcome != OutcomeDuplicate {
		t.Errorf("Add() with new address = %v, want duplicate", outcome)
	}

	third := bacnet.Address{MAC: []byte{10, 0, 0, 9, 0xBA, 0xC0}}
	if _, outcome := r.Add(1234, 480, third); outcome != OutcomeDuplicate {
		t.Errorf("Add() with third address = %v, want duplicate", outcome)
	}

	// Re-adding a flagged entry is still a no-op
	if idx, outcome := r.Add(1234, 480, macB); idx != 2 || outcome != OutcomeKnown {
		t.Errorf("Add() of known duplicate = (%d, %v), want (2, known)", idx, outcome)
	}

	want := []struct {
		id  uint32
		dup bool
	}{
		{1234, true},
		{99, false},
		{1234, true},
		{1234, true},
	}

	peers := r.Peers()
	if len(peers) != len(want) {
		t.Fatalf("Len() = %d, want %d", len(peers), len(want))
	}
	for i, w := range want {
		if peers[i].DeviceID != w.id || peers[i].Duplicate != w.dup {
			t.Errorf("peer %d = {%d, dup=%v}, want {%d, dup=%v}",
				i, peers[i].DeviceID, peers[i].Duplicate, w.id, w.dup)
		}
	}
	if r.Duplicates() != 3 {
		t.Errorf("Duplicates() = %d, want 3", r.Duplicates())
	}
}

func TestAdd_NeverStoresSameIdentityTwice(t *testing.T) {
	r := New()
	addrs := []bacnet.Address{macA, macB, macC, macA, macC, macB}
	for round := 0; round < 3; round++ {
		for i, a := range addrs {
			r.Add(uint32(i%2), 480, a)
		}
	}

	seen := make(map[string]bool)
	for _, p := range r.Peers() {
		key := p.Address.String() + "/" + string(rune(p.DeviceID))
		if seen[key] {
			t.Errorf("entry %v stored twice", p)
		}
		seen[key] = true
	}
}

func TestAdd_CopiesAddress(t *testing.T) {
	r := New()
	buf := []byte{10, 0, 0, 1, 0xBA, 0xC0}
	r.Add(1, 50, bacnet.Address{MAC: buf})
	buf[0] = 99

	if r.At(0).Address.MAC[0] != 10 {
		t.Error("registry must not alias the caller's receive buffer")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Add(1234, 480, macA)
	r.Add(4194303, 50, macC)
	r.Add(7, 1476, macC)
	r.Add(4194303, 50, bacnet.Address{MAC: []byte{0x06}, Net: 2001, Adr: []byte{0x22}})

	want := ";Device   MAC (hex)            SNET  SADR (hex)           APDU\n" +
		";-------- -------------------- ----- -------------------- ----\n" +
		"  1234    C0:A8:01:14:BA:C0    0     00                   480  \n" +
		"; 4194303 05                   2001  21                   50   \n" +
		"  7       05                   2001  21                   1476 \n" +
		"; 4194303 06                   2001  22                   50   \n" +
		";\n" +
		"; Total Devices: 4\n" +
		"; * Duplicate Devices: 2\n"

	if got := r.String(); got != want {
		t.Errorf("Render() mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_Empty(t *testing.T) {
	want := ";Device   MAC (hex)            SNET  SADR (hex)           APDU\n" +
		";-------- -------------------- ----- -------------------- ----\n" +
		";\n" +
		"; Total Devices: 0\n"

	if got := New().String(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRender_ColumnAlignment(t *testing.T) {
	r := New()
	for _, id := range []uint32{0, 9, 10, 999, 100000, 4194303} {
		r.Add(id, 1476, bacnet.Address{MAC: []byte{byte(id)}})
	}

	lines := strings.Split(r.String(), "\n")
	header := lines[0]
	macCol := strings.Index(header, "MAC")
	snetCol := strings.Index(header, "SNET")

	for _, line := range lines[2 : 2+r.Len()] {
		if line[macCol-1] != ' ' || line[macCol] == ' ' {
			t.Errorf("MAC column misaligned in %q", line)
		}
		if line[snetCol] != '0' {
			t.Errorf("SNET column misaligned in %q", line)
		}
		if len(line) != len(lines[2]) {
			t.Errorf("row width %d differs from %d: %q", len(line), len(lines[2]), line)
		}
	}
}

func TestParseTable_RoundTrip(t *testing.T) {
	r := New()
	r.Add(1234, 480, macA)
	r.Add(99, 50, macC)
	r.Add(1234, 1476, macB)
	r.Add(5, 206, bacnet.Address{MAC: []byte{0x7F}})

	peers, err := ParseTable(strings.NewReader(r.String()))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}

	// Duplicate rows are commented out and skipped
	if len(peers) != 2 {
		t.Fatalf("ParseTable() returned %d peers, want 2", len(peers))
	}
	if peers[0].DeviceID != 99 || !peers[0].Address.Equal(macC) || peers[0].MaxAPDU != 50 {
		t.Errorf("peer 0 = %+v", peers[0])
	}
	if peers[1].DeviceID != 5 || peers[1].Address.Net != 0 || peers[1].MaxAPDU != 206 {
		t.Errorf("peer 1 = %+v", peers[1])
	}
}

func TestParseTable_WidestRoutedAddress(t *testing.T) {
	routed := bacnet.Address{
		MAC: []byte{10, 0, 0, 1, 0xBA, 0xC0},
		Net: 5,
		Adr: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
	}
	r := New()
	r.Add(7, 480, routed)
	r.Add(8, 50, bacnet.Address{MAC: []byte{0x05}})

	lines := strings.Split(r.String(), "\n")
	if len(lines[2]) != len(lines[3]) {
		t.Errorf("row widths %d and %d differ:\n%s\n%s", len(lines[2]), len(lines[3]), lines[2], lines[3])
	}

	peers, err := ParseTable(strings.NewReader(r.String()))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("ParseTable() returned %d peers, want 2", len(peers))
	}
	if !peers[0].Address.Equal(routed) || peers[0].DeviceID != 7 || peers[0].MaxAPDU != 480 {
		t.Errorf("peer 0 = %+v, want device 7 at %v", peers[0], routed)
	}
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few fields", "  1234 05 0 00\n"},
		{"bad instance", "  4194304 05 0 00 480\n"},
		{"bad mac", "  1 ZZ 0 00 480\n"},
		{"bad snet", "  1 05 70000 00 480\n"},
		{"long mac", "  1 01:02:03:04:05:06:07:08 0 00 480\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable(strings.NewReader(tt.input)); err == nil {
				t.Errorf("ParseTable(%q) error = nil, want error", tt.input)
			}
		})
	}
}
