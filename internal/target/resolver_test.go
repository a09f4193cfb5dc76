package target

import (
	"testing"

	"github.com/muurk/bacscan/internal/bacnet"
)

func TestResolve(t *testing.T) {
	routerMAC := []byte{10, 0, 0, 1, 0xBA, 0xC0}

	tests := []struct {
		name         string
		in           Inputs
		want         bacnet.Address
		wantDirected bool
	}{
		{
			name: "nothing supplied",
			in:   Inputs{},
			want: bacnet.Address{Net: bacnet.BroadcastNetwork},
		},
		{
			name:         "mac and dadr with network",
			in:           Inputs{MAC: "10.0.0.1", HasMAC: true, Net: 123, HasNet: true, Adr: "05", HasAdr: true},
			want:         bacnet.Address{MAC: routerMAC, Net: 123, Adr: []byte{0x05}},
			wantDirected: true,
		},
		{
			name:         "mac and dadr without network",
			in:           Inputs{MAC: "10.0.0.1", HasMAC: true, Adr: "05", HasAdr: true},
			want:         bacnet.Address{MAC: routerMAC, Net: bacnet.BroadcastNetwork, Adr: []byte{0x05}},
			wantDirected: true,
		},
		{
			name:         "mac and dadr with invalid network",
			in:           Inputs{MAC: "10.0.0.1", HasMAC: true, Net: 70000, HasNet: true, Adr: "05", HasAdr: true},
			want:         bacnet.Address{MAC: routerMAC, Net: bacnet.BroadcastNetwork, Adr: []byte{0x05}},
			wantDirected: true,
		},
		{
			name:         "mac only",
			in:           Inputs{MAC: "10.0.0.1:47808", HasMAC: true},
			want:         bacnet.Address{MAC: routerMAC},
			wantDirected: true,
		},
		{
			name:         "mac with network",
			in:           Inputs{MAC: "10.0.0.1", HasMAC: true, Net: 7, HasNet: true},
			want:         bacnet.Address{MAC: routerMAC, Net: 7},
			wantDirected: true,
		},
		{
			name:         "mac with negative network",
			in:           Inputs{MAC: "10.0.0.1", HasMAC: true, Net: -1, HasNet: true},
			want:         bacnet.Address{MAC: routerMAC},
			wantDirected: true,
		},
		{
			name:         "network only",
			in:           Inputs{Net: 123, HasNet: true},
			want:         bacnet.Address{Net: 123},
			wantDirected: true,
		},
		{
			name:         "network zero is the local network",
			in:           Inputs{Net: 0, HasNet: true},
			want:         bacnet.Address{},
			wantDirected: true,
		},
		{
			name:         "network broadcast sentinel",
			in:           Inputs{Net: bacnet.BroadcastNetwork, HasNet: true},
			want:         bacnet.Address{Net: bacnet.BroadcastNetwork},
			wantDirected: true,
		},
		{
			name:         "dadr alone is ignored",
			in:           Inputs{Net: 9, HasNet: true, Adr: "05", HasAdr: true},
			want:         bacnet.Address{Net: 9},
			wantDirected: true,
		},
		{
			name: "invalid network alone degrades to global broadcast",
			in:   Inputs{Net: 65536, HasNet: true},
			want: bacnet.Address{Net: bacnet.BroadcastNetwork},
		},
		{
			name: "unparsable mac is ignored",
			in:   Inputs{MAC: "not-a-mac", HasMAC: true},
			want: bacnet.Address{Net: bacnet.BroadcastNetwork},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, directed := Resolve(tt.in)
			if directed != tt.wantDirected {
				t.Errorf("Resolve() directed = %v, want %v", directed, tt.wantDirected)
			}
			if !got.Equal(tt.want) || len(got.Adr) != len(tt.want.Adr) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}
