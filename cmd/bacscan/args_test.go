package main

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/muurk/bacscan/internal/bacnet"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    bacnet.InstanceRange
		wantErr string
	}{
		{name: "no args", args: nil, want: bacnet.InstanceRange{}},
		{name: "single instance", args: []string{"123"}, want: bacnet.NewInstanceRange(123, 123)},
		{name: "range", args: []string{"1000", "9000"}, want: bacnet.NewInstanceRange(1000, 9000)},
		{name: "hex", args: []string{"0x10"}, want: bacnet.NewInstanceRange(16, 16)},
		{name: "max instance", args: []string{"0", "4194303"}, want: bacnet.NewInstanceRange(0, bacnet.MaxInstance)},
		{name: "min too large", args: []string{"4194304"}, wantErr: "device-instance-min=4194304 - not greater than 4194303"},
		{name: "max too large", args: []string{"1", "4194304"}, wantErr: "device-instance-max=4194304 - not greater than 4194303"},
		{name: "negative", args: []string{"-1"}, wantErr: "device-instance-min=-1"},
		{name: "garbage", args: []string{"abc"}, wantErr: "invalid device-instance-min"},
		{name: "too many", args: []string{"1", "2", "3"}, wantErr: "too many arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRange(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("parseRange(%v) error = %v, want %q", tt.args, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRange(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseRange(%v) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseIAm(t *testing.T) {
	defaults := bacnet.IAm{
		DeviceID:     bacnet.MaxInstance,
		MaxAPDU:      1476,
		Segmentation: bacnet.SegmentationNone,
		VendorID:     260,
	}

	tests := []struct {
		name    string
		args    []string
		want    bacnet.IAm
		wantErr string
	}{
		{name: "defaults", args: nil, want: defaults},
		{
			name: "all fields",
			args: []string{"1234", "8", "480", "0"},
			want: bacnet.IAm{DeviceID: 1234, VendorID: 8, MaxAPDU: 480, Segmentation: bacnet.SegmentationBoth},
		},
		{
			name: "instance only",
			args: []string{"77"},
			want: bacnet.IAm{DeviceID: 77, VendorID: 260, MaxAPDU: 1476, Segmentation: bacnet.SegmentationNone},
		},
		{name: "instance too large", args: []string{"4194304"}, wantErr: "device-instance=4194304"},
		{name: "vendor too large", args: []string{"1", "65536"}, wantErr: "vendor-id=65536"},
		{name: "apdu too small", args: []string{"1", "8", "49"}, wantErr: "max-apdu=49"},
		{name: "segmentation out of range", args: []string{"1", "8", "480", "4"}, wantErr: "segmentation=4"},
		{name: "too many", args: []string{"1", "2", "480", "3", "5"}, wantErr: "too many arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIAm(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("parseIAm(%v) error = %v, want %q", tt.args, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseIAm(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseIAm(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestDestFlags_Inputs(t *testing.T) {
	var d destFlags
	fs := pflag.NewFlagSet("whois", pflag.ContinueOnError)
	d.register(fs)

	if err := fs.Parse([]string{"--mac", "10.0.0.1", "--dnet", "123"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	in := d.inputs(fs)
	if !in.HasMAC || in.MAC != "10.0.0.1" {
		t.Errorf("MAC = %q/%v, want 10.0.0.1/true", in.MAC, in.HasMAC)
	}
	if !in.HasNet || in.Net != 123 {
		t.Errorf("Net = %d/%v, want 123/true", in.Net, in.HasNet)
	}
	if in.HasAdr {
		t.Error("HasAdr = true for a flag that was not given")
	}
}

func TestDescribe(t *testing.T) {
	if got := describeRange(bacnet.InstanceRange{}); got != "all devices" {
		t.Errorf("describeRange(all) = %q", got)
	}
	if got := describeRange(bacnet.NewInstanceRange(5, 5)); got != "5" {
		t.Errorf("describeRange(5) = %q", got)
	}
	if got := describeRange(bacnet.NewInstanceRange(1, 9)); got != "1 - 9" {
		t.Errorf("describeRange(1,9) = %q", got)
	}
	if got := describeSends(2, false); got != "3" {
		t.Errorf("describeSends(2) = %q, want 3", got)
	}
	if got := describeDest(bacnet.GlobalBroadcast(), false); got != "global broadcast" {
		t.Errorf("describeDest() = %q", got)
	}
}

func TestClampRetries(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{-1, 0},
		{0, 0},
		{2, 2},
	}
	for _, tt := range tests {
		if got := clampRetries(tt.in); got != tt.want {
			t.Errorf("clampRetries(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
