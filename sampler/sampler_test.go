package sampler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseVolts(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"volt=0.8563V", 0.8563},
		{"volt=0.8563V\n", 0.8563},
		{"volt=1.2000V", 1.2},
		{"0.9V", 0.9},
	}
	for _, tc := range tests {
		got, err := parseVolts(tc.in)
		if err != nil {
			t.Errorf("parseVolts(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseVolts(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, in := range []string{"", "volt=V", "error"} {
		if _, err := parseVolts(in); err == nil {
			t.Errorf("parseVolts(%q): expected error", in)
		}
	}
}

func TestTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(path, []byte("48250\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	s.thermalPath = path
	got, err := s.temperature()
	if err != nil {
		t.Fatal(err)
	}
	if got != 48.25 {
		t.Errorf("got %v, want 48.25", got)
	}
}

func TestTemperatureMissing(t *testing.T) {
	s := New()
	s.thermalPath = filepath.Join(t.TempDir(), "nonexistent")
	if _, err := s.temperature(); err == nil {
		t.Error("expected error for missing thermal zone")
	}
}

func TestTemperatureGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(path, []byte("not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New()
	s.thermalPath = path
	if _, err := s.temperature(); err == nil {
		t.Error("expected error for malformed thermal zone")
	}
}

func TestWithDiskPath(t *testing.T) {
	s := New(WithDiskPath("/var"))
	if s.diskPath != "/var" {
		t.Errorf("got %q, want /var", s.diskPath)
	}

	// Empty override keeps the default.
	s = New(WithDiskPath(""))
	if s.diskPath != "/" {
		t.Errorf("got %q, want /", s.diskPath)
	}
}
