package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 0},
		{"0/0", 0},
		{"x/1", 0},
	}
	for _, tt := range tests {
		if got := ParseFrameRate(tt.in); got != tt.want {
			t.Errorf("ParseFrameRate(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	got := FormatDuration(time.Hour + 2*time.Minute + 3500*time.Millisecond)
	if got != "01:02:03.500" {
		t.Errorf("expected %q, got %q", "01:02:03.500", got)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{29.97002997, 2, 29.97},
		{0.123456, 4, 0.1235},
		{1.005, 0, 1},
		{0, 4, 0},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.places); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, expected %v", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestFileHelpers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	path := filepath.Join(dir, "clip.MP4")
	if err := os.WriteFile(path, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(path) {
		t.Error("expected file to exist")
	}
	if n, err := FileSize(path); err != nil || n != 5 {
		t.Errorf("expected size 5, got %d, %v", n, err)
	}
	if ext := GetExtension(path); ext != ".mp4" {
		t.Errorf("expected .mp4, got %q", ext)
	}

	CleanupFiles(path, "")
	if FileExists(path) {
		t.Error("expected file to be removed")
	}
}
