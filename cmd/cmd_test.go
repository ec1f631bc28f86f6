package cmd

import (
	"bytes"
	"testing"
	"time"
)

func TestConvertToMono16Bit(t *testing.T) {
	// frames: (100, 300), (-200, -400), (32767, 32767)
	stereo := []byte{
		100, 0, 44, 1,
		0x38, 0xff, 0x70, 0xfe,
		0xff, 0x7f, 0xff, 0x7f,
	}
	want := []byte{
		200, 0,
		0xd4, 0xfe,
		0xff, 0x7f,
	}
	got := convertToMono16Bit(stereo, 2)
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got := convertToMono16Bit(stereo, 1); !bytes.Equal(got, stereo) {
		t.Error("mono input was modified")
	}

	// trailing partial frame is ignored
	if got := convertToMono16Bit(stereo[:6], 2); len(got) != 2 {
		t.Errorf("got %d bytes, want 2", len(got))
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{1500 * time.Millisecond, "00:00:01.500"},
		{time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, "01:02:03.004"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.d); got != tt.want {
			t.Errorf("formatClock(%v): got %s, want %s", tt.d, got, tt.want)
		}
	}
}
