package encoder

import (
	"encoding/binary"
	"testing"
)

func sine(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16((i % 200) * 100)
	}
	return out
}

func TestFlacEncoder(t *testing.T) {
	samples := sine(BlockSize*3 + BlockSize/2)

	data, err := Flac{}.Encode(samples, DefaultSampleRate)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	t.Logf("Raw: %d bytes, FLAC: %d bytes", len(samples)*2, len(data))
}

func TestFlacEncoderEmpty(t *testing.T) {
	data, err := Flac{}.Encode(nil, DefaultSampleRate)
	if err != nil {
		t.Fatalf("Encode empty: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestWAVHeader(t *testing.T) {
	samples := []int16{1, -1, 32767, -32768}
	data, err := WAV{}.Encode(samples, 16000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != WAVHeaderSize+len(samples)*2 {
		t.Fatalf("len = %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Errorf("bad chunk ids: %q %q %q", data[0:4], data[8:12], data[36:40])
	}
	for _, tt := range []struct {
		name string
		off  int
		size int
		want uint32
	}{
		{"channels", 22, 2, 1},
		{"sample rate", 24, 4, 16000},
		{"byte rate", 28, 4, 32000},
		{"block align", 32, 2, 2},
		{"bits", 34, 2, 16},
		{"data size", 40, 4, 8},
	} {
		var got uint32
		if tt.size == 2 {
			got = uint32(binary.LittleEndian.Uint16(data[tt.off:]))
		} else {
			got = binary.LittleEndian.Uint32(data[tt.off:])
		}
		if got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
	if s := int16(binary.LittleEndian.Uint16(data[WAVHeaderSize+6:])); s != -32768 {
		t.Errorf("last sample = %d", s)
	}
}

func TestNew(t *testing.T) {
	for _, tt := range []struct{ format, want string }{
		{"", "wav"},
		{"wav", "wav"},
		{"flac", "flac"},
	} {
		enc, err := New(tt.format)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.format, err)
		}
		if enc.Format() != tt.want {
			t.Errorf("New(%q).Format() = %q, want %q", tt.format, enc.Format(), tt.want)
		}
	}
	if _, err := New("mp3"); err == nil {
		t.Error("expected error for unknown format")
	}
}
