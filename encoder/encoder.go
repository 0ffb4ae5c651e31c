package encoder

import "fmt"

const (
	DefaultSampleRate = 16000
	Channels          = 1
	BitsPerSample     = 16
	BlockSize         = 4096
)

// Encoder wraps one window of mono 16-bit samples into a container the
// recognition service accepts.
type Encoder interface {
	Encode(samples []int16, sampleRate int) ([]byte, error)
	Format() string
	ContentType() string
}

func New(format string) (Encoder, error) {
	switch format {
	case "wav", "":
		return WAV{}, nil
	case "flac":
		return Flac{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (use wav or flac)", format)
	}
}
