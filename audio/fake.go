package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"earshot/encoder"
)

const fakeChunkFrames = 1024

// FakeContext replays the PCM payload of a 16-bit mono WAV file as if it
// were a capture device. After the file runs out it feeds silence.
type FakeContext struct {
	pcm []byte
	// Speed scales playback; 1 is real time, 0 delivers as fast as possible.
	Speed float64
}

func NewFakeContext(wavPath string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) < encoder.WAVHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s: not a WAV file", wavPath)
	}
	return &FakeContext{pcm: data[encoder.WAVHeaderSize:], Speed: 1}, nil
}

// NewFakeContextPCM wraps raw little-endian samples.
func NewFakeContextPCM(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm, Speed: 1}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	rate := config.SampleRate
	if rate == 0 {
		rate = encoder.DefaultSampleRate
	}
	return &FakeCapture{
		pcm:      f.pcm,
		rate:     rate,
		speed:    f.Speed,
		fileDone: make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm      []byte
	rate     uint32
	speed    float64
	fileDone chan struct{}

	mu     sync.Mutex
	cb     DataCallback
	stopCh chan struct{}
	done   chan struct{}
}

// FileDone is closed once every sample of the file has been delivered.
func (f *FakeCapture) FileDone() <-chan struct{} { return f.fileDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() { f.SetCallback(nil) }

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})

	chunkBytes := fakeChunkFrames * 2
	var interval time.Duration
	if f.speed > 0 {
		interval = time.Duration(float64(fakeChunkFrames) / float64(f.rate) / f.speed * float64(time.Second))
	}

	go func() {
		defer close(f.done)
		silence := make([]byte, chunkBytes)
		pos := 0
		finished := false
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			cb := f.callback()
			if cb != nil {
				if pos < len(f.pcm) {
					end := min(pos+chunkBytes, len(f.pcm))
					chunk := make([]byte, end-pos)
					copy(chunk, f.pcm[pos:end])
					cb(chunk, uint32(len(chunk)/2))
					pos = end
				} else {
					if !finished {
						finished = true
						close(f.fileDone)
					}
					cb(silence, fakeChunkFrames)
				}
			}

			wait := interval
			if cb == nil || (wait == 0 && finished) {
				wait = time.Millisecond
			}
			if wait > 0 {
				select {
				case <-f.stopCh:
					return
				case <-time.After(wait):
				}
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.done
}

func (f *FakeCapture) Close() {}
