package audio

import "strings"

// DataCallback receives little-endian 16-bit PCM. data is only valid for
// the duration of the call.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain multiplies every sample before delivery; values <= 1 leave the
	// signal untouched.
	Gain int
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
	// Monitor marks a loopback of a playback device, which hears whatever
	// the machine itself is playing.
	Monitor bool
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Tee delivers every captured chunk to each callback in order.
func Tee(cbs ...DataCallback) DataCallback {
	return func(data []byte, frameCount uint32) {
		for _, cb := range cbs {
			cb(data, frameCount)
		}
	}
}

// FindDevice returns the first device whose name contains name, ignoring case.
func FindDevice(ctx Context, name string) (*DeviceInfo, bool) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, false
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], true
		}
	}
	return nil, false
}

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000", "jabra",
	"galaxy buds", "pixel buds", "jbl ", "bluetooth", " bt ", " bt)",
}

// IsBluetooth guesses from the device name whether it is a headset mic,
// which usually runs at a narrowband rate unsuited to music recognition.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func amplify(s int16, gain int) int16 {
	if gain <= 1 {
		return s
	}
	v := int32(s) * int32(gain)
	return int16(max(min(v, 32767), -32768))
}
