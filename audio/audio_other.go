//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	result := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:      hex.EncodeToString(d.ID.Pointer()[:]),
			Name:    d.Name(),
			Monitor: isLoopback(d.Name()),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	name := "system default"
	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
		name = device.Name
	}

	c := &malgoCapture{name: name, gain: config.Gain}
	var scratch []byte
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb == nil {
				return
			}
			if c.gain <= 1 {
				(*cb)(data, frameCount)
				return
			}
			if cap(scratch) < len(data) {
				scratch = make([]byte, len(data))
			}
			out := scratch[:len(data)]
			for i := 0; i+1 < len(out); i += 2 {
				s := int16(binary.LittleEndian.Uint16(data[i:]))
				binary.LittleEndian.PutUint16(out[i:], uint16(amplify(s, c.gain)))
			}
			(*cb)(out, frameCount)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	name     string
	gain     int
	callback atomic.Pointer[DataCallback]
}

func (c *malgoCapture) Start() error { return c.device.Start() }

func (c *malgoCapture) Stop() { c.device.Stop() }

func (c *malgoCapture) Close() { c.device.Uninit() }

func (c *malgoCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }

func (c *malgoCapture) ClearCallback() { c.callback.Store(nil) }

func (c *malgoCapture) DeviceName() string { return c.name }

var loopbackNames = []string{"stereo mix", "loopback", "blackhole", "soundflower", "what u hear"}

// isLoopback recognizes the virtual devices that re-record system output.
func isLoopback(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range loopbackNames {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
