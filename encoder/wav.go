package encoder

import "encoding/binary"

const WAVHeaderSize = 44

type WAV struct{}

func (WAV) Format() string      { return "wav" }
func (WAV) ContentType() string { return "audio/wav" }

func (WAV) Encode(samples []int16, sampleRate int) ([]byte, error) {
	dataSize := len(samples) * 2
	buf := make([]byte, WAVHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WAVHeaderSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*Channels*BitsPerSample/8))
	binary.LittleEndian.PutUint16(buf[32:34], Channels*BitsPerSample/8) // block align
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[WAVHeaderSize+i*2:], uint16(s))
	}
	return buf, nil
}
