package recall

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wav encodes interleaved frames as a .wav file with the channel count and
// sample rate of the presets. The sample format of the presets decides
// between 16-bit PCM and 32-bit float.
func Wav(p Presets, frames []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(p, len(frames), buf)
	if err := rawToBuffer(frames, p.Format, buf); err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Raw encodes interleaved frames without a header, in the sample format of
// the presets.
func Raw(p Presets, frames []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rawToBuffer(frames, p.Format, buf); err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, format Format, buf *bytes.Buffer) error {
	var err error
	if format == FormatSigned16 {
		err = binary.Write(buf, binary.LittleEndian, ToSigned16(data, nil))
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// ToSigned16 converts float samples to clamped 16-bit samples, reusing dst
// if it is long enough.
func ToSigned16(data []float32, dst []int16) []int16 {
	if cap(dst) < len(data) {
		dst = make([]int16, len(data))
	}
	dst = dst[:len(data)]
	for i, v := range data {
		dst[i] = int16(min(max(int(v*math.MaxInt16), math.MinInt16), math.MaxInt16))
	}
	return dst
}

// wavHeader writes the header of a wave file holding samples interleaved
// samples in the format of the presets.
func wavHeader(p Presets, samples int, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := max(p.Channels, 1)
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if p.Format == FormatSigned16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*samples
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*samples
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(p.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(p.SampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))              // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                        // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))                     // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(samples/numChannels)) // sample frames
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*samples))
}
