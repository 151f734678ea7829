package oto

import (
	"encoding/binary"
	"math"

	"github.com/vsariola/recall"
)

// encode appends the interleaved samples to dst in the little-endian
// sample format f and returns the extended slice.
func encode(dst []byte, buf []float32, f recall.Format) []byte {
	if f == recall.FormatSigned16 {
		for _, v := range buf {
			v = min(max(v, -1), 1)
			dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(v*math.MaxInt16)))
		}
		return dst
	}
	for _, v := range buf {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

func bytesPerSample(f recall.Format) int {
	if f == recall.FormatSigned16 {
		return 2
	}
	return 4
}
