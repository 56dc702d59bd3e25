package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	DefaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
)

// WriteWAV writes a mono 16-bit PCM WAV file made of the concatenated chunks.
func WriteWAV(w io.Writer, chunks [][]byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	dataSize := 0
	for _, c := range chunks {
		dataSize += len(c)
	}

	header, err := wavHeader(dataSize, sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return fmt.Errorf("build wav header: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			return fmt.Errorf("write wav payload: %w", err)
		}
	}
	return nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
