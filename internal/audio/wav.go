package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderSize is the size of the canonical RIFF/WAVE header written by Frame
const HeaderSize = 44

// ErrInvalidWAV is returned when a buffer is not a decodable PCM WAV container
var ErrInvalidWAV = errors.New("invalid WAV data")

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Format describes interleaved little-endian PCM
type Format struct {
	SampleRate  int `json:"sample_rate" yaml:"sample_rate"`
	Channels    int `json:"channels" yaml:"channels"`
	SampleWidth int `json:"sample_width" yaml:"sample_width"` // bytes per sample
}

// DefaultFormat is the encoding clients stream: 16 kHz mono 16-bit
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

// Validate checks that the format can be framed into a playable WAV
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}

	if f.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", f.Channels)
	}

	switch f.SampleWidth {
	case 1, 2, 4:
	default:
		return fmt.Errorf("sample width must be 1, 2 or 4 bytes, got %d", f.SampleWidth)
	}

	return nil
}

// BlockAlign returns the number of bytes in one interleaved frame
func (f Format) BlockAlign() int {
	return f.Channels * f.SampleWidth
}

// BytesPerSecond returns the PCM byte rate
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// newHeader builds the canonical 44-byte header for dataSize bytes of PCM
func newHeader(f Format, dataSize int) WAVHeader {
	bitsPerSample := uint16(f.SampleWidth * 8)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}
}

// Frame wraps raw PCM bytes in a minimal WAV container. Samples are copied
// verbatim; malformed PCM yields a framed but unplayable buffer.
func Frame(pcm []byte, f Format) []byte {
	header := newHeader(f, len(pcm))

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))
	// binary.Write into a bytes.Buffer cannot fail for a fixed-size struct
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)

	return buf.Bytes()
}

// ParseHeader reads and validates the canonical header at the start of data
func ParseHeader(data []byte) (*WAVHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidWAV, HeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing WAVE format", ErrInvalidWAV)
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}

	return &header, nil
}

// PCM returns the sample bytes of a buffer produced by Frame
func PCM(data []byte) ([]byte, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	end := HeaderSize + int(header.Subchunk2Size)
	if end > len(data) {
		return nil, fmt.Errorf("%w: data chunk declares %d bytes, only %d present",
			ErrInvalidWAV, header.Subchunk2Size, len(data)-HeaderSize)
	}

	pcm := make([]byte, end-HeaderSize)
	copy(pcm, data[HeaderSize:end])
	return pcm, nil
}

// WAVInfo contains basic information about a WAV buffer
type WAVInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	Duration      time.Duration `json:"duration"`
	DataSize      uint32        `json:"data_size_bytes"`
	NumFrames     uint32        `json:"num_frames"`
}

// Info extracts metadata from a WAV header
func Info(data []byte) (*WAVInfo, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	if header.SampleRate == 0 || header.BlockAlign == 0 {
		return nil, fmt.Errorf("%w: zero sample rate or block align", ErrInvalidWAV)
	}

	numFrames := header.Subchunk2Size / uint32(header.BlockAlign)
	duration := time.Duration(float64(numFrames) / float64(header.SampleRate) * float64(time.Second))

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumFrames:     numFrames,
	}, nil
}
