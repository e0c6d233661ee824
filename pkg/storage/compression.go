package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Compressor handles column compression for snapshot blocks.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a compressor for the given level (1 fastest to
// 4 best).
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, errors.Wrap(err, "create encoder")
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create decoder")
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// CompressTimestamps compresses a timestamp column using
// delta-of-delta encoding + zstd. Daily samples at a fixed hour have a
// constant delta, so the encoded column is almost all zeros.
func (c *Compressor) CompressTimestamps(timestamps []int64) ([]byte, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	// First timestamp as-is.
	if err := binary.Write(buf, binary.LittleEndian, timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i] - timestamps[i-1]
		deltaOfDelta := delta - prevDelta

		if err := binary.Write(buf, binary.LittleEndian, deltaOfDelta); err != nil {
			return nil, err
		}

		prevDelta = delta
	}

	compressed := c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len()))
	return compressed, nil
}

// DecompressTimestamps reverses CompressTimestamps.
func (c *Compressor) DecompressTimestamps(data []byte, count int) ([]int64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decompress timestamps")
	}

	buf := bytes.NewReader(decompressed)
	timestamps := make([]int64, count)

	if err := binary.Read(buf, binary.LittleEndian, &timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < count; i++ {
		var deltaOfDelta int64
		if err := binary.Read(buf, binary.LittleEndian, &deltaOfDelta); err != nil {
			return nil, err
		}

		delta := deltaOfDelta + prevDelta
		timestamps[i] = timestamps[i-1] + delta
		prevDelta = delta
	}

	return timestamps, nil
}

// CompressReadings compresses a column of raw sensor register values
// using delta encoding + zstd. Register values move slowly from one
// sample to the next, so the deltas stay small.
func (c *Compressor) CompressReadings(values []uint32) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, values[0]); err != nil {
		return nil, err
	}

	for i := 1; i < len(values); i++ {
		delta := int64(values[i]) - int64(values[i-1])
		if err := binary.Write(buf, binary.LittleEndian, delta); err != nil {
			return nil, err
		}
	}

	compressed := c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len()))
	return compressed, nil
}

// DecompressReadings reverses CompressReadings.
func (c *Compressor) DecompressReadings(data []byte, count int) ([]uint32, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decompress readings")
	}

	buf := bytes.NewReader(decompressed)
	values := make([]uint32, count)

	if err := binary.Read(buf, binary.LittleEndian, &values[0]); err != nil {
		return nil, err
	}

	prev := int64(values[0])
	for i := 1; i < count; i++ {
		var delta int64
		if err := binary.Read(buf, binary.LittleEndian, &delta); err != nil {
			return nil, err
		}
		prev += delta
		values[i] = uint32(prev)
	}

	return values, nil
}

// Close releases the compressor resources.
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
