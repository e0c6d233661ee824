package storage

import (
	"testing"
	"time"
)

func TestCompressTimestampsRoundTrip(t *testing.T) {
	comp, err := NewCompressor(2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	// Daily samples at a fixed hour: constant delta.
	start := time.Date(2024, time.March, 1, 13, 0, 0, 0, time.Local).Unix()
	timestamps := make([]int64, 100)
	for i := range timestamps {
		timestamps[i] = start + int64(i)*86400
	}

	compressed, err := comp.CompressTimestamps(timestamps)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	// Regular intervals must beat the raw encoding.
	if len(compressed) >= len(timestamps)*8 {
		t.Errorf("Compression ineffective: original=%d, compressed=%d",
			len(timestamps)*8, len(compressed))
	}

	decompressed, err := comp.DecompressTimestamps(compressed, len(timestamps))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	if len(decompressed) != len(timestamps) {
		t.Fatalf("Length mismatch: expected %d, got %d", len(timestamps), len(decompressed))
	}
	for i := range timestamps {
		if timestamps[i] != decompressed[i] {
			t.Errorf("Timestamp mismatch at %d: expected %d, got %d",
				i, timestamps[i], decompressed[i])
		}
	}
}

func TestCompressTimestampsIrregularGaps(t *testing.T) {
	comp, err := NewCompressor(2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	timestamps := []int64{1709298000, 1709298007, 1709384400, 1709384401, 1712062800}

	compressed, err := comp.CompressTimestamps(timestamps)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	decompressed, err := comp.DecompressTimestamps(compressed, len(timestamps))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	for i := range timestamps {
		if timestamps[i] != decompressed[i] {
			t.Errorf("Timestamp mismatch at %d: expected %d, got %d",
				i, timestamps[i], decompressed[i])
		}
	}
}

func TestCompressReadingsRoundTrip(t *testing.T) {
	comp, err := NewCompressor(2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	// Register values that rise and fall; deltas go negative.
	values := []uint32{0x7AF2E, 0x7EB95, 0x77D17, 0x7F411, 0x0, 0xFFFFF, 0x7D6E8}

	compressed, err := comp.CompressReadings(values)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	decompressed, err := comp.DecompressReadings(compressed, len(values))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	if len(decompressed) != len(values) {
		t.Fatalf("Length mismatch: expected %d, got %d", len(values), len(decompressed))
	}
	for i := range values {
		if values[i] != decompressed[i] {
			t.Errorf("Value mismatch at %d: expected %08X, got %08X",
				i, values[i], decompressed[i])
		}
	}
}

func TestCompressEmptyAndSingle(t *testing.T) {
	comp, err := NewCompressor(2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	// Empty columns stay empty.
	if data, err := comp.CompressTimestamps(nil); err != nil || data != nil {
		t.Errorf("CompressTimestamps(nil) = %v, %v", data, err)
	}
	if data, err := comp.CompressReadings(nil); err != nil || data != nil {
		t.Errorf("CompressReadings(nil) = %v, %v", data, err)
	}

	// A single element survives the round trip.
	tsData, err := comp.CompressTimestamps([]int64{1709298000})
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	ts, err := comp.DecompressTimestamps(tsData, 1)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	if len(ts) != 1 || ts[0] != 1709298000 {
		t.Errorf("single timestamp round trip = %v", ts)
	}

	valData, err := comp.CompressReadings([]uint32{0x7AF2E})
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	vals, err := comp.DecompressReadings(valData, 1)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	if len(vals) != 1 || vals[0] != 0x7AF2E {
		t.Errorf("single reading round trip = %v", vals)
	}
}
