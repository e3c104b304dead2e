package store

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/jward/treehug/internal/model"
)

// Encoder and Decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func encodeSummary(sum *model.FileSummary) ([]byte, error) {
	if sum == nil {
		return nil, fmt.Errorf("nil summary")
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func decodeSummary(blob []byte) (*model.FileSummary, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var sum model.FileSummary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &sum, nil
}
