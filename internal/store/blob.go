package store

import (
	"github.com/klauspost/compress/zstd"
)

// Packed plane data is flat byte runs with long repeats, which zstd
// shrinks well; screens are stored compressed and inflated on read.

var blobEncoder = mustNewZstdEncoder()
var blobDecoder = mustNewZstdDecoder()

func mustNewZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func mustNewZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

func compressBlob(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	return blobEncoder.EncodeAll(data, nil)
}

func decompressBlob(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return blobDecoder.DecodeAll(data, nil)
}
