package core

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic, used to sniff compressed revprop pack bodies
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
}

func compressBlob(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func decompressBlob(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}

func isCompressedBlob(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}
