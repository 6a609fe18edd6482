// Package compression provides the codecs used for stored and cached scratchpad content.
package compression

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var (
	_ Compressor = GzipCompressor{}
	_ Compressor = ZstdCompressor{}
)
