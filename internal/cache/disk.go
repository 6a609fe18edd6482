package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/util"
	"github.com/debemdeboas/scratchpad/internal/util/compression"
)

var cacheLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	cacheLogger = l
}

const headerSize = 8

// DiskCache keeps one file per key so a scratchpad can be shown offline on the next
// start. Each file is an 8-byte big-endian expiry (unix nanoseconds, 0 = never)
// followed by the zstd-compressed value.
type DiskCache struct {
	dir        string
	compressor compression.Compressor
	now        func() time.Time
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}
	return &DiskCache{
		dir:        dir,
		compressor: compression.ZstdCompressor{},
		now:        time.Now,
	}, nil
}

// DefaultDir returns the per-user cache directory for scratchpad data.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "scratchpad"), nil
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, util.ContentHashString(key)+".zst")
}

func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			cacheLogger.Warn().Err(err).Str("key", key).Msg("Error reading cache entry")
		}
		return nil, false
	}

	if len(data) < headerSize {
		cacheLogger.Warn().Str("key", key).Msg("Truncated cache entry, removing")
		os.Remove(path)
		return nil, false
	}

	expiry := int64(binary.BigEndian.Uint64(data[:headerSize]))
	if expiry != 0 && c.now().UnixNano() >= expiry {
		os.Remove(path)
		return nil, false
	}

	value, err := c.compressor.Decompress(data[headerSize:])
	if err != nil {
		cacheLogger.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, removing")
		os.Remove(path)
		return nil, false
	}
	return value, true
}

// Set writes the entry atomically. Failures are logged; the cache is best effort.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) {
	compressed, err := c.compressor.Compress(value)
	if err != nil {
		cacheLogger.Warn().Err(err).Str("key", key).Msg("Error compressing cache entry")
		return
	}

	var expiry int64
	if ttl > 0 {
		expiry = c.now().Add(ttl).UnixNano()
	}

	data := make([]byte, headerSize, headerSize+len(compressed))
	binary.BigEndian.PutUint64(data, uint64(expiry))
	data = append(data, compressed...)

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		cacheLogger.Warn().Err(err).Str("key", key).Msg("Error creating cache entry")
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		cacheLogger.Warn().Err(err).Str("key", key).Msg("Error writing cache entry")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		cacheLogger.Warn().Err(err).Str("key", key).Msg("Error closing cache entry")
		return
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		cacheLogger.Warn().Err(err).Str("key", key).Msg("Error storing cache entry")
	}
}

func (c *DiskCache) Delete(key string) {
	os.Remove(c.path(key))
}
