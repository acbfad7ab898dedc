package image

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// SizeCache memoizes how many bytes an image file expands to. Entries are
// keyed by path, size and modification time, so a replaced file is measured
// again.
type SizeCache struct {
	fs    afero.Fs
	cache *lru.Cache[string, int64]
	log   logrus.FieldLogger
}

func NewSizeCache(fs afero.Fs, entries int, log logrus.FieldLogger) (*SizeCache, error) {
	c, err := lru.New[string, int64](entries)
	if err != nil {
		return nil, fmt.Errorf("creating size cache: %w", err)
	}
	return &SizeCache{fs: fs, cache: c, log: log}, nil
}

// UncompressedSize returns the number of bytes the writer will see for path.
// Gzip files are decompressed in full: their trailer only holds the size
// modulo 4 GiB.
func (c *SizeCache) UncompressedSize(ctx context.Context, path string) (int64, error) {
	fi, err := c.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s|%d|%d", path, fi.Size(), fi.ModTime().UnixNano())
	if n, ok := c.cache.Get(key); ok {
		return n, nil
	}

	var n int64
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		n, err = c.gunzippedSize(ctx, path)
		if err != nil {
			return 0, err
		}
	case ".img", ".iso", ".raw":
		n = fi.Size()
	default:
		return 0, fmt.Errorf("unsupported image type %q", filepath.Base(path))
	}

	c.log.WithFields(logrus.Fields{"image": path, "bytes": n}).Debug("measured image")
	c.cache.Add(key, n)
	return n, nil
}

func (c *SizeCache) gunzippedSize(ctx context.Context, path string) (int64, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	defer zr.Close()

	n, err := io.Copy(io.Discard, &ctxReader{ctx: ctx, r: zr})
	if err != nil {
		return 0, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
