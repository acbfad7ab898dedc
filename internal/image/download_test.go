package image

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdburn/internal/failure"
	"sdburn/internal/logging"
)

type reports struct {
	mu       sync.Mutex
	percents []int
}

func (r *reports) add(p int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, p)
}

func serveBytes(t *testing.T, body []byte) (*httptest.Server, *int) {
	t.Helper()
	hits := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func md5hex(b []byte) string {
	s := md5.Sum(b)
	return hex.EncodeToString(s[:])
}

func TestDownloadVerifiesAndMovesIntoPlace(t *testing.T) {
	body := bytes.Repeat([]byte("sdburn"), 100_000)
	srv, _ := serveBytes(t, body)
	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, srv.Client(), logging.Discard())
	rep := &reports{}

	err := d.Download(context.Background(), Source{URL: srv.URL, Filename: "os.img.gz", Checksum: md5hex(body)}, "/work/os.img.gz", rep.add)

	require.NoError(t, err)
	got, err := afero.ReadFile(fs, "/work/os.img.gz")
	require.NoError(t, err)
	assert.Equal(t, body, got)
	ok, _ := afero.Exists(fs, "/work/os.img.gz.part")
	assert.False(t, ok)
	assert.Equal(t, 0, rep.percents[0])
	assert.Equal(t, 100, rep.percents[len(rep.percents)-1])
}

func TestDownloadChecksumMismatch(t *testing.T) {
	srv, _ := serveBytes(t, []byte("corrupted"))
	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, srv.Client(), logging.Discard())

	err := d.Download(context.Background(), Source{URL: srv.URL, Filename: "os.img.gz", Checksum: md5hex([]byte("original"))}, "/work/os.img.gz", nil)

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.MD5Error, cat)
	assert.Contains(t, failure.DiagnosticOf(err), md5hex([]byte("corrupted")))
	for _, p := range []string{"/work/os.img.gz", "/work/os.img.gz.part"} {
		ok, _ := afero.Exists(fs, p)
		assert.False(t, ok, p)
	}
}

func TestDownloadSkipsVerifiedFile(t *testing.T) {
	body := []byte("already here")
	srv, hits := serveBytes(t, body)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/os.img", body, 0o644))
	d := NewDownloader(fs, srv.Client(), logging.Discard())

	err := d.Download(context.Background(), Source{URL: srv.URL, Filename: "os.img", Checksum: md5hex(body)}, "/work/os.img", nil)

	require.NoError(t, err)
	assert.Zero(t, *hits)
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	d := NewDownloader(afero.NewMemMapFs(), srv.Client(), logging.Discard())

	err := d.Download(context.Background(), Source{URL: srv.URL + "/missing.img.gz"}, "/work/x.img.gz", nil)

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.DownloadError, cat)
}

func TestDownloadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	d := NewDownloader(afero.NewMemMapFs(), nil, logging.Discard())

	err := d.Download(context.Background(), Source{URL: url}, "/work/x.img.gz", nil)

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.InternetError, cat)
}

func TestDownloadReadOnlyFs(t *testing.T) {
	srv, _ := serveBytes(t, []byte("x"))
	d := NewDownloader(afero.NewReadOnlyFs(afero.NewMemMapFs()), srv.Client(), logging.Discard())

	err := d.Download(context.Background(), Source{URL: srv.URL}, "/work/x.img", nil)

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.DownloadError, cat)
}
